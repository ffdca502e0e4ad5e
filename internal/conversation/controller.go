// Package conversation fuses the emotion and transcript streams of one
// session into turns.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/dispatch"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
	"github.com/hubenschmidt/xinqing-companion/internal/transcript"
)

var (
	// ErrCapabilityUnsupported means listening could not start because speech
	// recognition is unavailable.
	ErrCapabilityUnsupported = errors.New("speech capability unsupported")

	// ErrClosed is returned by calls made after Run has exited.
	ErrClosed = errors.New("conversation closed")
)

// State is the controller's lifecycle state.
type State int

const (
	Idle State = iota
	Listening
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Dispatcher sends turns to the chat backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, turn dispatch.Turn, deliver func(dispatch.Outcome))
}

// Journal records turns and alerts. Implementations must not block.
type Journal interface {
	RecordTurn(o dispatch.Outcome)
	RecordSignal(s crisis.Signal)
}

// Config wires a controller. Gate, Publisher and Journal are optional.
type Config struct {
	SessionID   string
	Messages    Messages
	Sampler     *emotion.Sampler
	Accumulator *transcript.Accumulator
	Detector    *crisis.Detector
	Gate        crisis.Gate
	Publisher   crisis.Publisher
	Dispatcher  Dispatcher
	Presenter   Presenter
	Journal     Journal
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	State      State
	Label      emotion.Label
	Transcript string
	Gen        uint64
}

// Controller owns one session's perception state. Every mutation runs on
// the goroutine executing Run; public methods hand work to it and wait.
type Controller struct {
	cfg   Config
	inbox chan func()
	done  chan struct{}

	// Owned by the Run goroutine.
	ctx        context.Context
	state      State
	gen        uint64
	label      emotion.Label
	buf        transcript.Buffer
	bubbleOpen bool
}

// New creates an idle controller. Call Run before using it.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:   cfg,
		inbox: make(chan func(), 16),
		done:  make(chan struct{}),
		label: emotion.Initial(),
	}
}

// Run processes work until ctx is cancelled. Sensors are stopped on exit.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)

	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		}
	}
}

func (c *Controller) shutdown() {
	if c.state == Listening {
		c.cfg.Sampler.Stop()
		c.cfg.Accumulator.Stop()
		metrics.ListeningActive.Dec()
	}
	c.state = Idle
}

func (c *Controller) post(ctx context.Context, fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Controller) call(ctx context.Context, fn func()) error {
	ack := make(chan struct{})
	if !c.post(ctx, func() { fn(); close(ack) }) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	select {
	case <-ack:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Start begins listening. It is a no-op unless the controller is idle.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	if cerr := c.call(ctx, func() { err = c.start() }); cerr != nil {
		return cerr
	}
	return err
}

// Stop ends listening and finalizes the utterance into a turn. It is a no-op
// unless the controller is listening.
func (c *Controller) Stop(ctx context.Context) error {
	return c.call(ctx, c.finalize)
}

// Cancel ends listening and discards the utterance.
func (c *Controller) Cancel(ctx context.Context) error {
	return c.call(ctx, c.cancel)
}

// Submit sends typed text as a turn. Blank text is ignored. The state is
// not changed.
func (c *Controller) Submit(ctx context.Context, text string) error {
	return c.call(ctx, func() { c.submit(text) })
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() {
		s = Snapshot{State: c.state, Label: c.label, Transcript: c.buf.Text(), Gen: c.gen}
	})
	return s, err
}

func (c *Controller) start() error {
	if c.state != Idle {
		return nil
	}

	c.present().AppendBubble(Bubble{Text: c.cfg.Messages.Greeting, Kind: BubbleGreeting})

	c.gen++
	gen := c.gen
	c.buf.Reset()
	c.bubbleOpen = false
	c.state = Listening

	c.cfg.Sampler.Start(c.ctx, gen, c.onReading)
	if err := c.cfg.Accumulator.Start(c.ctx, gen, c.onTranscript); err != nil {
		c.cfg.Sampler.Stop()
		c.state = Idle
		c.present().AppendBubble(Bubble{Text: c.cfg.Messages.SpeechUnsupported, Kind: BubbleUnsupported})
		if errors.Is(err, transcript.ErrUnsupported) {
			slog.Info("speech unsupported, staying idle", "session_id", c.cfg.SessionID)
			return ErrCapabilityUnsupported
		}
		metrics.SensorFailures.WithLabelValues("speech").Inc()
		slog.Error("start speech recognition", "error", err, "session_id", c.cfg.SessionID)
		return fmt.Errorf("%w: %v", ErrCapabilityUnsupported, err)
	}

	metrics.ListeningActive.Inc()
	slog.Info("listening started", "session_id", c.cfg.SessionID, "gen", gen)
	return nil
}

// halt stops both sensors. It returns the last transcript the recognizer
// produced, which may not have reached the loop yet.
func (c *Controller) halt() (tail string, seen bool) {
	c.state = Finalizing
	c.cfg.Sampler.Stop()
	tail, seen = c.cfg.Accumulator.Stop()
	metrics.ListeningActive.Dec()
	return tail, seen
}

func (c *Controller) finalize() {
	if c.state != Listening {
		return
	}
	defer func() { c.state = Idle }()

	if tail, seen := c.halt(); seen && tail != c.buf.Text() {
		c.showTranscript(tail)
	}
	text := strings.TrimSpace(c.buf.Freeze())
	if c.bubbleOpen {
		c.present().FinalizeUserBubble(c.label)
		c.bubbleOpen = false
	}
	slog.Info("listening finalized", "session_id", c.cfg.SessionID, "gen", c.gen, "chars", len(text))

	if text == "" {
		c.present().AppendBubble(Bubble{Text: c.cfg.Messages.NothingSaid, Kind: BubbleNothingSaid})
		return
	}
	c.present().AppendBubble(Bubble{Text: c.cfg.Messages.Thinking, Kind: BubbleThinking})
	c.evaluate(crisis.Perception{Label: c.label, Text: text})
	c.dispatch(text)
}

func (c *Controller) cancel() {
	if c.state != Listening {
		return
	}
	c.halt()
	c.buf.Reset()
	c.bubbleOpen = false
	c.state = Idle
	slog.Info("listening cancelled", "session_id", c.cfg.SessionID, "gen", c.gen)
}

func (c *Controller) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.present().AppendBubble(Bubble{Text: text, FromUser: true, Kind: BubbleUser})
	c.evaluate(crisis.Perception{Label: c.label, Text: text})
	c.dispatch(text)
}

func (c *Controller) dispatch(text string) {
	turn := dispatch.Turn{Text: text, Emotion: c.label}
	c.cfg.Dispatcher.Dispatch(c.ctx, turn, c.onOutcome)
}

func (c *Controller) onReading(ctx context.Context, r emotion.Reading) {
	c.post(ctx, func() { c.applyReading(r) })
}

// applyReading drops readings from an earlier listening session. The visual
// rule only sees fresh detections; the textual rule runs on every tick.
func (c *Controller) applyReading(r emotion.Reading) {
	if r.Gen != c.gen || c.state != Listening {
		return
	}
	if !r.Detected {
		c.evaluateText(c.buf.Text())
		return
	}
	c.label = r.Label
	c.evaluate(crisis.Perception{Label: c.label, Text: c.buf.Text()})
}

func (c *Controller) onTranscript(ctx context.Context, u transcript.Update) {
	c.post(ctx, func() { c.applyTranscript(u) })
}

func (c *Controller) applyTranscript(u transcript.Update) {
	if u.Gen != c.gen || c.state != Listening {
		return
	}
	c.showTranscript(u.Text)
}

func (c *Controller) showTranscript(text string) {
	c.buf.Replace(text)
	c.bubbleOpen = true
	c.present().UpdateUserBubble(text)
}

func (c *Controller) onOutcome(o dispatch.Outcome) {
	c.post(c.ctx, func() { c.applyOutcome(o) })
}

func (c *Controller) applyOutcome(o dispatch.Outcome) {
	if c.cfg.Journal != nil {
		c.cfg.Journal.RecordTurn(o)
	}
	switch o.Kind {
	case dispatch.Reply:
		c.present().AppendBubble(Bubble{Text: o.Text, Kind: BubbleReply})
	case dispatch.BackendError:
		c.present().AppendBubble(Bubble{Text: c.cfg.Messages.BackendErrorPrefix + o.Text, Kind: BubbleBackendError})
	default:
		c.present().AppendBubble(Bubble{Text: c.cfg.Messages.TransportFailure, Kind: BubbleTransportFailure})
	}
}

func (c *Controller) evaluate(p crisis.Perception) {
	for _, sig := range c.cfg.Detector.Evaluate(p) {
		c.raise(sig)
	}
}

func (c *Controller) evaluateText(text string) {
	if sig, ok := c.cfg.Detector.Textual(text); ok {
		sig.Label = c.label
		c.raise(sig)
	}
}

func (c *Controller) raise(sig crisis.Signal) {
	if c.cfg.Gate != nil && !c.cfg.Gate.Allow(c.ctx, sig.Kind) {
		metrics.CrisisSuppressed.WithLabelValues(sig.Kind.String()).Inc()
		return
	}
	metrics.CrisisSignals.WithLabelValues(sig.Kind.String()).Inc()
	slog.Warn("crisis signal", "session_id", c.cfg.SessionID, "kind", sig.Kind.String(), "detail", sig.Detail)

	c.present().ShowCrisisAlert(sig)
	if c.cfg.Journal != nil {
		c.cfg.Journal.RecordSignal(sig)
	}
	if c.cfg.Publisher != nil {
		if err := c.cfg.Publisher.Publish(crisis.NewAlert(c.cfg.SessionID, sig)); err != nil {
			slog.Warn("publish crisis alert failed", "error", err, "session_id", c.cfg.SessionID)
		}
	}
}

func (c *Controller) present() Presenter {
	return c.cfg.Presenter
}
