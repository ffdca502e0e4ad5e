package journal

import (
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/dispatch"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

const maxTextLen = 500

// Writer is the write side of Store.
type Writer interface {
	CreateSession(id, metadata string) error
	EndSession(id string) error
	InsertTurn(t Turn) error
	InsertSignal(s Signal) error
}

type entry struct {
	kind   string // "session_create", "session_end", "turn", "signal"
	meta   string
	turn   Turn
	signal Signal
}

// Recorder writes one session's history asynchronously via a buffered
// channel. All methods are nil-safe (no-op on nil receiver). Entries are
// dropped, not queued, when the buffer is full.
type Recorder struct {
	w         Writer
	sessionID string
	ch        chan entry
	done      chan struct{}
}

// NewRecorder creates the session row and returns a recorder bound to it.
// Must call Close when done.
func NewRecorder(w Writer, sessionID, metadata string, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &Recorder{
		w:         w,
		sessionID: sessionID,
		ch:        make(chan entry, buffer),
		done:      make(chan struct{}),
	}
	r.ch <- entry{kind: "session_create", meta: metadata}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.ch {
		r.handle(e)
	}
}

func (r *Recorder) handle(e entry) {
	handlers := map[string]func() error{
		"session_create": func() error { return r.w.CreateSession(r.sessionID, e.meta) },
		"session_end":    func() error { return r.w.EndSession(r.sessionID) },
		"turn":           func() error { return r.w.InsertTurn(e.turn) },
		"signal":         func() error { return r.w.InsertSignal(e.signal) },
	}
	fn, ok := handlers[e.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		metrics.Errors.WithLabelValues("journal", "write").Inc()
		slog.Warn("journal write failed", "kind", e.kind, "error", err, "session_id", r.sessionID)
	}
}

func (r *Recorder) send(e entry) {
	select {
	case r.ch <- e:
	default:
		metrics.Errors.WithLabelValues("journal", "dropped").Inc()
		slog.Warn("journal buffer full, dropping entry", "kind", e.kind, "session_id", r.sessionID)
	}
}

// RecordTurn stores a dispatched turn with its outcome.
func (r *Recorder) RecordTurn(o dispatch.Outcome) {
	if r == nil {
		return
	}
	reply := o.Text
	if o.Kind == dispatch.TransportFailure && o.Err != nil {
		reply = o.Err.Error()
	}
	r.send(entry{kind: "turn", turn: Turn{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		CreatedAt: time.Now(),
		Text:      truncate(o.Turn.Text, maxTextLen),
		Emotion:   string(o.Turn.Emotion.Category),
		Score:     o.Turn.Emotion.Score,
		Outcome:   o.Kind.String(),
		Reply:     truncate(reply, maxTextLen),
		LatencyMs: float64(o.Latency.Microseconds()) / 1000,
	}})
}

// RecordSignal stores a crisis alert.
func (r *Recorder) RecordSignal(s crisis.Signal) {
	if r == nil {
		return
	}
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	r.send(entry{kind: "signal", signal: Signal{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		RaisedAt:  at,
		Kind:      s.Kind.String(),
		Detail:    s.Detail,
		Emotion:   string(s.Label.Category),
		Score:     s.Label.Score,
	}})
}

// Close marks the session ended, drains pending writes and stops the
// background goroutine.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.ch <- entry{kind: "session_end"}
	close(r.ch)
	<-r.done
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
