package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// Buffer holds the text of the utterance in progress. Each update replaces
// the previous text.
type Buffer struct {
	mu   sync.Mutex
	text string
}

func (b *Buffer) Replace(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Freeze returns the current text and clears the buffer.
func (b *Buffer) Freeze() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.text
	b.text = ""
	return text
}

func (b *Buffer) Reset() { b.Replace("") }

// Update is a reconstructed transcript tagged with the session generation
// that produced it.
type Update struct {
	Gen  uint64
	Text string
}

// UpdateFunc receives updates from the accumulator goroutine. It must return
// promptly once ctx is done.
type UpdateFunc func(ctx context.Context, u Update)

// Accumulator subscribes to a recognizer and forwards reconstructed text.
type Accumulator struct {
	rec  Recognizer
	lang string

	mu     sync.Mutex
	cancel context.CancelFunc
	stream Stream
	done   chan struct{}
	last   string
	seen   bool
}

// NewAccumulator creates a stopped accumulator.
func NewAccumulator(rec Recognizer, lang string) *Accumulator {
	return &Accumulator{rec: rec, lang: lang}
}

// Start opens a recognition stream. It returns ErrUnsupported (wrapped) when
// the recognizer is unavailable.
func (a *Accumulator) Start(parent context.Context, gen uint64, emit UpdateFunc) error {
	a.Stop()

	ctx, cancel := context.WithCancel(parent)
	stream, err := a.rec.Open(ctx, a.lang)
	if err != nil {
		cancel()
		return fmt.Errorf("open recognizer: %w", err)
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.cancel, a.stream, a.done = cancel, stream, done
	a.last, a.seen = "", false
	a.mu.Unlock()

	go a.run(ctx, gen, stream, emit, done)
	return nil
}

// Stop closes the stream and waits for the forwarding goroutine to exit.
// Events already queued on the stream are consumed without being emitted;
// Stop returns the text of the last result received, including those whose
// update may never have reached the caller. seen is false when no result
// arrived since Start.
func (a *Accumulator) Stop() (last string, seen bool) {
	a.mu.Lock()
	cancel, stream, done := a.cancel, a.stream, a.done
	a.cancel, a.stream, a.done = nil, nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return "", false
	}
	// Close before cancel so buffered results are still drained.
	if err := stream.Close(); err != nil {
		slog.Warn("close recognition stream", "error", err)
	}
	cancel()
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.seen
}

func (a *Accumulator) record(ev Event) (string, bool) {
	switch ev.Type {
	case EventError:
		metrics.SensorFailures.WithLabelValues("speech").Inc()
		slog.Warn("speech recognition error", "error", ev.Err)
		return "", false
	case EventResult:
		metrics.TranscriptUpdates.Inc()
		text := Reconstruct(ev)
		a.mu.Lock()
		a.last, a.seen = text, true
		a.mu.Unlock()
		return text, true
	}
	return "", false
}

func (a *Accumulator) run(ctx context.Context, gen uint64, stream Stream, emit UpdateFunc, done chan struct{}) {
	defer close(done)

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			a.drain(events)
			return
		case ev, ok := <-events:
			if !ok {
				slog.Debug("recognition stream ended")
				return
			}
			if text, ok := a.record(ev); ok {
				emit(ctx, Update{Gen: gen, Text: text})
			}
		}
	}
}

// drain records whatever is still buffered without blocking.
func (a *Accumulator) drain(events <-chan Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.record(ev)
		default:
			return
		}
	}
}
