// Package dispatch delivers finalized turns to the chat backend.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// Turn is one user utterance paired with the emotion perceived when it was
// submitted.
type Turn struct {
	Text    string
	Emotion emotion.Label
}

// OutcomeKind classifies how a dispatch ended.
type OutcomeKind int

const (
	Reply OutcomeKind = iota
	BackendError
	TransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Reply:
		return "reply"
	case BackendError:
		return "backend_error"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Outcome is the single result of one dispatch. Text holds the reply for
// Reply and the backend's message for BackendError.
type Outcome struct {
	Turn    Turn
	Kind    OutcomeKind
	Text    string
	Err     error
	Latency time.Duration
}

// Backend performs one exchange. Implementations classify every failure into
// an Outcome instead of returning an error.
type Backend interface {
	Chat(ctx context.Context, turn Turn) Outcome
}

// Dispatcher runs each turn on its own goroutine. Turns are independent and
// their outcomes may arrive in any order. There is no retry.
type Dispatcher struct {
	backend Backend
	wg      sync.WaitGroup
}

// New creates a dispatcher over backend.
func New(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// Dispatch sends turn in the background and calls deliver exactly once with
// the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, turn Turn, deliver func(Outcome)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		start := time.Now()
		out := d.backend.Chat(ctx, turn)
		out.Turn = turn
		out.Latency = time.Since(start)

		metrics.Turns.WithLabelValues(out.Kind.String()).Inc()
		metrics.DispatchDuration.Observe(out.Latency.Seconds())
		switch out.Kind {
		case TransportFailure:
			slog.Error("chat backend unreachable", "error", out.Err, "latency_ms", out.Latency.Milliseconds())
		case BackendError:
			slog.Warn("chat backend error", "error", out.Text, "latency_ms", out.Latency.Milliseconds())
		default:
			slog.Info("chat reply", "emotion", turn.Emotion.Category, "latency_ms", out.Latency.Milliseconds())
		}

		deliver(out)
	}()
}

// Wait blocks until every in-flight dispatch has delivered.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
