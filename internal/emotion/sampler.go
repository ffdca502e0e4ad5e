package emotion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// Source produces expression distributions on demand.
// Detect returns found=false when no face is present.
type Source interface {
	Available() bool
	Detect(ctx context.Context) (dist Distribution, found bool, err error)
}

// Reading is the result of one sampling tick.
type Reading struct {
	Gen      uint64
	Label    Label
	Detected bool
	Err      error
}

// EmitFunc receives readings from the sampler goroutine. It must return
// promptly once ctx is done.
type EmitFunc func(ctx context.Context, r Reading)

// Sampler polls a Source on a fixed interval while started.
type Sampler struct {
	src      Source
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a stopped sampler.
func NewSampler(src Source, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Sampler{src: src, interval: interval}
}

// Start begins sampling. Readings are tagged with gen. A sampler that is
// already running is restarted.
func (s *Sampler) Start(parent context.Context, gen uint64, emit EmitFunc) {
	s.Stop()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, gen, emit, done)
}

// Stop halts sampling and waits for the sampling goroutine to exit. No
// reading is emitted after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the sampler is started.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) run(ctx context.Context, gen uint64, emit EmitFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r, ok := s.tick(ctx, gen)
		if !ok || ctx.Err() != nil {
			continue
		}
		emit(ctx, r)
	}
}

func (s *Sampler) tick(ctx context.Context, gen uint64) (Reading, bool) {
	if !s.src.Available() {
		metrics.EmotionSamples.WithLabelValues("skipped").Inc()
		return Reading{}, false
	}

	dist, found, err := s.src.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, false
		}
		metrics.SensorFailures.WithLabelValues("camera").Inc()
		slog.Warn("emotion detection failed", "error", err)
		return Reading{Gen: gen, Err: err}, true
	}
	if !found {
		metrics.EmotionSamples.WithLabelValues("none").Inc()
		return Reading{Gen: gen}, true
	}

	label, ok := Dominant(dist)
	if !ok {
		metrics.EmotionSamples.WithLabelValues("none").Inc()
		return Reading{Gen: gen}, true
	}
	metrics.EmotionSamples.WithLabelValues(string(label.Category)).Inc()
	return Reading{Gen: gen, Label: label, Detected: true}, true
}
