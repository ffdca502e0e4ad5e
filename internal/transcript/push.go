package transcript

import (
	"context"
	"log/slog"
	"sync"
)

// PushRecognizer relays results from the browser's own speech recognition,
// forwarded over the session socket. Only one stream is open at a time;
// pushes with no open stream are dropped.
type PushRecognizer struct {
	supported bool

	mu  sync.Mutex
	cur *pushStream
}

// NewPushRecognizer creates a recognizer for a client that declared whether
// it can recognize speech.
func NewPushRecognizer(supported bool) *PushRecognizer {
	return &PushRecognizer{supported: supported}
}

func (p *PushRecognizer) Open(_ context.Context, _ string) (Stream, error) {
	if !p.supported {
		return nil, ErrUnsupported
	}
	s := &pushStream{owner: p, ch: make(chan Event, 64)}

	p.mu.Lock()
	prev := p.cur
	p.cur = s
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return s, nil
}

// Push delivers an event to the open stream. It reports whether the event
// was accepted.
func (p *PushRecognizer) Push(ev Event) bool {
	p.mu.Lock()
	s := p.cur
	p.mu.Unlock()
	if s == nil {
		return false
	}
	return s.send(ev)
}

// End closes the open stream, as when the browser's recognizer stops on its
// own.
func (p *PushRecognizer) End() {
	p.mu.Lock()
	s := p.cur
	p.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

type pushStream struct {
	owner *PushRecognizer

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *pushStream) Events() <-chan Event { return s.ch }

func (s *pushStream) send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		slog.Warn("recognition stream full, dropping event", "type", ev.Type)
		return false
	}
}

func (s *pushStream) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	s.owner.mu.Lock()
	if s.owner.cur == s {
		s.owner.cur = nil
	}
	s.owner.mu.Unlock()
	return nil
}
