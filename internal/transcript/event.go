// Package transcript turns streaming speech recognition results into the
// current utterance text.
package transcript

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupported is returned by Recognizer.Open when speech recognition is
// not available for the session.
var ErrUnsupported = errors.New("speech recognition unsupported")

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result holds the alternatives for one recognized phrase, best first.
type Result []Alternative

// EventType distinguishes result and error events.
type EventType int

const (
	EventResult EventType = iota
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one message from a recognition stream. Results holds the full
// result list of the recognition session; ResultIndex is the first entry
// that changed.
type Event struct {
	Type        EventType
	ResultIndex int
	Results     []Result
	Err         error
}

// Reconstruct returns the concatenation of the top alternative of every
// result from ResultIndex to the end.
func Reconstruct(ev Event) string {
	start := max(0, ev.ResultIndex)
	if start >= len(ev.Results) {
		return ""
	}
	var b strings.Builder
	for _, r := range ev.Results[start:] {
		if len(r) == 0 {
			continue
		}
		b.WriteString(r[0].Transcript)
	}
	return b.String()
}

// Recognizer opens recognition streams.
type Recognizer interface {
	Open(ctx context.Context, lang string) (Stream, error)
}

// Stream delivers recognition events. The Events channel is closed when the
// stream ends; no terminal event is sent.
type Stream interface {
	Events() <-chan Event
	Close() error
}
