// Package chat is the companion's chat backend: it turns {message, emotion}
// into a short Cantonese reply from a language model.
package chat

import "context"

// Completion controls one model call.
type Completion struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Responder produces one reply for a completion request.
type Responder interface {
	Reply(ctx context.Context, c Completion) (string, error)
}
