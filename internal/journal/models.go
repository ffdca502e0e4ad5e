package journal

import "time"

// Session is one companion WebSocket connection.
type Session struct {
	ID          string     `json:"id"`
	Metadata    string     `json:"metadata"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	TurnCount   int        `json:"turn_count"`
	SignalCount int        `json:"signal_count"`
}

// Turn is one dispatched utterance and how the backend answered it.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion"`
	Score     float64   `json:"score"`
	Outcome   string    `json:"outcome"`
	Reply     string    `json:"reply,omitempty"`
	LatencyMs float64   `json:"latency_ms"`
}

// Signal is one crisis alert that passed the cooldown.
type Signal struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	RaisedAt  time.Time `json:"raised_at"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Emotion   string    `json:"emotion"`
	Score     float64   `json:"score"`
}
