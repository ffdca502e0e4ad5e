package ws

import (
	"errors"

	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
	"github.com/hubenschmidt/xinqing-companion/internal/transcript"
)

// sessionMetadata is the first text frame sent by the client.
type sessionMetadata struct {
	SpeechSupported bool   `json:"speech_supported"`
	Lang            string `json:"lang"`
	Video           string `json:"video"` // "expressions" (default) or "frames"
	AudioSampleRate int    `json:"audio_sample_rate"`
	UserID          string `json:"user_id"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// clientMessage is any JSON frame after the metadata. Only the fields of the
// given Type are set.
type clientMessage struct {
	Type        string             `json:"type"`
	Text        string             `json:"text,omitempty"`
	State       string             `json:"state,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	JPEG        []byte             `json:"jpeg,omitempty"`
	ResultIndex int                `json:"result_index,omitempty"`
	Results     [][]alternative    `json:"results,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (m clientMessage) distribution() emotion.Distribution {
	return emotion.Distribution(m.Scores)
}

func (m clientMessage) speechEvent() transcript.Event {
	if m.Type == "speech_error" {
		return transcript.Event{Type: transcript.EventError, Err: errors.New(m.Error)}
	}
	results := make([]transcript.Result, len(m.Results))
	for i, alts := range m.Results {
		r := make(transcript.Result, len(alts))
		for j, a := range alts {
			r[j] = transcript.Alternative{Transcript: a.Transcript, Confidence: a.Confidence}
		}
		results[i] = r
	}
	return transcript.Event{Type: transcript.EventResult, ResultIndex: m.ResultIndex, Results: results}
}

// Event is sent to the client as a JSON text frame.
type Event struct {
	Type           string  `json:"type"`
	SessionID      string  `json:"session_id,omitempty"`
	Text           string  `json:"text,omitempty"`
	Role           string  `json:"role,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	Emotion        string  `json:"emotion,omitempty"`
	Score          float64 `json:"score,omitempty"`
	Detail         string  `json:"detail,omitempty"`
	DismissAfterMs int64   `json:"dismiss_after_ms,omitempty"`
	State          string  `json:"state,omitempty"`
}

// EventCallback delivers one event to the client.
type EventCallback func(Event)
