package ws

import (
	"fmt"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/conversation"
	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
)

// Notes are the lines attached to finalized bubbles and crisis alerts.
type Notes struct {
	Emotion       string // format with one %s for the label
	VisualAlert   string
	TextualAlert  string
	AlertDuration time.Duration
}

// presenter renders conversation output as client events.
type presenter struct {
	send  EventCallback
	notes Notes
}

func (p *presenter) AppendBubble(b conversation.Bubble) {
	role := "companion"
	if b.FromUser {
		role = "user"
	}
	p.send(Event{Type: "bubble", Text: b.Text, Role: role, Kind: string(b.Kind)})
}

func (p *presenter) UpdateUserBubble(text string) {
	p.send(Event{Type: "user_bubble", Text: text})
}

func (p *presenter) FinalizeUserBubble(l emotion.Label) {
	ev := Event{Type: "user_bubble_final", Emotion: string(l.Category), Score: l.Score}
	if p.notes.Emotion != "" {
		ev.Text = fmt.Sprintf(p.notes.Emotion, l.String())
	}
	p.send(ev)
}

func (p *presenter) ShowCrisisAlert(sig crisis.Signal) {
	text := p.notes.TextualAlert
	if sig.Kind == crisis.VisualDistress {
		text = p.notes.VisualAlert
	}
	p.send(Event{
		Type:           "crisis_alert",
		Kind:           sig.Kind.String(),
		Detail:         sig.Detail,
		Text:           text,
		Emotion:        string(sig.Label.Category),
		Score:          sig.Label.Score,
		DismissAfterMs: p.notes.AlertDuration.Milliseconds(),
	})
}
