package crisis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Alert is the escalation message published for every alert raised.
type Alert struct {
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	Detail    string    `json:"detail"`
	Emotion   string    `json:"emotion"`
	Score     float64   `json:"score"`
	At        time.Time `json:"at"`
}

// NewAlert builds the escalation payload for a signal.
func NewAlert(sessionID string, s Signal) Alert {
	return Alert{
		SessionID: sessionID,
		Kind:      s.Kind,
		Detail:    s.Detail,
		Emotion:   string(s.Label.Category),
		Score:     s.Label.Score,
		At:        s.At,
	}
}

// Publisher forwards alerts to an out-of-band monitor.
type Publisher interface {
	Publish(a Alert) error
}

// NATSPublisher publishes alerts on <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("xinqing-companion"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	slog.Info("connected to nats", "url", url)
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

// Subject returns the subject an alert of kind is published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return p.prefix + "." + kind.String()
}

// Publish is non-blocking; nats buffers while reconnecting.
func (p *NATSPublisher) Publish(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.conn.Publish(p.Subject(a.Kind), data)
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
