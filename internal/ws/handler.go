package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/hubenschmidt/xinqing-companion/internal/audio"
	"github.com/hubenschmidt/xinqing-companion/internal/conversation"
	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
	"github.com/hubenschmidt/xinqing-companion/internal/journal"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
	"github.com/hubenschmidt/xinqing-companion/internal/transcript"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared clients and settings for all sessions.
// Classifier, Transcriber, Redis, Publisher and Journal are optional.
type HandlerConfig struct {
	MaxConcurrent  int
	SampleInterval time.Duration
	FeedStaleAfter time.Duration
	Language       string

	Classifier  emotion.Classifier
	Transcriber transcript.Transcriber
	Segmenter   audio.SegmenterConfig

	Rules     crisis.Rules
	Cooldown  time.Duration
	Redis     *redis.Client
	Publisher crisis.Publisher

	Dispatcher    conversation.Dispatcher
	Journal       journal.Writer
	JournalBuffer int

	Messages conversation.Messages
	Notes    Notes
}

// Handler manages companion WebSocket sessions with admission control.
type Handler struct {
	cfg      HandlerConfig
	detector *crisis.Detector
	sem      chan struct{}
}

// NewHandler creates a WebSocket handler with shared clients and a
// concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	if cfg.Language == "" {
		cfg.Language = "yue-Hant-HK"
	}
	return &Handler{
		cfg:      cfg,
		detector: crisis.NewDetector(cfg.Rules),
		sem:      make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the session.
// Returns 503 if at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(conn)
}

// session holds one connection's sensors and controller.
type session struct {
	id         string
	ctl        *conversation.Controller
	feed       *emotion.Feed
	frames     *emotion.FrameFeed
	push       *transcript.PushRecognizer
	whisper    *transcript.WhisperRecognizer
	sampleRate int
	send       EventCallback
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, raw, err := readMetadata(conn)
	if err != nil {
		slog.Error("read metadata", "error", err)
		return
	}

	sessionID := uuid.NewString()
	send := newEventSender(conn)
	s := h.newSession(sessionID, meta, send)

	var rec *journal.Recorder
	if h.cfg.Journal != nil {
		rec = journal.NewRecorder(h.cfg.Journal, sessionID, string(raw), h.cfg.JournalBuffer)
	}
	defer rec.Close()

	subject := meta.UserID
	if subject == "" {
		subject = sessionID
	}

	s.ctl = conversation.New(conversation.Config{
		SessionID:   sessionID,
		Messages:    h.cfg.Messages,
		Sampler:     emotion.NewSampler(s.source(), h.cfg.SampleInterval),
		Accumulator: transcript.NewAccumulator(s.recognizer(), meta.Lang),
		Detector:    h.detector,
		Gate:        h.gate(subject),
		Publisher:   h.cfg.Publisher,
		Dispatcher:  h.cfg.Dispatcher,
		Presenter:   &presenter{send: send, notes: h.cfg.Notes},
		Journal:     rec,
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.ctl.Run(ctx)
	}()

	slog.Info("session started", "session_id", sessionID, "lang", meta.Lang, "video", meta.Video,
		"speech_supported", meta.SpeechSupported, "whisper", s.whisper != nil)
	send(Event{Type: "ready", SessionID: sessionID, State: conversation.Idle.String()})

	processMessages(ctx, conn, s)

	cancel()
	<-runDone
	slog.Info("session ended", "session_id", sessionID)
}

func (h *Handler) newSession(id string, meta *sessionMetadata, send EventCallback) *session {
	if meta.Lang == "" {
		meta.Lang = h.cfg.Language
	}
	s := &session{id: id, sampleRate: meta.AudioSampleRate, send: send}
	if s.sampleRate <= 0 {
		s.sampleRate = 16000
	}

	if meta.Video == "frames" {
		s.frames = emotion.NewFrameFeed(h.cfg.Classifier, h.cfg.FeedStaleAfter)
	} else {
		s.feed = emotion.NewFeed(h.cfg.FeedStaleAfter)
	}

	// Browser recognition wins; the server fallback needs a transcriber.
	switch {
	case meta.SpeechSupported:
		s.push = transcript.NewPushRecognizer(true)
	case h.cfg.Transcriber != nil:
		s.whisper = transcript.NewWhisperRecognizer(h.cfg.Transcriber, h.cfg.Segmenter)
	default:
		s.push = transcript.NewPushRecognizer(false)
	}
	return s
}

func (h *Handler) gate(subject string) crisis.Gate {
	if h.cfg.Redis != nil {
		return crisis.NewRedisGate(h.cfg.Redis, subject, h.cfg.Cooldown)
	}
	return crisis.NewMemoryGate(h.cfg.Cooldown)
}

func (s *session) source() emotion.Source {
	if s.frames != nil {
		return s.frames
	}
	return s.feed
}

func (s *session) recognizer() transcript.Recognizer {
	if s.whisper != nil {
		return s.whisper
	}
	return s.push
}

// processMessages reads frames until the connection closes. Binary frames
// are PCM16 audio for the server-side recognizer; text frames are JSON
// client messages.
func processMessages(ctx context.Context, conn *websocket.Conn, s *session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", s.id, "error", err)
			return
		}

		if msgType == websocket.BinaryMessage {
			s.feedAudio(data)
			continue
		}

		var msg clientMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			s.send(Event{Type: "error", Text: "invalid message: " + err.Error()})
			continue
		}
		if err = s.handle(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, conversation.ErrClosed) {
				return
			}
			slog.Warn("handle message", "session_id", s.id, "type", msg.Type, "error", err)
		}
	}
}

func (s *session) feedAudio(data []byte) {
	if s.whisper == nil {
		return
	}
	s.whisper.Feed(audio.To16k(audio.DecodePCM16(data), s.sampleRate))
}

func (s *session) handle(ctx context.Context, msg clientMessage) error {
	switch msg.Type {
	case "start":
		err := s.ctl.Start(ctx)
		s.sendState(ctx)
		if errors.Is(err, conversation.ErrCapabilityUnsupported) {
			return nil
		}
		return err
	case "stop":
		if s.whisper != nil {
			s.whisper.Drain(ctx)
		}
		err := s.ctl.Stop(ctx)
		s.sendState(ctx)
		return err
	case "cancel":
		err := s.ctl.Cancel(ctx)
		s.sendState(ctx)
		return err
	case "text":
		return s.ctl.Submit(ctx, msg.Text)
	case "video":
		s.setVideoState(emotion.VideoState(msg.State))
	case "expressions":
		if s.feed != nil {
			s.feed.Push(msg.distribution())
		}
	case "frame":
		if s.frames != nil {
			s.frames.Push(msg.JPEG)
		}
	case "speech_result", "speech_error":
		if s.push != nil {
			s.push.Push(msg.speechEvent())
		}
	case "speech_end":
		if s.push != nil {
			s.push.End()
		}
	default:
		s.send(Event{Type: "error", Text: "unknown message type: " + msg.Type})
	}
	return nil
}

func (s *session) setVideoState(state emotion.VideoState) {
	if s.frames != nil {
		s.frames.SetVideoState(state)
		return
	}
	s.feed.SetVideoState(state)
}

func (s *session) sendState(ctx context.Context) {
	snap, err := s.ctl.Snapshot(ctx)
	if err != nil {
		return
	}
	s.send(Event{Type: "state", State: snap.State.String()})
}

func newEventSender(conn *websocket.Conn) EventCallback {
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Debug("write event", "type", ev.Type, "error", err)
		}
	}
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, []byte, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, nil, err
	}
	return &meta, data, nil
}
