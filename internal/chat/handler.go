package chat

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/dispatch"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
	"github.com/hubenschmidt/xinqing-companion/internal/prompts"
)

// HandlerConfig configures the /chat endpoint.
type HandlerConfig struct {
	Router       *Router[Responder]
	Engine       string
	APIKey       string // empty disables auth
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// Handler serves POST /chat.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a chat handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.SystemPrompt = prompts.ForSession(cfg.SystemPrompt)
	return &Handler{cfg: cfg}
}

// RegisterRoutes mounts /chat and /health on mux behind CORS and auth.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.Handle("/chat", cors(h.auth(http.HandlerFunc(h.chat))))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"engine":   h.cfg.Engine,
			"fallback": !h.cfg.Router.Has(h.cfg.Engine),
			"engines":  h.cfg.Router.Engines(),
		})
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) auth(next http.Handler) http.Handler {
	want := []byte("Bearer " + h.cfg.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			h.fail(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req dispatch.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		h.fail(w, http.StatusBadRequest, "No message provided")
		return
	}

	responder, err := h.cfg.Router.Route(h.cfg.Engine)
	if err != nil {
		slog.Error("chat route", "engine", h.cfg.Engine, "error", err)
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := responder.Reply(ctx, Completion{
		System:      h.cfg.SystemPrompt,
		User:        prompts.UserTurn(req.Emotion, req.Message),
		Temperature: h.cfg.Temperature,
		MaxTokens:   h.cfg.MaxTokens,
	})
	if err != nil {
		slog.Error("chat completion failed", "engine", h.cfg.Engine, "error", err)
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("chat reply", "engine", h.cfg.Engine, "emotion", req.Emotion,
		"latency_ms", time.Since(start).Milliseconds())
	metrics.ChatRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, dispatch.ChatResponse{Response: strings.TrimSpace(reply)})
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	metrics.ChatRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	writeJSON(w, status, dispatch.ChatResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
