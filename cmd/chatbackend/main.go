package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/xinqing-companion/internal/chat"
	"github.com/hubenschmidt/xinqing-companion/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./configs/config.yaml)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.Logging))

	c := cfg.Chat
	backends := map[string]chat.Responder{
		"openai": chat.NewOpenAIResponder(c.OpenAI.BaseURL, c.OpenAI.APIKey, c.OpenAI.Model, c.Timeout),
		"agent":  chat.NewAgentResponder(c.OpenAI.BaseURL, c.OpenAI.APIKey, c.OpenAI.Model),
	}
	if c.Ollama.URL != "" {
		backends["ollama"] = chat.NewOllamaResponder(c.Ollama.URL, c.Ollama.Model, c.Ollama.PoolSize, c.Timeout)
	}
	if c.OpenAI.APIKey == "" && c.Engine != "ollama" {
		slog.Warn("no model api key configured; completions will fail", "engine", c.Engine)
	}

	router := chat.NewRouter(backends, "openai")
	if !router.Has(c.Engine) {
		slog.Warn("configured engine not registered, using fallback", "engine", c.Engine,
			"fallback", "openai", "engines", router.Engines())
	}

	handler := chat.NewHandler(chat.HandlerConfig{
		Router:       router,
		Engine:       c.Engine,
		APIKey:       c.APIKey,
		SystemPrompt: c.SystemPrompt,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		Timeout:      c.Timeout,
	})

	mux := http.NewServeMux()
	chat.RegisterRoutes(mux, handler)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Addr: c.Addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("chat backend starting", "addr", c.Addr, "engine", c.Engine, "auth", c.APIKey != "")

	if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("chat backend stopped")
}
