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

	"github.com/hubenschmidt/xinqing-companion/internal/audio"
	"github.com/hubenschmidt/xinqing-companion/internal/config"
	"github.com/hubenschmidt/xinqing-companion/internal/conversation"
	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/dispatch"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
	"github.com/hubenschmidt/xinqing-companion/internal/journal"
	"github.com/hubenschmidt/xinqing-companion/internal/transcript"
	"github.com/hubenschmidt/xinqing-companion/internal/ws"
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

	rules, err := crisisRules(cfg.Crisis)
	if err != nil {
		slog.Error("crisis rules", "error", err)
		os.Exit(1)
	}

	backend := dispatch.NewClient(dispatch.ClientConfig{
		URL:      cfg.Backend.URL,
		APIKey:   cfg.Backend.APIKey,
		Timeout:  cfg.Backend.Timeout,
		PoolSize: cfg.Backend.PoolSize,
	})
	dispatcher := dispatch.New(backend)

	handlerCfg := ws.HandlerConfig{
		MaxConcurrent:  cfg.Server.MaxSessions,
		SampleInterval: cfg.Sampling.Interval,
		FeedStaleAfter: cfg.Sampling.FeedStaleAfter,
		Language:       cfg.Speech.Language,
		Segmenter:      segmenterConfig(cfg.Speech),
		Rules:          rules,
		Cooldown:       cfg.Crisis.Cooldown,
		Dispatcher:     dispatcher,
		JournalBuffer:  cfg.Journal.Buffer,
		Messages:       messages(cfg.Messages),
		Notes: ws.Notes{
			Emotion:       cfg.Messages.EmotionNote,
			VisualAlert:   cfg.Messages.VisualAlert,
			TextualAlert:  cfg.Messages.TextualAlert,
			AlertDuration: cfg.Crisis.AlertDuration,
		},
	}

	if cfg.Vision.ClassifierURL != "" {
		handlerCfg.Classifier = emotion.NewFaceClient(emotion.FaceClientConfig{
			URL:             cfg.Vision.ClassifierURL,
			Timeout:         cfg.Vision.Timeout,
			PoolSize:        cfg.Vision.PoolSize,
			BreakerFailures: cfg.Vision.BreakerFailures,
			BreakerOpenFor:  cfg.Vision.BreakerOpenFor,
		})
		slog.Info("face classifier enabled", "url", cfg.Vision.ClassifierURL)
	}
	if cfg.Speech.WhisperURL != "" {
		handlerCfg.Transcriber = transcript.NewWhisperClient(cfg.Speech.WhisperURL, cfg.Speech.WhisperPoolSize)
		slog.Info("server speech fallback enabled", "url", cfg.Speech.WhisperURL)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if cfg.Crisis.RedisURL != "" {
		rdb, rErr := crisis.NewRedisClient(initCtx, cfg.Crisis.RedisURL)
		if rErr != nil {
			slog.Warn("redis unavailable, using per-session cooldown", "error", rErr)
		} else {
			defer rdb.Close()
			handlerCfg.Redis = rdb
			slog.Info("shared crisis cooldown enabled")
		}
	}
	initCancel()

	if cfg.Crisis.NATSURL != "" {
		pub, pErr := crisis.NewNATSPublisher(cfg.Crisis.NATSURL, cfg.Crisis.NATSSubject)
		if pErr != nil {
			slog.Warn("nats unavailable, crisis escalation disabled", "error", pErr)
		} else {
			defer pub.Close()
			handlerCfg.Publisher = pub
			slog.Info("crisis escalation enabled", "subject", cfg.Crisis.NATSSubject)
		}
	}

	var store *journal.Store
	if cfg.Journal.DatabaseURL != "" {
		store, err = journal.Open(cfg.Journal.DatabaseURL)
		if err != nil {
			slog.Warn("journal disabled", "error", err)
		} else {
			defer store.Close()
			handlerCfg.Journal = store
			slog.Info("journal enabled")
		}
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		wsHandler:    ws.NewHandler(handlerCfg),
		journalStore: store,
		keywords:     rules.Keywords,
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("companion starting", "addr", cfg.Server.Addr, "max_sessions", cfg.Server.MaxSessions,
		"backend", cfg.Backend.URL, "keywords", len(rules.Keywords))

	if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	dispatcher.Wait()
	slog.Info("companion stopped")
}

func crisisRules(c config.CrisisConfig) (crisis.Rules, error) {
	keywords := c.Keywords
	if c.LexiconFile != "" {
		lex, err := crisis.LoadLexicon(c.LexiconFile)
		if err != nil {
			return crisis.Rules{}, err
		}
		keywords = crisis.MergeKeywords(keywords, lex.Keywords())
	}

	rules := crisis.DefaultRules(crisis.MergeKeywords(keywords))
	rules.Threshold = c.Threshold
	if len(c.Categories) > 0 {
		rules.Categories = rules.Categories[:0]
		for _, name := range c.Categories {
			cat, ok := emotion.ParseCategory(name)
			if !ok {
				slog.Warn("unknown crisis category ignored", "category", name)
				continue
			}
			rules.Categories = append(rules.Categories, cat)
		}
	}
	return rules, nil
}

func segmenterConfig(s config.SpeechConfig) audio.SegmenterConfig {
	seg := audio.DefaultSegmenterConfig()
	if s.SpeechThreshold != 0 {
		seg.ThresholdDB = s.SpeechThreshold
	}
	if s.SilenceTimeoutMs > 0 {
		seg.SilenceTimeout = time.Duration(s.SilenceTimeoutMs) * time.Millisecond
	}
	if s.MinSpeechMs > 0 {
		seg.MinSpeech = time.Duration(s.MinSpeechMs) * time.Millisecond
	}
	return seg
}

func messages(m config.MessagesConfig) conversation.Messages {
	return conversation.Messages{
		Greeting:           m.Greeting,
		Thinking:           m.Thinking,
		NothingSaid:        m.NothingSaid,
		SpeechUnsupported:  m.SpeechUnsupport,
		BackendErrorPrefix: m.BackendError,
		TransportFailure:   m.TransportFailure,
	}
}
