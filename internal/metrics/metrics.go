package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "companion_sessions_active",
		Help: "Currently connected companion sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companion_sessions_total",
		Help: "Total companion sessions accepted",
	})

	ListeningActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "companion_listening_active",
		Help: "Sessions currently in the listening state",
	})

	EmotionSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emotion_samples_total",
		Help: "Sampling ticks by outcome (dominant category, none, skipped)",
	}, []string{"result"})

	ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "emotion_classify_duration_seconds",
		Help:    "Face expression sidecar latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1.0},
	})

	TranscriptUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_updates_total",
		Help: "Recognition result events applied to the transcript buffer",
	})

	ASRDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_segment_duration_seconds",
		Help:    "Whisper fallback latency per speech segment",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_speech_segments_total",
		Help: "Speech segments detected by the energy segmenter",
	})

	SensorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_failures_total",
		Help: "Non-fatal sensor failures by sensor",
	}, []string{"sensor"})

	CrisisSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crisis_signals_total",
		Help: "Crisis alerts raised by kind",
	}, []string{"kind"})

	CrisisSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crisis_signals_suppressed_total",
		Help: "Crisis signals swallowed by the cooldown gate",
	}, []string{"kind"})

	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_turns_total",
		Help: "Dispatched turns by outcome",
	}, []string{"outcome"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_duration_seconds",
		Help:    "Round trip to the chat backend",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0},
	})

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_total",
		Help: "Chat backend requests by HTTP status",
	}, []string{"status"})

	LLMDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_llm_duration_seconds",
		Help:    "LLM completion latency by engine",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"engine"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
