package config

import "time"

// Config is the full configuration shared by the companion gateway and the
// chat backend. Each binary reads the sections it needs.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Crisis   CrisisConfig   `mapstructure:"crisis"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Messages MessagesConfig `mapstructure:"messages"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SamplingConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	FeedStaleAfter time.Duration `mapstructure:"feed_stale_after"`
}

// VisionConfig points at the optional face expression sidecar used when the
// browser streams frames instead of expression scores.
type VisionConfig struct {
	ClassifierURL   string        `mapstructure:"classifier_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PoolSize        int           `mapstructure:"pool_size"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for"`
}

type SpeechConfig struct {
	Language         string  `mapstructure:"language"`
	WhisperURL       string  `mapstructure:"whisper_url"`
	WhisperPoolSize  int     `mapstructure:"whisper_pool_size"`
	SpeechThreshold  float64 `mapstructure:"speech_threshold_db"`
	SilenceTimeoutMs int     `mapstructure:"silence_timeout_ms"`
	MinSpeechMs      int     `mapstructure:"min_speech_ms"`
}

type CrisisConfig struct {
	Threshold     float64       `mapstructure:"threshold"`
	Categories    []string      `mapstructure:"categories"`
	Keywords      []string      `mapstructure:"keywords"`
	LexiconFile   string        `mapstructure:"lexicon_file"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	AlertDuration time.Duration `mapstructure:"alert_duration"`
	RedisURL      string        `mapstructure:"redis_url"`
	NATSURL       string        `mapstructure:"nats_url"`
	NATSSubject   string        `mapstructure:"nats_subject"`
}

type BackendConfig struct {
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PoolSize int           `mapstructure:"pool_size"`
}

type JournalConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	Buffer      int    `mapstructure:"buffer"`
}

// MessagesConfig holds every user-facing string the companion emits.
type MessagesConfig struct {
	Greeting         string `mapstructure:"greeting"`
	Thinking         string `mapstructure:"thinking"`
	NothingSaid      string `mapstructure:"nothing_said"`
	SpeechUnsupport  string `mapstructure:"speech_unsupported"`
	BackendError     string `mapstructure:"backend_error"`
	TransportFailure string `mapstructure:"transport_failure"`
	EmotionNote      string `mapstructure:"emotion_note"`
	VisualAlert      string `mapstructure:"visual_alert"`
	TextualAlert     string `mapstructure:"textual_alert"`
}

type ChatConfig struct {
	Addr         string        `mapstructure:"addr"`
	APIKey       string        `mapstructure:"api_key"`
	Engine       string        `mapstructure:"engine"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	OpenAI       OpenAIConfig  `mapstructure:"openai"`
	Ollama       OllamaConfig  `mapstructure:"ollama"`
}

// OpenAIConfig targets any OpenAI-compatible endpoint (Volcano Ark by default).
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type OllamaConfig struct {
	URL      string `mapstructure:"url"`
	Model    string `mapstructure:"model"`
	PoolSize int    `mapstructure:"pool_size"`
}
