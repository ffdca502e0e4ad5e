package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. XQ_CRISIS_THRESHOLD.
const EnvPrefix = "XQ"

// Load reads configuration from path (or ./configs/config.yaml when path is
// empty), then applies XQ_* environment overrides on top of the defaults.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/app/configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Common deploy vars without the prefix.
	_ = v.BindEnv("journal.database_url", "DATABASE_URL", "XQ_JOURNAL_DATABASE_URL")
	_ = v.BindEnv("crisis.redis_url", "REDIS_URL", "XQ_CRISIS_REDIS_URL")
	_ = v.BindEnv("crisis.nats_url", "NATS_URL", "XQ_CRISIS_NATS_URL")
	_ = v.BindEnv("chat.openai.api_key", "VOLCANO_API_KEY", "OPENAI_API_KEY", "XQ_CHAT_OPENAI_API_KEY")
	_ = v.BindEnv("chat.api_key", "API_KEY", "XQ_CHAT_API_KEY")
	_ = v.BindEnv("logging.level", "LOG_LEVEL", "XQ_LOGGING_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("sampling.interval must be positive, got %s", c.Sampling.Interval)
	}
	if c.Crisis.Threshold < 0 || c.Crisis.Threshold > 1 {
		return fmt.Errorf("crisis.threshold must be within [0,1], got %v", c.Crisis.Threshold)
	}
	if c.Crisis.Cooldown < 0 {
		return fmt.Errorf("crisis.cooldown must not be negative, got %s", c.Crisis.Cooldown)
	}
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.max_sessions", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sampling.interval", 500*time.Millisecond)
	v.SetDefault("sampling.feed_stale_after", 2*time.Second)

	v.SetDefault("vision.classifier_url", "")
	v.SetDefault("vision.timeout", 2*time.Second)
	v.SetDefault("vision.pool_size", 10)
	v.SetDefault("vision.breaker_failures", 5)
	v.SetDefault("vision.breaker_open_for", 10*time.Second)

	v.SetDefault("speech.language", "yue-Hant-HK")
	v.SetDefault("speech.whisper_url", "")
	v.SetDefault("speech.whisper_pool_size", 10)
	v.SetDefault("speech.speech_threshold_db", -30.0)
	v.SetDefault("speech.silence_timeout_ms", 800)
	v.SetDefault("speech.min_speech_ms", 300)

	v.SetDefault("crisis.threshold", 0.75)
	v.SetDefault("crisis.categories", []string{"sad", "fearful", "angry"})
	v.SetDefault("crisis.keywords", DefaultKeywords)
	v.SetDefault("crisis.lexicon_file", "")
	v.SetDefault("crisis.cooldown", 10*time.Second)
	v.SetDefault("crisis.alert_duration", 10*time.Second)
	v.SetDefault("crisis.redis_url", "")
	v.SetDefault("crisis.nats_url", "")
	v.SetDefault("crisis.nats_subject", "companion.crisis")

	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.pool_size", 20)

	v.SetDefault("journal.database_url", "")
	v.SetDefault("journal.buffer", 256)

	v.SetDefault("messages.greeting", "哈囉！今日心情點呀？有咩想同我傾？")
	v.SetDefault("messages.thinking", "傾偈完畢，正在思考回應...")
	v.SetDefault("messages.nothing_said", "你冇講嘢呀，再試一次好唔好？")
	v.SetDefault("messages.speech_unsupported", "抱歉，呢個瀏覽器唔支援語音輸入。可以用文字傾偈啦。")
	v.SetDefault("messages.backend_error", "抱歉，後端出錯：")
	v.SetDefault("messages.transport_failure", "無法連到後端，請檢查伺服器是否運行。")
	v.SetDefault("messages.emotion_note", "偵測到情緒：%s")
	v.SetDefault("messages.visual_alert", "偵測到高度負面情緒！請即時聯絡香港撒瑪利亞會 2389 2222。你唔係一個人，我陪住你呀。")
	v.SetDefault("messages.textual_alert", "偵測到危險內容！請立即放下並求助！香港撒瑪利亞會 2389 2222")

	v.SetDefault("chat.addr", ":5000")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.engine", "openai")
	v.SetDefault("chat.system_prompt", "")
	v.SetDefault("chat.max_tokens", 150)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("chat.openai.base_url", "https://ark.cn-beijing.volcengine.com/api/v3")
	v.SetDefault("chat.openai.api_key", "")
	v.SetDefault("chat.openai.model", "doubao-pro-32k")
	v.SetDefault("chat.ollama.url", "http://localhost:11434")
	v.SetDefault("chat.ollama.model", "qwen2.5:3b")
	v.SetDefault("chat.ollama.pool_size", 10)
}

// DefaultKeywords is the built-in textual danger list (Traditional Chinese
// and Cantonese phrasings).
var DefaultKeywords = []string{
	"刀", "槍", "危險", "自殺", "不想活", "唔想活", "結束生命", "想死", "自殘", "了結自己",
}
