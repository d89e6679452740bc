// Package config loads the process configuration from the environment into
// one explicit struct. Provider credentials and bucket paths are injected
// from here into their consumers; nothing reads them ambiently at call time.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	AudioStoragePath string `envconfig:"AUDIO_STORAGE_PATH" default:"audio"`
	WorkDir          string `envconfig:"WORK_DIR" default:"work"`
	FallbackAudioURL string `envconfig:"FALLBACK_AUDIO_URL" default:"http://localhost:8080/audio/silence.mp3"`

	AIAPIKey      string        `envconfig:"AI_API_KEY"`
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel       string        `envconfig:"AI_MODEL" default:"deepseek/deepseek-chat"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxAttempts int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`

	TTSURL     string        `envconfig:"TTS_URL"`
	TTSAPIKey  string        `envconfig:"TTS_API_KEY"`
	TTSTimeout time.Duration `envconfig:"TTS_TIMEOUT" default:"60s"`

	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	ReapAfter   time.Duration `envconfig:"REAP_AFTER" default:"30m"`
	Concurrency int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
