package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "audio", cfg.AudioStoragePath)
	assert.Equal(t, 30*time.Minute, cfg.ReapAfter)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://pods:secret@db:5432/pods?sslmode=disable")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BASE_URL", "https://pods.example.com")
	t.Setenv("REAP_AFTER", "45m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://pods:secret@db:5432/pods?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	assert.Equal(t, "https://pods.example.com", cfg.BaseURL)
	assert.Equal(t, 45*time.Minute, cfg.ReapAfter)
}
