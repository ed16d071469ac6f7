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
	require.NotNil(t, cfg)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, BackendEdge, cfg.TTSBackend)
	assert.Equal(t, "en-US-AriaNeural", cfg.DefaultVoice)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, int64(268435456), cfg.CacheMaxBytes)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInitialBackoff())
	assert.Equal(t, 30*time.Minute, cfg.JobRetention())
	assert.Equal(t, 4*time.Hour, cfg.StoppedJobRetention())
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEFAULT_VOICE", "en-GB-SoniaNeural")
	t.Setenv("CACHE_TTL_HOURS", "2")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "en-GB-SoniaNeural", cfg.DefaultVoice)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL())
	assert.True(t, cfg.LogPretty)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TTS_BACKEND", "festival")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresOpenAIKeyForOpenAIBackend(t *testing.T) {
	t.Setenv("TTS_BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, cfg.TTSBackend)
}
