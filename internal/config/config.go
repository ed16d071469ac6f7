// Package config holds all runtime configuration, loaded from the
// environment (optionally via a .env file).
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendEdge   = "edge"
	BackendOpenAI = "openai"
)

type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"5000"`

	// TTS backend: "edge" (free readaloud endpoint) or "openai"
	TTSBackend   string  `envconfig:"TTS_BACKEND" default:"edge"`
	OpenAIAPIKey string  `envconfig:"OPENAI_API_KEY" default:""`
	SpeechSpeed  float64 `envconfig:"SPEECH_SPEED" default:"1.0"` // openai backend only

	// Voice used for untagged text when the request does not pick one
	DefaultVoice string `envconfig:"DEFAULT_VOICE" default:"en-US-AriaNeural"`

	// Audio cache
	CacheDir      string `envconfig:"CACHE_DIR" default:""` // empty: <tmp>/voxstudio_cache
	CacheTTLHours int    `envconfig:"CACHE_TTL_HOURS" default:"24"`
	CacheMaxBytes int64  `envconfig:"CACHE_MAX_BYTES" default:"268435456"` // 256 MiB

	// Exported files
	ExportDir string `envconfig:"EXPORT_DIR" default:""` // empty: <tmp>/voxstudio_exports

	// Retry/backoff for the TTS service
	RetryMaxAttempts      int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoffMs int `envconfig:"RETRY_INITIAL_BACKOFF_MS" default:"200"`

	// How long finished jobs stay queryable via /progress; stopped jobs get
	// the longer window so a deliberate stop stays resumable for a while.
	JobRetentionMinutes        int `envconfig:"JOB_RETENTION_MINUTES" default:"30"`
	StoppedJobRetentionMinutes int `envconfig:"STOPPED_JOB_RETENTION_MINUTES" default:"240"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from the environment, trying a .env file first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.TTSBackend != BackendEdge && cfg.TTSBackend != BackendOpenAI {
		return nil, fmt.Errorf("unknown TTS_BACKEND %q", cfg.TTSBackend)
	}
	if cfg.TTSBackend == BackendOpenAI && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
	}
	return &cfg, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionMinutes) * time.Minute
}

func (c *Config) StoppedJobRetention() time.Duration {
	return time.Duration(c.StoppedJobRetentionMinutes) * time.Minute
}
