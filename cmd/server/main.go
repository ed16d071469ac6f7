package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/voxstudio/voxstudio/internal/config"
	"github.com/voxstudio/voxstudio/internal/observability"
	"github.com/voxstudio/voxstudio/internal/resilience"
	"github.com/voxstudio/voxstudio/internal/server"
	"github.com/voxstudio/voxstudio/pkg/audiocache"
	"github.com/voxstudio/voxstudio/pkg/sequencer"
	"github.com/voxstudio/voxstudio/pkg/synthesizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	fs := afero.NewOsFs()

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "voxstudio_cache")
	}
	cache, err := audiocache.New(fs, cacheDir, cfg.CacheTTL(), cfg.CacheMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cacheDir).Msg("cannot set up audio cache")
	}

	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(os.TempDir(), "voxstudio_exports")
	}
	if err := fs.MkdirAll(cfg.ExportDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ExportDir).Msg("cannot set up export dir")
	}

	var tts synthesizer.Synthesizer
	switch cfg.TTSBackend {
	case config.BackendOpenAI:
		tts = synthesizer.NewOpenAITTS(cfg.OpenAIAPIKey, cfg.SpeechSpeed)
	default:
		tts = synthesizer.NewEdgeTTS()
	}

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff(),
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
	engine := sequencer.NewEngine(tts, cache, retry)

	jobs := sequencer.NewRegistry()
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				jobs.Sweep(cfg.JobRetention(), cfg.StoppedJobRetention())
				cache.Evict()
			case <-sweepDone:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(cfg, engine, tts, jobs, fs).Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // a long script can take a while to synthesize
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("backend", cfg.TTSBackend).Msg("voxstudio listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
