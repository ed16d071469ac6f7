package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/voxstudio/voxstudio/internal/config"
	"github.com/voxstudio/voxstudio/internal/observability"
	"github.com/voxstudio/voxstudio/internal/resilience"
	"github.com/voxstudio/voxstudio/pkg/audio"
	"github.com/voxstudio/voxstudio/pkg/audiocache"
	"github.com/voxstudio/voxstudio/pkg/audioio"
	"github.com/voxstudio/voxstudio/pkg/script"
	"github.com/voxstudio/voxstudio/pkg/sequencer"
	"github.com/voxstudio/voxstudio/pkg/synthesizer"
)

func setupSignalHandler(cleanup func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		log.Info().Msgf("Received signal: %v", sig)
		cleanup()
	}()
}

// speak reads a tagged script from a file (or the command line) and plays it
// through the speakers, segment by segment. Ctrl-C stops at the next segment
// boundary.
func main() {
	scriptFile := flag.String("file", "", "path to a script file with [voice id]: and [pause n] tags")
	text := flag.String("text", "", "inline script text (alternative to -file)")
	voice := flag.String("voice", "", "default voice for untagged text")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	observability.InitLogger(cfg.LogLevel, true)

	input := *text
	if *scriptFile != "" {
		raw, err := os.ReadFile(*scriptFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *scriptFile).Msg("cannot read script file")
		}
		input = string(raw)
	}
	if input == "" {
		log.Fatal().Msg("nothing to speak, pass -file or -text")
	}

	defaultVoice := *voice
	if defaultVoice == "" {
		defaultVoice = cfg.DefaultVoice
	}
	scr, err := script.Parse(input, defaultVoice)
	if err != nil {
		log.Fatal().Err(err).Msg("script does not parse")
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "voxstudio_cache")
	}
	cache, err := audiocache.New(afero.NewOsFs(), cacheDir, cfg.CacheTTL(), cfg.CacheMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot set up audio cache")
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
		MaxBackoff:        cfg.RetryInitialBackoff() * 8,
		BackoffMultiplier: 2.0,
	}
	engine := sequencer.NewEngine(tts, cache, retry)

	speakers, err := audioio.NewSpeakers(audio.DefaultSampleRate, audio.DefaultNumChannels)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open speakers")
	}

	job := sequencer.NewJob(scr)
	setupSignalHandler(func() {
		job.Cancel()
		if err := speakers.Stop(); err != nil {
			log.Debug().Err(err).Msg("speakers already stopping")
		}
	})

	chunks, errs := engine.Run(context.Background(), job)

	done := make(chan struct{})
	go func() {
		audioio.PlayChunksRoutine(speakers, chunks)
		close(done)
	}()

	if err := <-errs; err != nil {
		if errors.Is(err, sequencer.ErrCancelled) {
			log.Info().Int("next_segment", job.ResumeFrom()).Msg("stopped, run again to start over")
		} else {
			log.Error().Err(err).Msg("synthesis failed")
		}
	}
	<-done
	log.Info().Msg("done")
}
