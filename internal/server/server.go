// Package server is the web front-end: block text in, spoken audio out, plus
// the start/stop/resume controls around jobs.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/voxstudio/voxstudio/internal/config"
	"github.com/voxstudio/voxstudio/internal/observability"
	"github.com/voxstudio/voxstudio/pkg/sequencer"
	"github.com/voxstudio/voxstudio/pkg/synthesizer"
)

type Server struct {
	cfg    *config.Config
	engine *sequencer.Engine
	tts    synthesizer.Synthesizer
	jobs   *sequencer.Registry
	fs     afero.Fs
}

func New(cfg *config.Config, engine *sequencer.Engine, tts synthesizer.Synthesizer, jobs *sequencer.Registry, fs afero.Fs) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		tts:    tts,
		jobs:   jobs,
		fs:     fs,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/voices", s.handleVoices)
	mux.HandleFunc("/tts", s.handleTTS)
	mux.HandleFunc("/tts-all", s.handleTTSAll)
	mux.HandleFunc("/progress/", s.handleProgress)
	mux.HandleFunc("/ws/progress/", s.handleProgressFeed)
	mux.HandleFunc("/jobs/", s.handleJobControl)
	mux.HandleFunc("/download/", s.handleDownload)
	mux.HandleFunc("/healthz", observability.HealthCheckHandler("voxstudio"))
	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}
