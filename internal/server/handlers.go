package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/voxstudio/voxstudio/internal/networking"
	"github.com/voxstudio/voxstudio/pkg/script"
	"github.com/voxstudio/voxstudio/pkg/sequencer"
)

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type ttsAllRequest struct {
	Blocks []ttsRequest `json:"blocks"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, indexPage)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.tts.ListVoices(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("voice list fetch failed")
		jsonError(w, http.StatusBadGateway, "cannot fetch voice list")
		return
	}
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.ShortName)
	}
	respondJSON(w, http.StatusOK, names)
}

// handleTTS synthesizes one block synchronously and streams the file back.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, http.StatusBadRequest, "missing text")
		return
	}
	voice := req.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}

	scr, err := script.Parse(req.Text, voice)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(scr.Segments) == 0 {
		jsonError(w, http.StatusBadRequest, "script has no speakable content")
		return
	}

	job := sequencer.NewJob(scr)
	s.jobs.Add(job)

	data, format, err := s.engine.Export(r.Context(), job)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeAudio(w, fmt.Sprintf("%s.%s", voice, format), format, data)
}

// handleTTSAll queues a combined export of several blocks and returns the job
// id for progress polling; the file shows up under /download when done.
func (s *Server) handleTTSAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req ttsAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Blocks) == 0 {
		jsonError(w, http.StatusBadRequest, "no blocks provided")
		return
	}

	blocks := make([]script.Script, 0, len(req.Blocks))
	for i, block := range req.Blocks {
		voice := block.Voice
		if voice == "" {
			voice = s.cfg.DefaultVoice
		}
		scr, err := script.Parse(block.Text, voice)
		if err != nil {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("block %d: %v", i, err))
			return
		}
		if len(scr.Segments) == 0 {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("block %d: script has no speakable content", i))
			return
		}
		blocks = append(blocks, scr)
	}

	job := sequencer.NewJob(sequencer.Flatten(blocks, sequencer.ModeExportCombined))
	s.jobs.Add(job)
	go s.runExport(job)

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// runExport is the async body of /tts-all and of a resume: drain the run and
// drop the finished file into the export dir.
func (s *Server) runExport(job *sequencer.Job) {
	data, format, err := s.engine.Export(context.Background(), job)
	if err != nil {
		if errors.Is(err, sequencer.ErrCancelled) {
			log.Info().Str("job_id", job.ID).Msg("export stopped, resumable")
		} else {
			log.Error().Err(err).Str("job_id", job.ID).Msg("export failed")
		}
		return
	}

	name := fmt.Sprintf("voxstudio-%s.%s", job.ID, format)
	path := filepath.Join(s.cfg.ExportDir, name)
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("cannot write export file")
		return
	}
	job.SetResult(name)
	log.Info().Str("job_id", job.ID).Str("file", name).Int("bytes", len(data)).Msg("export written")
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobByPath(r.URL.Path, "/progress/")
	if !ok {
		jsonError(w, http.StatusNotFound, "no such job")
		return
	}
	progress := job.Progress()
	resp := map[string]interface{}{
		"progress": progress.Percent(),
		"state":    progress.State,
		"status":   progress.Status,
		"done":     progress.Done,
		"total":    progress.Total,
	}
	if name := job.Result(); name != "" {
		resp["download"] = "/download/" + name
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProgressFeed(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobByPath(r.URL.Path, "/ws/progress/")
	if !ok {
		jsonError(w, http.StatusNotFound, "no such job")
		return
	}
	networking.ProgressFeed(job)(w, r)
}

// handleJobControl: POST /jobs/{id}/stop and POST /jobs/{id}/resume.
func (s *Server) handleJobControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		jsonError(w, http.StatusNotFound, "unknown job action")
		return
	}
	job, ok := s.jobs.Get(parts[0])
	if !ok {
		jsonError(w, http.StatusNotFound, "no such job")
		return
	}

	switch parts[1] {
	case "stop":
		job.Cancel()
		respondJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
	case "resume":
		if !job.Resume() {
			jsonError(w, http.StatusConflict, "job is not resumable")
			return
		}
		go s.runExport(job)
		respondJSON(w, http.StatusOK, map[string]string{"status": "resuming"})
	default:
		jsonError(w, http.StatusNotFound, "unknown job action")
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/download/")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		jsonError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(s.cfg.ExportDir, name))
	if err != nil {
		jsonError(w, http.StatusNotFound, "file not found")
		return
	}
	format := strings.TrimPrefix(filepath.Ext(name), ".")
	writeAudio(w, name, format, data)
}

func (s *Server) jobByPath(path, prefix string) (*sequencer.Job, bool) {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return nil, false
	}
	return s.jobs.Get(id)
}

func writeAudio(w http.ResponseWriter, filename, format string, data []byte) {
	contentType := "application/octet-stream"
	switch format {
	case "mp3":
		contentType = "audio/mpeg"
	case "wav":
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeRunError(w http.ResponseWriter, err error) {
	var synthErr *sequencer.SynthesisError
	switch {
	case errors.Is(err, sequencer.ErrCancelled):
		jsonError(w, http.StatusConflict, "job cancelled")
	case errors.As(err, &synthErr):
		jsonError(w, http.StatusBadGateway, synthErr.Error())
	default:
		jsonError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

const indexPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>voxstudio</title></head>
<body>
<h1>voxstudio</h1>
<p>POST /tts with {"text": "...", "voice": "..."} to synthesize one block.</p>
<p>Script tags: [voice en-US-AriaNeural]: spoken text [pause 2] more text</p>
</body>
</html>
`
