package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxstudio/voxstudio/internal/config"
	"github.com/voxstudio/voxstudio/internal/resilience"
	"github.com/voxstudio/voxstudio/pkg/audiocache"
	"github.com/voxstudio/voxstudio/pkg/models"
	"github.com/voxstudio/voxstudio/pkg/sequencer"
	"github.com/voxstudio/voxstudio/pkg/synthesizer"
)

type stubTTS struct{}

func (stubTTS) CreateSpeech(_ context.Context, voiceID, text string) (models.AudioChunk, error) {
	return models.AudioChunk{
		ByteData: []byte("audio:" + voiceID + "|" + text),
		Format:   models.FormatMp3,
		Text:     text,
		VoiceID:  voiceID,
	}, nil
}

func (stubTTS) ListVoices(context.Context) ([]synthesizer.Voice, error) {
	return []synthesizer.Voice{
		{ShortName: "en-US-AriaNeural"},
		{ShortName: "en-US-GuyNeural"},
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := &config.Config{
		DefaultVoice:   "en-US-AriaNeural",
		ExportDir:      "exports",
		MetricsEnabled: false,
	}
	cache, err := audiocache.New(fs, "cache", time.Hour, 1<<20)
	require.NoError(t, err)
	retry := &resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	tts := stubTTS{}
	engine := sequencer.NewEngine(tts, cache, retry)
	return New(cfg, engine, tts, sequencer.NewRegistry(), fs)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVoicesEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"en-US-AriaNeural", "en-US-GuyNeural"}, names)
}

func TestTTSSingleSegmentReturnsMp3(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts", ttsRequest{Text: "hello there"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "audio:en-US-AriaNeural|hello there", rec.Body.String())
}

func TestTTSMultiSegmentRejectsUndecodableAudio(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts", ttsRequest{Text: "a [pause 0.01] b", Voice: "en-US-GuyNeural"})

	// A pause forces a real concat, and the stub's fake mp3 bytes cannot be
	// decoded, so the export must fail instead of passing garbage through.
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestTTSMissingText(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts", ttsRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTTSRejectsScriptWithNoSpeakableContent(t *testing.T) {
	s := newTestServer(t)

	// Parses fine but yields zero segments; must be a 400, not a failed export.
	rec := postJSON(t, s.Routes(), "/tts", ttsRequest{Text: "[voice A]:"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, s.Routes(), "/tts-all", ttsAllRequest{Blocks: []ttsRequest{
		{Text: "fine"},
		{Text: "[voice B]:"},
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "block 1")
}

func TestTTSParseErrorReturns400(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts", ttsRequest{Text: "[voice]: broken"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "[voice]")
}

func TestProgressUnknownJob(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/progress/nope", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTTSAllRunsAsyncAndExportsFile(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts-all", ttsAllRequest{Blocks: []ttsRequest{
		{Text: "block one"},
	}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)

	var download string
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/progress/"+jobID, nil)
		progRec := httptest.NewRecorder()
		s.Routes().ServeHTTP(progRec, req)
		var progress map[string]interface{}
		if err := json.Unmarshal(progRec.Body.Bytes(), &progress); err != nil {
			return false
		}
		if progress["state"] != string(sequencer.StateComplete) {
			return false
		}
		download, _ = progress["download"].(string)
		return download != ""
	}, 5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, download, nil)
	dlRec := httptest.NewRecorder()
	s.Routes().ServeHTTP(dlRec, req)
	require.Equal(t, http.StatusOK, dlRec.Code)
	assert.Equal(t, "audio:en-US-AriaNeural|block one", dlRec.Body.String())
}

func TestTTSAllRejectsEmptyBlocks(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Routes(), "/tts-all", ttsAllRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/download/..%2Fsecrets", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestJobStopEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Routes(), "/tts-all", ttsAllRequest{Blocks: []ttsRequest{{Text: "to be stopped"}}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	stopRec := postJSON(t, s.Routes(), "/jobs/"+resp["job_id"]+"/stop", nil)
	assert.Equal(t, http.StatusOK, stopRec.Code)

	missingRec := postJSON(t, s.Routes(), "/jobs/nope/stop", nil)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}
