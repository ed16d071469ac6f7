package synthesizer

import (
	"context"

	"github.com/voxstudio/voxstudio/pkg/models"
)

// Voice mirrors the field names the edge voice-list endpoint returns, so the
// JSON tags double as the wire format.
type Voice struct {
	ShortName    string `json:"ShortName"`
	Gender       string `json:"Gender,omitempty"`
	Locale       string `json:"Locale,omitempty"`
	FriendlyName string `json:"FriendlyName,omitempty"`
}

// Synthesizer is the narrow contract over the external TTS service: an
// opaque, possibly slow, possibly failing function from (voice, text) to
// audio bytes. Retries live in the caller, not here.
type Synthesizer interface {
	CreateSpeech(ctx context.Context, voiceID string, text string) (models.AudioChunk, error)
	ListVoices(ctx context.Context) ([]Voice, error)
}
