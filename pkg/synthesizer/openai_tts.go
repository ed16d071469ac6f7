package synthesizer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/voxstudio/voxstudio/pkg/models"
)

// openAITTS drives the official audio/speech endpoint through go-openai.
// Unlike edge, the voice set is fixed and not locale-specific.
type openAITTS struct {
	client *openai.Client
	speed  float64
}

var openAIVoices = []Voice{
	{ShortName: string(openai.VoiceAlloy), FriendlyName: "OpenAI Alloy"},
	{ShortName: string(openai.VoiceEcho), FriendlyName: "OpenAI Echo"},
	{ShortName: string(openai.VoiceFable), FriendlyName: "OpenAI Fable"},
	{ShortName: string(openai.VoiceOnyx), FriendlyName: "OpenAI Onyx"},
	{ShortName: string(openai.VoiceNova), FriendlyName: "OpenAI Nova"},
	{ShortName: string(openai.VoiceShimmer), FriendlyName: "OpenAI Shimmer"},
}

func NewOpenAITTS(openAIAPIKey string, speed float64) Synthesizer {
	if speed == 0 {
		speed = 1.0
	}
	return &openAITTS{
		client: openai.NewClient(openAIAPIKey),
		speed:  speed,
	}
}

func (o *openAITTS) CreateSpeech(ctx context.Context, voiceID string, text string) (models.AudioChunk, error) {
	log.Debug().Str("voice", voiceID).Int("text_length", len(text)).Float64("speed", o.speed).Msg("openai CreateSpeech start")
	requestStart := time.Now()

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.speed,
	})
	if err != nil {
		return models.AudioChunk{}, fmt.Errorf("could not do audio/speech for voice %s cause %w", voiceID, err)
	}
	defer func() { _ = resp.Close() }()

	rawAudioBytes, err := io.ReadAll(resp)
	if err != nil {
		return models.AudioChunk{}, fmt.Errorf("could not read audio/speech response %w", err)
	}
	log.Debug().Dur("request_time", time.Since(requestStart)).Int("output_bytes", len(rawAudioBytes)).Msg("openai CreateSpeech done")

	chunk := models.AudioChunk{
		ByteData: rawAudioBytes,
		Format:   models.FormatMp3,
		Text:     text,
		VoiceID:  voiceID,
		Trace:    models.NewTrace("openai_tts"),
	}
	chunk.Trace.ProcessedAt = time.Now()
	chunk.Trace.Processor = "openai_tts"
	return chunk, nil
}

func (o *openAITTS) ListVoices(_ context.Context) ([]Voice, error) {
	voices := make([]Voice, len(openAIVoices))
	copy(voices, openAIVoices)
	return voices, nil
}
