package models

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Audio formats a chunk can carry. FormatPCM is raw signed 16-bit
// little-endian samples, which is what generated silence uses; encoded
// formats carry their parameters in their own headers.
const (
	FormatMp3  = "mp3"
	FormatFlac = "flac"
	FormatPCM  = "pcm"
	FormatWav  = "wav"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ProcessedAt time.Time
	Processor   string
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

// AudioChunk is one unit of produced audio in segment order - either speech
// returned by a TTS backend, or silence spliced in for a pause tag.
type AudioChunk struct {
	ByteData []byte
	Format   string
	Duration time.Duration

	// Only meaningful for FormatPCM.
	SampleRate  int
	NumChannels int

	// Text and VoiceID of the segment this chunk was synthesized from; empty for silence.
	Text    string
	VoiceID string

	Trace Trace
}

func (c AudioChunk) IsSilence() bool {
	return c.Format == FormatPCM && c.Text == ""
}
