// Package sequencer turns a parsed script into an ordered audio stream: per
// segment it either splices silence or obtains speech from the cache or the
// TTS backend, with cooperative cancellation and resume between segments.
package sequencer

import (
	"context"
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voxstudio/voxstudio/internal/observability"
	"github.com/voxstudio/voxstudio/internal/resilience"
	"github.com/voxstudio/voxstudio/pkg/audio"
	"github.com/voxstudio/voxstudio/pkg/audiocache"
	"github.com/voxstudio/voxstudio/pkg/models"
	"github.com/voxstudio/voxstudio/pkg/script"
	"github.com/voxstudio/voxstudio/pkg/synthesizer"
)

// ErrCancelled is the normal terminal state of a stopped job, not a failure.
var ErrCancelled = errors.New("job cancelled")

// SynthesisError is fatal for the run: the TTS service kept failing for one
// segment after all retries.
type SynthesisError struct {
	SegmentIndex int
	Err          error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("segment %d: synthesis failed: %v", e.SegmentIndex, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

type Mode int

const (
	ModeSpeakOne Mode = iota
	ModeSpeakAll
	ModeExportSingle
	ModeExportCombined
)

func (m Mode) SpansBlocks() bool {
	return m == ModeSpeakAll || m == ModeExportCombined
}

// interBlockPause is the breath between blocks in the *All modes, matching
// what listeners expect between paragraphs.
const interBlockPause = 0.5

// Flatten joins the blocks of a multi-block request into one script,
// separated by a short pause when the mode spans blocks.
func Flatten(blocks []script.Script, mode Mode) script.Script {
	var flat script.Script
	for i, block := range blocks {
		if i > 0 && mode.SpansBlocks() {
			flat.Segments = append(flat.Segments, script.Segment{Type: script.SegmentPause, Duration: interBlockPause})
		}
		flat.Segments = append(flat.Segments, block.Segments...)
	}
	return flat
}

type Engine struct {
	tts   synthesizer.Synthesizer
	cache *audiocache.Cache
	retry *resilience.RetryConfig
}

// NewEngine wires the synthesis pipeline. The cache is owned by the caller
// and shared across jobs; its lifecycle is the process's, not the engine's.
func NewEngine(tts synthesizer.Synthesizer, cache *audiocache.Cache, retry *resilience.RetryConfig) *Engine {
	return &Engine{
		tts:   tts,
		cache: cache,
		retry: retry,
	}
}

// SynthesizeSegment produces the audio for one segment. Pauses become silence
// immediately and never touch cache or network. Voice segments hit the cache
// first; a miss calls the TTS service with bounded retries. The job's
// cancellation flag is checked before and after the network call - a cancel
// observed after the call aborts without the cache write for this segment,
// earlier segments stay cached.
func (e *Engine) SynthesizeSegment(ctx context.Context, job *Job, idx int, seg script.Segment) (models.AudioChunk, error) {
	if seg.Type == script.SegmentPause {
		return audio.Silence(seg.Duration), nil
	}

	if job.Cancelled() {
		return models.AudioChunk{}, ErrCancelled
	}

	key := audiocache.Key(seg.VoiceID, seg.Text)
	if data, ok := e.cache.Get(key); ok {
		observability.RecordCacheLookup(true)
		log.Debug().Int("segment", idx).Str("voice", seg.VoiceID).Msg("segment served from cache")
		return models.AudioChunk{
			ByteData: data,
			Format:   models.FormatMp3,
			Text:     seg.Text,
			VoiceID:  seg.VoiceID,
			Trace:    models.NewTrace("audiocache"),
		}, nil
	}
	observability.RecordCacheLookup(false)

	var chunk models.AudioChunk
	start := time.Now()
	err := resilience.Retry(ctx, e.retry, func() error {
		if job.Cancelled() {
			return ErrCancelled
		}
		var synthErr error
		chunk, synthErr = e.tts.CreateSpeech(ctx, seg.VoiceID, seg.Text)
		return synthErr
	}, func(err error) bool {
		return !errors.Is(err, ErrCancelled)
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrCancelled):
		observability.RecordSynthesis("cancelled", elapsed)
		return models.AudioChunk{}, ErrCancelled
	case err != nil:
		observability.RecordSynthesis("error", elapsed)
		return models.AudioChunk{}, &SynthesisError{SegmentIndex: idx, Err: err}
	}
	observability.RecordSynthesis("ok", elapsed)

	if job.Cancelled() {
		return models.AudioChunk{}, ErrCancelled
	}
	e.cache.Put(key, chunk.ByteData)
	return chunk, nil
}

// Run sequences the job's segments starting from its resume index, emitting
// chunks in segment order. The chunk channel is closed when the run ends; the
// error channel then carries nil for a completed run, ErrCancelled for a
// cooperative stop, or a *SynthesisError.
//
// Each emitted chunk is also recorded on the job, so a later resume plus the
// chunks already produced concatenates into the same output an uninterrupted
// run would have.
func (e *Engine) Run(ctx context.Context, job *Job) (<-chan models.AudioChunk, <-chan error) {
	chunks := make(chan models.AudioChunk)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		observability.JobStarted()
		segments := job.segmentsCopy()
		total := len(segments)
		log.Info().Str("job_id", job.ID).Int("total_segments", total).Int("resume_from", job.ResumeFrom()).Msg("sequencing started")

		for idx := job.ResumeFrom(); idx < total; idx++ {
			if job.Cancelled() {
				e.stop(job, errc)
				return
			}
			job.setRunning(fmt.Sprintf("Processing segment %d/%d", idx+1, total))

			chunk, err := e.SynthesizeSegment(ctx, job, idx, segments[idx])
			if errors.Is(err, ErrCancelled) {
				e.stop(job, errc)
				return
			}
			if err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("sequencing failed")
				job.finish(StateFailed, err.Error(), err)
				observability.JobFinished("failed")
				errc <- err
				return
			}

			select {
			case chunks <- chunk:
				observability.AddAudioBytes(len(chunk.ByteData))
				job.advance(chunk)
			case <-ctx.Done():
				e.stop(job, errc)
				return
			}
		}

		job.finish(StateComplete, "Complete", nil)
		observability.JobFinished("complete")
		log.Info().Str("job_id", job.ID).Msg("sequencing complete")
	}()

	return chunks, errc
}

func (e *Engine) stop(job *Job, errc chan<- error) {
	log.Info().Str("job_id", job.ID).Int("resume_from", job.ResumeFrom()).Msg("sequencing stopped")
	job.finish(StateStopped, "Stopped", nil)
	observability.JobFinished("cancelled")
	errc <- ErrCancelled
}

// Export drains a full run and encodes the job's chunks into one downloadable
// stream. Format is "mp3" when a single speech chunk can pass through
// untouched, otherwise everything is decoded, spliced and encoded as "wav" -
// the container work is the encoder library's job, we only guarantee order.
func (e *Engine) Export(ctx context.Context, job *Job) ([]byte, string, error) {
	chunks, errc := e.Run(ctx, job)
	for range chunks {
		// chunks are recorded on the job as they are produced
	}
	if err := <-errc; err != nil {
		return nil, "", err
	}
	return EncodeChunks(job.Chunks())
}

// EncodeChunks concatenates ordered chunks into a single audio stream.
func EncodeChunks(chunks []models.AudioChunk) ([]byte, string, error) {
	if len(chunks) == 0 {
		return nil, "", errors.New("no audio produced")
	}
	if len(chunks) == 1 && chunks[0].Format == models.FormatMp3 {
		return chunks[0].ByteData, models.FormatMp3, nil
	}

	buffers := make([]*goaudio.IntBuffer, 0, len(chunks))
	for i, chunk := range chunks {
		buf, err := audio.DecodeChunk(chunk)
		if err != nil {
			return nil, "", errors.Wrapf(err, "cannot decode chunk %d", i)
		}
		buffers = append(buffers, buf)
	}

	merged, err := audio.Concat(buffers)
	if err != nil {
		return nil, "", err
	}
	wavBytes, err := audio.EncodeWav(merged)
	if err != nil {
		return nil, "", err
	}
	return wavBytes, models.FormatWav, nil
}
