package audioio

import (
	"bytes"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxstudio/voxstudio/pkg/audio"
	"github.com/voxstudio/voxstudio/pkg/models"
)

// PlayChunksRoutine drains the chunk channel and plays each chunk back to
// back on the output device. Undecodable chunks are logged and skipped so one
// bad segment does not kill the whole read-aloud.
func PlayChunksRoutine(outputDevice OutputDevice, chunkChan <-chan models.AudioChunk) {
	log.Info().Msg("playChunksRoutine started")

	for chunk := range chunkChan {
		startTime := time.Now()

		intBuffer, err := audio.DecodeChunk(chunk)
		if err != nil {
			log.Error().Err(err).Str("format", chunk.Format).Msg("cannot decode chunk, skipping")
			continue
		}

		waitTilDone, err := outputDevice.Play(bytes.NewReader(audio.IntBufferToS16LE(intBuffer)))
		if err != nil {
			log.Error().Err(err).Msg("cannot play decoded chunk")
		} else if waitTilDone != nil {
			waitTilDone.Wait()
		}

		log.Debug().Dur("duration", time.Since(startTime)).Str("voice", chunk.VoiceID).Msg("chunk playback done")
	}
	log.Info().Msg("playChunksRoutine finished")
}
