// Package audio is the PCM plumbing between the TTS backends and the
// concatenated output: silence generation for pause segments, mp3/flac
// decoding, buffer concatenation and WAV encoding.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/voxstudio/voxstudio/pkg/models"
)

// DefaultSampleRate - both the edge readaloud format and OpenAI tts-1 come
// back as 24kHz mp3, measured by decodedMp3.SampleRate.
const DefaultSampleRate = 24000

// DefaultNumChannels is 2 because go-mp3 always decodes to stereo S16LE,
// so generated silence has to match to splice cleanly.
const DefaultNumChannels = 2

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// Silence returns a PCM chunk of zeros for one pause segment.
func Silence(duration float64) models.AudioChunk {
	samples := int(duration * DefaultSampleRate)
	byteData := make([]byte, samples*DefaultNumChannels*2)
	return models.AudioChunk{
		ByteData:    byteData,
		Format:      models.FormatPCM,
		Duration:    secondsToDuration(duration),
		SampleRate:  DefaultSampleRate,
		NumChannels: DefaultNumChannels,
	}
}

// DecodeChunk turns any chunk the pipeline produces into an IntBuffer,
// same format switch as the playback side.
func DecodeChunk(chunk models.AudioChunk) (*goaudio.IntBuffer, error) {
	switch chunk.Format {
	case models.FormatMp3:
		return DecodeFromMp3(chunk.ByteData)
	case models.FormatFlac:
		return DecodeFromFlac(chunk.ByteData)
	case models.FormatPCM:
		return &goaudio.IntBuffer{
			Data: twoByteDataToIntSlice(chunk.ByteData),
			Format: &goaudio.Format{
				SampleRate:  chunk.SampleRate,
				NumChannels: chunk.NumChannels,
			},
			SourceBitDepth: 16,
		}, nil
	default:
		return nil, fmt.Errorf("unknown audio format %q", chunk.Format)
	}
}

// DecodeFromMp3 decodes to S16 stereo at the stream's sample rate.
func DecodeFromMp3(byteData []byte) (*goaudio.IntBuffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(byteData))
	if err != nil {
		return nil, fmt.Errorf("cannot create mp3 decoder %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("cannot decode mp3 stream %w", err)
	}

	return &goaudio.IntBuffer{
		Data: twoByteDataToIntSlice(pcm),
		Format: &goaudio.Format{
			SampleRate:  decoder.SampleRate(),
			NumChannels: 2, // go-mp3 always outputs 2 channels
		},
		SourceBitDepth: 16,
	}, nil
}

func DecodeFromFlac(byteData []byte) (*goaudio.IntBuffer, error) {
	stream, err := flac.Parse(bytes.NewReader(byteData))
	if err != nil {
		return nil, fmt.Errorf("cannot parse flac stream %w", err)
	}

	numChannels := int(stream.Info.NChannels)
	var data []int
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot parse flac frame %w", err)
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < numChannels; ch++ {
				data = append(data, int(frame.Subframes[ch].Samples[i]))
			}
		}
	}

	return &goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			SampleRate:  int(stream.Info.SampleRate),
			NumChannels: numChannels,
		},
		SourceBitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

// Concat splices ordered buffers into one. All inputs must share sample rate
// and channel count; the backends emit one format per run so in practice only
// a misconfigured silence chunk could trip this.
func Concat(buffers []*goaudio.IntBuffer) (*goaudio.IntBuffer, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}

	first := buffers[0].Format
	total := 0
	for _, buf := range buffers {
		if buf.Format.SampleRate != first.SampleRate || buf.Format.NumChannels != first.NumChannels {
			return nil, fmt.Errorf("cannot concatenate %dHz/%dch with %dHz/%dch",
				buf.Format.SampleRate, buf.Format.NumChannels, first.SampleRate, first.NumChannels)
		}
		total += len(buf.Data)
	}

	data := make([]int, 0, total)
	for _, buf := range buffers {
		data = append(data, buf.Data...)
	}
	return &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: first.SampleRate, NumChannels: first.NumChannels},
		SourceBitDepth: 16,
	}, nil
}

// EncodeWav writes an IntBuffer out as a finished WAV file.
func EncodeWav(inputBuffer *goaudio.IntBuffer) (result []byte, err error) {
	if len(inputBuffer.Data) == 0 {
		return // Nothing to do
	}

	// The wav encoder needs an io.WriteSeeker to finalize headers, so we give
	// it an in-memory file.
	fs := afero.NewMemMapFs()
	inMemoryFilename := "in-memory-output.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	dbg(err)
	// We will call Close ourselves.

	outputBitDepth := 16
	audioFormat := 1 // PCM
	wavEncoder := wav.NewEncoder(inMemoryFile,
		inputBuffer.Format.SampleRate, outputBitDepth, inputBuffer.Format.NumChannels, audioFormat)
	log.Debug().Int("int_data_length", len(inputBuffer.Data)).Int("sample_rate", inputBuffer.Format.SampleRate).Int("num_channels", inputBuffer.Format.NumChannels).Msg("encoding int stream output as a wav")
	if err = wavEncoder.Write(inputBuffer); err != nil {
		err = fmt.Errorf("cannot encode byte output as wav %w", err)
		return
	}

	// Close the wavEncoder to flush any remaining data and finalize the WAV file
	if err = wavEncoder.Close(); err != nil {
		err = fmt.Errorf("cannot finish wav encoding %w", err)
		return
	}

	// We close and re-open the file so we can properly read-all of its contents.
	dbg(inMemoryFile.Close())
	inMemoryFileReopen, err := fs.Open(inMemoryFilename)
	dbg(err)
	result, err = io.ReadAll(inMemoryFileReopen)
	dbg(err)
	if err == nil && len(result) == 0 {
		err = fmt.Errorf("wav output is empty when input was not")
		return
	}
	return
}

// IntBufferToS16LE is what the oto player consumes.
func IntBufferToS16LE(buf *goaudio.IntBuffer) []byte {
	out := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func twoByteDataToIntSlice(audioData []byte) []int {
	intData := make([]int, len(audioData)/2)
	for i := 0; i+1 < len(audioData); i += 2 {
		// int16 so negative samples survive the round-trip
		value := int(int16(binary.LittleEndian.Uint16(audioData[i : i+2])))
		intData[i/2] = value
	}
	return intData
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
