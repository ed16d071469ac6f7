package synthesizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryAudioPayload(t *testing.T) {
	header := []byte("X-RequestId:abc\r\nPath:audio\r\n")
	frame := append([]byte{0x00, byte(len(header))}, header...)
	frame = append(frame, 0xDE, 0xAD, 0xBE, 0xEF)

	payload, err := binaryAudioPayload(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, payload)
}

func TestBinaryAudioPayloadNonAudioFrame(t *testing.T) {
	header := []byte("Path:something.else\r\n")
	frame := append([]byte{0x00, byte(len(header))}, header...)
	frame = append(frame, []byte("not audio")...)

	payload, err := binaryAudioPayload(frame)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestBinaryAudioPayloadMalformed(t *testing.T) {
	_, err := binaryAudioPayload([]byte{0x01})
	assert.Error(t, err)

	// header length pointing past the end of the frame
	_, err = binaryAudioPayload([]byte{0xFF, 0xFF, 0x00})
	assert.Error(t, err)
}

func TestSSMLMessageEscapesText(t *testing.T) {
	msg := string(ssmlMessage("en-US-AriaNeural", `5 < 7 & "so on"`))

	assert.Contains(t, msg, "Path:ssml")
	assert.Contains(t, msg, "<voice name='en-US-AriaNeural'>")
	assert.Contains(t, msg, "5 &lt; 7 &amp; &quot;so on&quot;")
	assert.False(t, strings.Contains(msg, `"so on"`))
}

func TestSpeechConfigMessageRequestsMp3(t *testing.T) {
	msg := string(speechConfigMessage())
	assert.Contains(t, msg, "Path:speech.config")
	assert.Contains(t, msg, edgeOutputFormat)
}
