package synthesizer

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voxstudio/voxstudio/pkg/models"
)

// The free "read aloud" endpoint Edge itself talks to. No API key, just the
// browser's trusted client token.
const (
	edgeTrustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeWssURL             = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1?TrustedClientToken=" + edgeTrustedClientToken
	edgeVoiceListURL       = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list?trustedclienttoken=" + edgeTrustedClientToken

	// 24kHz mp3, the same format the browser requests.
	edgeOutputFormat = "audio-24khz-48kbitrate-mono-mp3"

	edgeOrigin    = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	edgeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type edgeTTS struct {
	dialer *websocket.Dialer
}

// NewEdgeTTS synthesizes through the Microsoft Edge readaloud websocket.
// Each CreateSpeech call uses a fresh connection; the service closes turns
// quickly enough that pooling is not worth the reconnect bookkeeping.
func NewEdgeTTS() Synthesizer {
	return &edgeTTS{dialer: websocket.DefaultDialer}
}

func (e *edgeTTS) CreateSpeech(ctx context.Context, voiceID string, text string) (models.AudioChunk, error) {
	log.Debug().Str("voice", voiceID).Int("text_length", len(text)).Msg("edge CreateSpeech start")
	requestStart := time.Now()

	header := http.Header{}
	header.Set("Origin", edgeOrigin)
	header.Set("User-Agent", edgeUserAgent)

	conn, resp, err := e.dialer.DialContext(ctx, edgeWssURL, header)
	if err != nil {
		return models.AudioChunk{}, fmt.Errorf("cannot dial edge readaloud endpoint %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err = conn.WriteMessage(websocket.TextMessage, speechConfigMessage()); err != nil {
		return models.AudioChunk{}, fmt.Errorf("cannot send speech.config %w", err)
	}
	if err = conn.WriteMessage(websocket.TextMessage, ssmlMessage(voiceID, text)); err != nil {
		return models.AudioChunk{}, fmt.Errorf("cannot send ssml request %w", err)
	}

	var audioData bytes.Buffer
	for {
		if err = ctx.Err(); err != nil {
			return models.AudioChunk{}, err
		}

		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return models.AudioChunk{}, fmt.Errorf("edge connection broke mid-turn %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(msg), "Path:turn.end") {
				if audioData.Len() == 0 {
					return models.AudioChunk{}, fmt.Errorf("edge returned an empty turn for voice %s", voiceID)
				}
				chunk := models.AudioChunk{
					ByteData: audioData.Bytes(),
					Format:   models.FormatMp3,
					Text:     text,
					VoiceID:  voiceID,
					Trace:    models.NewTrace("edge_tts"),
				}
				chunk.Trace.ProcessedAt = time.Now()
				chunk.Trace.Processor = "edge_tts"
				log.Debug().Dur("request_time", time.Since(requestStart)).Int("output_bytes", audioData.Len()).Msg("edge CreateSpeech done")
				return chunk, nil
			}
			// turn.start / audio.metadata frames carry no audio
		case websocket.BinaryMessage:
			payload, err := binaryAudioPayload(msg)
			if err != nil {
				return models.AudioChunk{}, err
			}
			audioData.Write(payload)
		}
	}
}

func (e *edgeTTS) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, edgeVoiceListURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Origin", edgeOrigin)
	req.Header.Set("User-Agent", edgeUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch edge voice list %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errMsg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status %d from voice list: %s", resp.StatusCode, errMsg)
	}

	var voices []Voice
	if err = json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("cannot decode voice list %w", err)
	}
	log.Debug().Int("voice_count", len(voices)).Msg("edge voice list fetched")
	return voices, nil
}

func speechConfigMessage() []byte {
	config := fmt.Sprintf(`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"%s"}}}}`, edgeOutputFormat)
	return []byte("X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		config)
}

func ssmlMessage(voiceID, text string) []byte {
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'><voice name='%s'>%s</voice></speak>`,
		voiceID, escapeXML(text))
	return []byte("X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Path:ssml\r\n\r\n" +
		ssml)
}

// binaryAudioPayload strips the textual header off a binary frame: the first
// two bytes are the big-endian header length, audio bytes follow.
func binaryAudioPayload(msg []byte) ([]byte, error) {
	if len(msg) < 2 {
		return nil, fmt.Errorf("edge binary frame too short: %d bytes", len(msg))
	}
	headerLen := int(binary.BigEndian.Uint16(msg[:2]))
	if 2+headerLen > len(msg) {
		return nil, fmt.Errorf("edge binary frame header length %d exceeds frame size %d", headerLen, len(msg))
	}
	if !bytes.Contains(msg[2:2+headerLen], []byte("Path:audio")) {
		return nil, nil // not an audio frame
	}
	return msg[2+headerLen:], nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

func edgeTimestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}
