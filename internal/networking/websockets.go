// Package networking pushes live job progress to the browser over a
// websocket, so the UI does not have to poll /progress.
package networking

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voxstudio/voxstudio/pkg/sequencer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Adjust the origin check as needed
	},
}

func getClientIpAddress(r *http.Request) (clientIP string) {
	// Get client IP from RemoteAddr
	clientIP = r.RemoteAddr

	// Check for real IP in headers (useful if behind proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// ProgressFeed streams a job's progress as JSON text messages until the job
// reaches a terminal state or the client goes away. One goroutine per
// connection; the subscription channel is closed by the job itself.
func ProgressFeed(job *sequencer.Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info().Str("client_ip", getClientIpAddress(r)).Str("job_id", job.ID).Msg("progress feed websocket connecting")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errLog(err, "websocket upgrader.Upgrade")
			return
		}
		defer func() { errLog(ws.Close(), "websocket.Close()") }()

		subID, updates := job.Subscribe()
		defer job.Unsubscribe(subID)

		// Drain (and discard) client frames so close messages are processed.
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for progress := range updates {
			msg, err := json.Marshal(progress)
			if err != nil {
				errLog(err, "progress json.Marshal")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					log.Info().Msg("websocket closed by client before job finished")
				} else {
					errLog(err, "ws.WriteMessage")
				}
				return
			}
		}

		// Job went terminal: say goodbye properly.
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		errLog(ws.WriteMessage(websocket.CloseMessage, closeMsg), "websocket.CloseMessage gracefully")
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
		debug.PrintStack()
	}
}
