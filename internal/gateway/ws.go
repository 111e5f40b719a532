package gateway

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/soven-tech/soven-server/internal/session"
)

// handleAudioWS upgrades the connection and runs a device session until the
// device disconnects or the server shuts down. The optional device_id query
// parameter seeds the session identity; a device_hello message may later
// replace it.
func (s *Server) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "unknown"
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "device_id", deviceID, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	sess := session.New(conn, deviceID, session.Deps{
		STT:      s.deps.STT,
		LLM:      s.deps.LLM,
		TTS:      s.deps.TTS,
		Profiles: s.deps.Profiles,
		Convo:    s.deps.Convo,
		Metrics:  s.deps.Metrics,
	}, s.sessionConfig())

	if err := sess.Run(r.Context()); err != nil {
		slog.Warn("session ended with error", "device_id", deviceID, "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}
