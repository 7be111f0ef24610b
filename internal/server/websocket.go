package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/metrics"
	"github.com/civicops/civicops-ai/internal/orchestrator"
)

// WebSocket message types
const (
	MessageTypeTrace     = "trace"
	MessageTypeHeartbeat = "heartbeat"
	MessageTypeError     = "error"
)

// WSMessage is one frame pushed to a trace-stream client.
type WSMessage struct {
	Type      string                   `json:"type"`
	Trace     *orchestrator.TraceEvent `json:"trace,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), s.config.Server.AllowedOrigins)
		},
	}
}

// originAllowed implements the allow-list check for browser clients.
// Non-browser clients send no Origin header and are accepted.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// handleStream upgrades the connection and forwards trace events for one
// session until the client disconnects or the server stops.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.coordinator.GetSession(sessionID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()
	s.log.Info("trace stream opened", zap.String("session_id", sessionID))

	events, unsubscribe := s.coordinator.Subscribe(sessionID)
	defer unsubscribe()

	// Drain client frames so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("in").Inc()
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-done:
			return
		case ev := <-events:
			if err := s.wsSend(conn, &WSMessage{Type: MessageTypeTrace, Trace: &ev, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := s.wsSend(conn, &WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsSend(conn *websocket.Conn, msg *WSMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	metrics.WebSocketMessagesTotal.WithLabelValues("out").Inc()
	return nil
}
