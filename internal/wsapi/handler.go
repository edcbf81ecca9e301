// Package wsapi adapts the broadcast hub (C9) onto a WebSocket transport as
// the real-time streaming endpoint: one writer goroutine per connection fed
// by a per-subscriber channel, read side only drains to detect disconnect.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/internal/broadcast"
)

// Handler serves the real-time anomaly result stream over WebSocket.
type Handler struct {
	hub    *broadcast.Hub
	logger *zap.Logger
}

// NewHandler wires a WebSocket endpoint onto an existing broadcast hub.
func NewHandler(hub *broadcast.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, logger: logger}
}

// RegisterRoutes mounts the streaming endpoint on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream", h.handleStream)
}

// handleStream upgrades the connection and forwards every AnomalyResult
// computed by the ingest coordinator until the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe()
	ctx := r.Context()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case result, ok := <-sub.Recv():
				if !ok {
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := wsjson.Write(writeCtx, conn, result)
				cancel()
				if err != nil {
					h.logger.Debug("websocket write error", zap.Error(err))
					return
				}
			}
		}
	}()

	// We don't expect client-to-server messages; reading only detects
	// disconnects (the read errors out once the peer goes away).
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	h.hub.Unsubscribe(sub)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
