package relay

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler exposes the relay protocol over WebSocket, one JSON message
// per text frame
type WebSocketHandler struct {
	// lifetime is cancelled on shutdown; hijacked connections never see the
	// request context end
	lifetime  context.Context
	handler   *ConnectionHandler
	upgrader  websocket.Upgrader
	transport TransportConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(lifetime context.Context, handler *ConnectionHandler, transport TransportConfig) *WebSocketHandler {
	return &WebSocketHandler{
		lifetime: lifetime,
		handler:  handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Game clients are not browsers; origin is not meaningful here
				return true
			},
		},
		transport: transport,
	}
}

// HandleConnection upgrades the request and serves the session until it ends
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.lifetime, cancel)
	defer stop()

	// Errors are logged by the handler
	_ = h.handler.Serve(ctx, NewWebSocketTransport(conn, h.transport))
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
}
