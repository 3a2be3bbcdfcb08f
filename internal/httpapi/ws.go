package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/marketgov/internal/screen"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

// hub is a single best-effort fan-out of screen.Result to connected
// WebSocket clients (Non-goal: not a general pub-sub system, no
// per-client topic filtering).
type hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.For("httpapi").Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.register(conn)
	defer s.hub.unregister(conn)

	// Drain incoming frames (clients only receive); exit once the
	// connection closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

// broadcast is fire-and-forget: a slow or dead client is dropped
// rather than blocking the screen request that triggered the push.
func (h *hub) broadcast(result screen.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(result); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
