package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MonitorEvent is one entry in the live dashboard feed
type MonitorEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// MonitorHub fans conversation events out to connected dashboard clients.
// Slow or closed clients are dropped on write failure.
type MonitorHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	logger  *log.Logger
}

// NewMonitorHub creates an empty hub
func NewMonitorHub(logger *log.Logger) *MonitorHub {
	return &MonitorHub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (h *MonitorHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *MonitorHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	_ = conn.Close()
}

// ClientCount returns the number of connected dashboard clients
func (h *MonitorHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client
func (h *MonitorHub) Broadcast(ev MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Printf("monitor: dropping client: %v", err)
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

// handleMonitorWS upgrades a dashboard connection. Browsers cannot set an
// Authorization header on a websocket handshake, so the JWT arrives as a
// query parameter.
func (r *Router) handleMonitorWS(w http.ResponseWriter, req *http.Request) {
	tokenString := req.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, `{"error": "missing token"}`, http.StatusUnauthorized)
		return
	}
	user, errMsg := r.authenticateToken(req.Context(), tokenString)
	if user == nil {
		http.Error(w, `{"error": "`+errMsg+`"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("monitor: upgrade failed: %v", err)
		return
	}

	r.logger.Printf("monitor: staff user %s connected", user.Email)
	r.monitor.add(conn)
	defer r.monitor.remove(conn)

	// Keep reading until the client goes away; the feed is one-directional
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
