package alert

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/railwatch-data/railwatch/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub broadcasts alerts to connected browser clients. It registers
// as the "websocket" channel and also serves the /ws upgrade endpoint.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once

	mu        sync.Mutex
	connCount int
}

// NewWebSocketHub creates a hub. Call Run in a goroutine before serving.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Name returns "websocket".
func (h *WebSocketHub) Name() string { return "websocket" }

// Run processes register, unregister, and broadcast events until Close.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, exists := h.clients[client]; !exists {
				h.clients[client] = true
				h.connCount++
				monitoring.Logf("websocket: client connected, total %d", h.connCount)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.connCount--
				client.Close()
				monitoring.Logf("websocket: client disconnected, total %d", h.connCount)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(msg); err != nil {
					monitoring.Logf("websocket: write failed, removing client: %v", err)
					client.Close()
					delete(h.clients, client)
					h.connCount--
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.connCount = 0
			h.mu.Unlock()
			return
		}
	}
}

// Send queues the alert for broadcast. With no connected clients the message
// is dropped rather than queued.
func (h *WebSocketHub) Send(_ context.Context, msg Message) error {
	h.mu.Lock()
	clientCount := len(h.clients)
	h.mu.Unlock()

	if clientCount > 0 {
		h.broadcast <- msg
	}
	return nil
}

// ConnectedCount returns the number of connected clients.
func (h *WebSocketHub) ConnectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connCount
}

// HandleWebSocket upgrades an HTTP request and registers the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "not a websocket upgrade request", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket: upgrade failed: %v", err)
		return
	}

	h.register <- conn

	// Drain the read side to notice disconnects and answer pings.
	go func() {
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure) {
					monitoring.Logf("websocket: read error: %v", err)
				}
				h.unregister <- conn
				return
			}
			if messageType == websocket.PingMessage {
				if err := conn.WriteMessage(websocket.PongMessage, nil); err != nil {
					h.unregister <- conn
					return
				}
			}
		}
	}()
}

// Close shuts down the hub and disconnects all clients. Safe to call more
// than once.
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
