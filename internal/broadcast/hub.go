// Package broadcast fans persisted signals out to realtime subscribers:
// local WebSocket clients and, when configured, other instances through
// Redis pub/sub. Fan-out is best effort and never blocks the emit path.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
)

const (
	writeTimeout   = 5 * time.Second
	clientSendBuf  = 64
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// client is one connected WebSocket subscriber
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks WebSocket subscribers and pushes signal events to them.
// Slow or dead clients are dropped, never waited on.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// HandleWS upgrades an HTTP request into a subscriber connection
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuf),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("client_id", c.id).Int("clients", count).Msg("WebSocket client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast pushes a compact emit notification to every connected
// client. Subscribers get the identity fields only; the full event stays
// behind the REST API.
func (h *Hub) Broadcast(event domain.SignalEvent) {
	payload, err := json.Marshal(map[string]any{
		"event_type": "signal_emitted",
		"signal_id":  event.SignalID,
		"title":      event.Title,
		"category":   event.Category,
		"status":     event.Status,
	})
	if err != nil {
		log.Error().Err(err).Str("signal_id", event.SignalID).Msg("Broadcast encode failed")
		return
	}
	h.send(payload)
}

// send delivers raw bytes to every client, dropping the ones whose
// buffers are full.
func (h *Hub) send(payload []byte) {
	h.mu.RLock()
	var stale []*client
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Warn().Str("client_id", c.id).Msg("Dropping slow WebSocket client")
		h.drop(c)
	}
}

// ClientCount reports the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop drains inbound frames so pongs and closes are processed
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
