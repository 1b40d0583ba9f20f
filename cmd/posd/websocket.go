// WebSocket hub pushing sync status and pending-changes events to the
// local UI.
package main

import (
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tableside/pos/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon serves a local UI only.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// WebSocket event types pushed to the UI.
const (
	eventSyncStatus   = "sync.status"
	eventQueuePending = "queue.pending"
	eventConnectivity = "connectivity.changed"
)

// wsEnvelope wraps all WebSocket messages.
type wsEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// wsClient is one connected UI client.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *wsHub
}

// wsHub tracks connected clients and fans broadcast messages out to them.
type wsHub struct {
	clients    map[string]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	stopOnce   stdsync.Once
	mu         stdsync.RWMutex
}

func newWSHub() *wsHub {
	hub := &wsHub{
		clients:    make(map[string]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// Stop shuts the hub down, closing every client send channel so the
// write pumps send a close frame and exit.
func (h *wsHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			logging.Info("WebSocket hub stopped", nil)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full, drop the client.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients.
func (h *wsHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := wsEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal WebSocket message", err,
			map[string]interface{}{"type": eventType})
		return
	}
	select {
	case h.broadcast <- bytes:
	case <-h.done:
	}
}

// BroadcastSyncStatus pushes a syncing/synced/error pulse.
func (h *wsHub) BroadcastSyncStatus(status string) {
	h.Broadcast(eventSyncStatus, map[string]interface{}{
		"status": status,
	})
}

// BroadcastQueuePending pushes the pending-changes indicator.
func (h *wsHub) BroadcastQueuePending(pending bool) {
	h.Broadcast(eventQueuePending, map[string]interface{}{
		"pending": pending,
	})
}

// BroadcastConnectivity pushes an online/offline transition.
func (h *wsHub) BroadcastConnectivity(online bool) {
	h.Broadcast(eventConnectivity, map[string]interface{}{
		"online": online,
	})
}

// readPump drains (and discards) client messages so pongs are processed,
// and unregisters the client when the connection drops.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error",
					map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}
	}
}

// writePump pushes broadcast messages and keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades an HTTP request and registers the client.
func handleWebSocket(hub *wsHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("Failed to upgrade WebSocket connection",
				map[string]interface{}{"error": err.Error()})
			return
		}

		client := &wsClient{
			id:   time.Now().Format("20060102150405.000") + "-" + r.RemoteAddr,
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
