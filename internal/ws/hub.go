// Package ws streams published alerts to WebSocket clients.
//
// Hub subscribes to one broadcaster topic and writes every event to all
// connected clients as a JSON envelope:
//
//	{
//	  "event": "alert",
//	  "topic": "/topic/alerts",
//	  "data":  { /* AlertMessage */ }
//	}
//
// Clients whose outgoing buffer is full are disconnected. The endpoint is
// mounted at /ws/alerts by the API server.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internalgrpc "github.com/mr1hm/go-sensor-alerts/internal/grpc"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendBufSize  = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origin checks are left to the CORS middleware in front of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Message struct {
	Event string `json:"event"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type Hub struct {
	broadcaster *internalgrpc.Broadcaster
	topic       string

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func New(b *internalgrpc.Broadcaster, topic string) *Hub {
	return &Hub{
		broadcaster: b,
		topic:       topic,
		clients:     make(map[*client]struct{}),
	}
}

// Run forwards broadcaster events until ctx is cancelled or the broadcaster
// is closed, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	id, events := h.broadcaster.Subscribe(h.topic)
	defer h.broadcaster.Unsubscribe(id)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "alert stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if !h.register(c) {
		// Run returned between the check above and the upgrade
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "alert stream closed"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// register reports false once the hub has shut down.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("websocket client connected", "clients", h.Count())
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(ev internalgrpc.Event) {
	data, err := json.Marshal(Message{Event: "alert", Topic: ev.Topic, Data: ev.Payload})
	if err != nil {
		slog.Error("error encoding websocket message", "topic", ev.Topic, "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket client")
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles control frames and detects disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
