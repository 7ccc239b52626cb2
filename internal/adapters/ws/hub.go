// Package ws streams scored frames to browsers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must be less than pongWait
	sendBufSize  = 16

	// EventPosture tags every frame result pushed to clients.
	EventPosture = "posture"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string          `json:"event"`
	Data  posture.Metrics `json:"data"`
}

// LatestFunc returns the most recent result, if any.
type LatestFunc func() (posture.Metrics, bool)

// Hub fans scored frames out to connected clients. Publish pushes a result
// immediately; Run re-sends the latest one every interval so idle dashboards
// stay current after a reconnect.
type Hub struct {
	latest   LatestFunc
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}

	log logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub. A zero interval disables the periodic re-send.
func New(latest LatestFunc, interval time.Duration) *Hub {
	if latest == nil {
		latest = func() (posture.Metrics, bool) { return posture.Metrics{}, false }
	}
	return &Hub{
		latest:   latest,
		interval: interval,
		clients:  make(map[*client]struct{}),
		log:      logger.Get().Named("ws"),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			if m, ok := h.latest(); ok {
				h.Publish(m)
			}
		}
	}
}

// Publish sends m to every client. Clients whose buffer is full are dropped.
func (h *Hub) Publish(m posture.Metrics) {
	data, err := json.Marshal(Message{Event: EventPosture, Data: m})
	if err != nil {
		h.log.Error(context.Background(), "encode ws message", logger.Error(err))
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
		h.unregister(c)
	}
}

// ServeHTTP upgrades the connection and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader has already written the error response
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}
	h.register(c)
	defer h.unregister(c)

	if m, ok := h.latest(); ok {
		if data, err := json.Marshal(Message{Event: EventPosture, Data: m}); err == nil {
			h.sendTo(c, data)
		}
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendTo queues data for c if it is still registered. send is only closed
// under the write lock, so holding the read lock makes the send safe.
func (h *Hub) sendTo(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSClients(n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSClients(n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.UpdateWSClients(0)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects.
func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
