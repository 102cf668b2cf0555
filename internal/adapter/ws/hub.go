// Package ws pushes leaderboard snapshots to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
	"github.com/couchcryptid/f1-live-leaderboard/internal/render"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SnapshotSource returns the snapshot a new client starts from.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// Config holds connection tuning.
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns settings suitable for a public live view.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     16,
		CheckOrigin:    func(*http.Request) bool { return true },
	}
}

// AllowOrigins returns a CheckOrigin func accepting the listed origins.
// "*" accepts any origin; requests without an Origin header are accepted.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Hub tracks connected clients and broadcasts every published snapshot to
// them. It implements live.Publisher and http.Handler.
type Hub struct {
	source   SnapshotSource
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub. New clients first receive source's current snapshot.
func NewHub(source SnapshotSource, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &Hub{
		source: source,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		hub:  h,
	}

	initial, err := encode(h.source.Snapshot())
	if err != nil {
		h.logger.Error("encode initial snapshot", "error", err)
		conn.Close()
		return
	}

	// Registering and queueing the current snapshot under the write lock
	// keeps it ahead of any broadcast the client receives.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	c.send <- initial
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.WebsocketClients.Set(float64(n))
	h.logger.Info("websocket client connected", "connection_id", c.id, "clients", n)

	go c.writePump()
	go c.readPump()
}

// Publish broadcasts snap to every connected client. Clients whose send
// buffer is full are disconnected.
func (h *Hub) Publish(_ context.Context, snap domain.Snapshot) error {
	msg, err := encode(snap)
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("websocket client too slow, disconnecting", "connection_id", c.id)
		h.unregister(c)
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

// unregister removes c and closes its send channel exactly once. The write
// pump then sends a close frame and closes the connection.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.WebsocketClients.Set(float64(n))
	h.logger.Info("websocket client disconnected", "connection_id", c.id, "clients", n)
}

func encode(snap domain.Snapshot) ([]byte, error) {
	data, err := json.Marshal(render.NewView(snap))
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard view: %w", err)
	}
	return data, nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)) //nolint:errcheck // write fails below if the deadline cannot be set
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // best-effort close frame
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("websocket write failed", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)) //nolint:errcheck // see above
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and keeps the read deadline fresh from
// pongs. It exits when the client goes away.
func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout)) //nolint:errcheck // read fails below if the deadline cannot be set
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket closed unexpectedly", "connection_id", c.id, "error", err)
			}
			return
		}
	}
}
