// Package tail streams verification outcomes to WebSocket clients.
//
// It is a debugging aid comparable to `stripe listen`: an operator connects
// to the tail endpoint and sees one JSON notice per inbound Stripe request.
// Notices carry the outcome and envelope identifiers only, never payloads,
// signature values or the secret.
//
// Example usage:
//
//	hub := tail.NewHub(logger)
//	router.Get("/stripe-events/tail", hub.ServeHTTP)
//	...
//	hub.Publish(tail.Notice{Outcome: "verified", EventType: "charge.succeeded"})
//
//	// elsewhere
//	websocat ws://localhost:8080/stripe-events/tail
package tail

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// clientBuffer is how many notices a slow client may lag behind before
	// further notices are dropped for it.
	clientBuffer = 32
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Notice is one verification outcome as seen by tail clients.
type Notice struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Status    int       `json:"status"`
	EventID   string    `json:"event_id,omitempty"`
	EventType string    `json:"event_type,omitempty"`
}

// Hub fans notices out to every connected client.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan Notice
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "tail").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues n for every client. It never blocks: a client whose buffer
// is full misses the notice.
func (h *Hub) Publish(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- n:
		default:
			h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("tail client too slow, dropping notice")
		}
	}
}

// ServeHTTP upgrades the request and streams notices until the client goes away.
// After Close it answers 503 without upgrading.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "tail is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		h.logger.Debug().Err(err).Msg("tail upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Notice, clientBuffer)}
	if !h.register(c) {
		// Close ran while upgrading
		sayGoingAway(conn)
		_ = conn.Close()
		return
	}
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("tail client connected")

	done := make(chan struct{})
	go h.readLoop(c, done)
	h.writeLoop(c, done)

	h.unregister(c)
	_ = conn.Close()
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("tail client disconnected")
}

// Close disconnects every client and refuses new ones.
// Hijacked connections are not tracked by http.Server.Shutdown, so Close
// must be called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		sayGoingAway(c.conn)
		_ = c.conn.Close()
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// register reports false once the hub is closed.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func sayGoingAway(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeTimeout))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// readLoop discards client messages; it exists to process control frames
// and to notice disconnects.
func (h *Hub) readLoop(c *client, done chan<- struct{}) {
	defer close(done)
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

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case n := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
