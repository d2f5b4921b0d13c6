package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"zigbee-descriptors/internal/binder"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// wsMessage is the envelope sent to WebSocket clients.
type wsMessage struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// WSHub fans binder events out to WebSocket clients. Delivery never blocks
// the emitter: a client whose buffer is full is dropped.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	logger  *slog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	// types limits delivery to these event types; nil means all.
	types map[string]bool
}

func newWSClient(conn *websocket.Conn, types map[string]bool) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer), types: types}
}

func (c *wsClient) wants(eventType string) bool {
	return c.types == nil || c.types[eventType]
}

// parseEventFilter parses a comma-separated ?events= list.
func parseEventFilter(s string) map[string]bool {
	var types map[string]bool
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if types == nil {
			types = make(map[string]bool)
		}
		types[t] = true
	}
	return types
}

// NewWSHub creates an empty hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// add attaches a client. It reports false once the hub is stopped.
func (h *WSHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("ws client connected", "total", len(h.clients))
	return true
}

// remove detaches a client and closes its send channel. Removing an
// unknown client is a no-op.
func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
	h.logger.Debug("ws client disconnected", "total", len(h.clients))
}

func (h *WSHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Len returns the number of attached clients.
func (h *WSHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast delivers an event to every client subscribed to its type.
func (h *WSHub) Broadcast(event binder.Event) {
	data, err := json.Marshal(wsMessage{Type: event.Type, Time: time.Now().UTC(), Data: event.Data})
	if err != nil {
		h.logger.Error("ws marshal", "type", event.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(event.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropLocked(c)
			h.logger.Warn("ws client evicted (too slow)", "type", event.Type)
		}
	}
}

// Stop detaches all clients and refuses new ones. Safe to call repeatedly.
func (h *WSHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins})
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	client := newWSClient(conn, parseEventFilter(r.URL.Query().Get("events")))
	if !s.wsHub.add(client) {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	// CloseRead discards client frames; its context ends when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	defer s.wsHub.remove(client)

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				// Evicted, or the hub stopped.
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
