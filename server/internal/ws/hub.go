package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthnet/hearth/pkg/envelope"
	"github.com/hearthnet/hearth/server/internal/metrics"
	"github.com/hearthnet/hearth/server/internal/registry"
)

// Options size the per-connection resources.
type Options struct {
	// SendBuffer is the outbound queue depth (default 256).
	SendBuffer int
	// MaxMessageBytes caps inbound frames (default 4096).
	MaxMessageBytes int64
	// PongWait is the read deadline refreshed by any inbound traffic.
	// 0 leaves reads without a deadline.
	PongWait time.Duration
}

// Router consumes inbound frames.
type Router interface {
	Handle(connID string, frame []byte)
}

// Hub accepts WebSocket connections and attaches them to the registry.
type Hub struct {
	reg    *registry.Registry
	router Router
	opts   Options

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	origins map[string]struct{}
}

// New creates a Hub registering connections in reg and routing their frames
// through rt.
func New(reg *registry.Registry, rt Router, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 4096
	}
	h := &Hub{reg: reg, router: rt, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetAllowedOrigins replaces the handshake Origin allow list. Safe to call
// while serving.
func (h *Hub) SetAllowedOrigins(origins []string) {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[normalizeOrigin(o)] = struct{}{}
	}
	h.mu.Lock()
	h.origins = set
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the connection. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(wsConn, h.opts.SendBuffer)
	id := h.reg.Register(c)
	defer h.reg.Evict(id, metrics.ReasonClosed)

	slog.Debug("ws: connection accepted", "connection_id", id, "remote", r.RemoteAddr)

	// Queued before the writer starts, so it is always the first frame.
	ack := envelope.ConnectionAck(id, h.reg.OnlineCount())
	if err := h.reg.Push(id, ack.Frame()); err != nil {
		slog.Warn("ws: connection-ack not queued", "connection_id", id, "err", err)
	}

	go c.writePump()
	c.readPump(h.opts.MaxMessageBytes, h.opts.PongWait,
		func(frame []byte) { h.router.Handle(id, frame) },
		func() { h.reg.Touch(id) },
	)
	slog.Debug("ws: connection closed", "connection_id", id)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.origins) == 0 {
		return true
	}
	_, ok := h.origins[normalizeOrigin(origin)]
	if !ok {
		slog.Warn("ws: origin rejected", "origin", origin)
	}
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(o, "/"))
}
