package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub tracks every live connection by session ID.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool // set by Shutdown, guarded by mu

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	accepted atomic.Int64
	dropped  atomic.Int64
}

var _ Sender = (*Hub)(nil)

// NewHub creates a Hub. Handler contexts derive from ctx.
func NewHub(ctx context.Context, cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native apps; there is no browser origin to enforce.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	return h
}

// Handler returns an http.Handler that upgrades requests and serves them
// until the connection closes.
func (h *Hub) Handler(handler Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.track() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer h.wg.Done()

		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		h.serve(newConn(uuid.NewString(), ws, h.cfg, h.logger), handler)
	})
}

// track registers an incoming request with the shutdown WaitGroup unless
// Shutdown has already started.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// serve runs a connection to completion.
func (h *Hub) serve(c *Conn, handler Handler) {
	h.add(c)
	c.logger.Info("client connected", "remote", c.ws.RemoteAddr().String())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop(h.ctx, func(ctx context.Context, frame []byte) {
		handler.HandleFrame(ctx, c, frame)
	})

	h.remove(c)
	c.Close()
	<-writerDone

	handler.HandleDisconnect(h.ctx, c)
	c.logger.Info("client disconnected", "device_id", c.DeviceID())
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	if h.closed {
		// Upgraded while Shutdown was closing the others.
		c.Close()
	}
	h.mu.Unlock()
	h.accepted.Add(1)
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if current, ok := h.conns[c.id]; ok && current == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
	h.dropped.Add(c.Dropped())
}

// Get returns the live connection for sessionID.
func (h *Hub) Get(sessionID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[sessionID]
	return c, ok
}

// Deliver enqueues frame for one session.
func (h *Hub) Deliver(sessionID string, frame []byte) bool {
	c, ok := h.Get(sessionID)
	if !ok {
		return false
	}
	return c.Enqueue(frame) == nil
}

// Broadcast enqueues frame for every live session.
func (h *Hub) Broadcast(frame []byte) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	queued := 0
	for _, c := range targets {
		if c.Enqueue(frame) == nil {
			queued++
		}
	}
	return queued
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	live := len(h.conns)
	var dropped int64
	for _, c := range h.conns {
		dropped += c.Dropped()
	}
	h.mu.RUnlock()

	return HubStats{
		Connections: live,
		Accepted:    h.accepted.Load(),
		Dropped:     h.dropped.Load() + dropped,
	}
}

// Shutdown closes every connection and waits for their loops to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("closing websocket connections", "count", h.Len())

	h.mu.Lock()
	h.closed = true
	for _, c := range h.conns {
		c.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		h.logger.Info("websocket connections closed")
	case <-ctx.Done():
		h.logger.Warn("websocket shutdown timed out")
		err = ctx.Err()
	}

	h.cancel()
	return err
}
