package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single accepted WebSocket connection.
type Conn struct {
	id     string
	cfg    Config
	logger *slog.Logger

	ws *websocket.Conn

	// Outbound queue, drained by writeLoop
	out  chan []byte
	done chan struct{}

	closeOnce sync.Once

	// State
	mu         sync.RWMutex
	deviceID   string
	lastPongAt time.Time

	dropped atomic.Int64
}

func newConn(id string, ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	return &Conn{
		id:         id,
		cfg:        cfg,
		logger:     logger.With("session_id", id),
		ws:         ws,
		out:        make(chan []byte, cfg.OutboundBuffer),
		done:       make(chan struct{}),
		lastPongAt: time.Now(),
	}
}

// ID returns the session ID.
func (c *Conn) ID() string { return c.id }

// DeviceID returns the device this connection registered as, or "".
func (c *Conn) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// SetDeviceID records the device this connection registered as.
func (c *Conn) SetDeviceID(deviceID string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.mu.Unlock()
}

// Done is closed once the connection is closing.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dropped returns how many frames were dropped on a full queue.
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// Enqueue queues frame for sending without blocking.
func (c *Conn) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- frame:
		return nil
	default:
	}

	c.dropped.Add(1)
	if c.cfg.OverflowPolicy == OverflowDisconnect {
		c.logger.Warn("outbound queue full, closing slow connection", "buffer", c.cfg.OutboundBuffer)
		c.Close()
	} else {
		c.logger.Warn("outbound queue full, dropping frame", "buffer", c.cfg.OutboundBuffer)
	}
	return ErrQueueFull
}

// Close starts closing the connection. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readLoop reads frames until the socket fails, handing each to handle.
func (c *Conn) readLoop(ctx context.Context, handle func(ctx context.Context, frame []byte)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	c.ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("read failed", "error", err)
				}
			}
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		handle(ctx, data)
	}
}

// writeLoop drains the outbound queue and keeps the connection alive.
// It owns all writes to the socket and closes it on exit.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				c.Close()
				return
			}

			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				c.Close()
				return
			}
		}
	}
}
