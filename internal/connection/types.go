package connection

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrQueueFull = errors.New("outbound queue full")
	ErrClosed    = errors.New("connection closed")
)

// OverflowPolicy decides what happens when a connection's outbound queue is full.
type OverflowPolicy string

const (
	OverflowDrop       OverflowPolicy = "drop"       // Drop the frame, keep the connection
	OverflowDisconnect OverflowPolicy = "disconnect" // Close the slow connection
)

// Config configures the Hub and its connections.
type Config struct {
	OutboundBuffer  int            // Outbound queue length per connection
	OverflowPolicy  OverflowPolicy // Behavior on a full queue
	MaxMessageBytes int64          // Read limit per inbound frame
	PingInterval    time.Duration  // How often the server pings
	PongTimeout     time.Duration  // Max time without a pong before the connection is stale
	WriteTimeout    time.Duration  // Write deadline per frame
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutboundBuffer:  256,
		OverflowPolicy:  OverflowDrop,
		MaxMessageBytes: 64 * 1024,
		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// Handler receives inbound traffic for accepted connections.
type Handler interface {
	// HandleFrame is called for every inbound text frame, sequentially per connection.
	HandleFrame(ctx context.Context, c *Conn, frame []byte)

	// HandleDisconnect is called once after the connection has left the hub.
	HandleDisconnect(ctx context.Context, c *Conn)
}

// Sender pushes encoded frames to live sessions.
type Sender interface {
	// Deliver enqueues frame for one session. Reports whether it was queued.
	Deliver(sessionID string, frame []byte) bool

	// Broadcast enqueues frame for every live session. Returns how many queued it.
	Broadcast(frame []byte) int
}

// HubStats contains runtime statistics.
type HubStats struct {
	Connections int
	Accepted    int64
	Dropped     int64
}
