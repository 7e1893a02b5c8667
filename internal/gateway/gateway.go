package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/fanout"
	"github.com/rickgao/devicechat/internal/identity"
	"github.com/rickgao/devicechat/internal/presence"
	"github.com/rickgao/devicechat/internal/protocol"
	"github.com/rickgao/devicechat/internal/router"
	"github.com/rickgao/devicechat/internal/store"
)

// Errors
var (
	ErrNotRegistered = errors.New("connection has not registered a device")
	ErrUnknownEvent  = errors.New("unknown event")
)

const deviceIDRule = "required,max=256"

// Client is the per-connection state the gateway needs.
type Client interface {
	ID() string
	DeviceID() string
	SetDeviceID(deviceID string)
}

// Config configures the Gateway.
type Config struct {
	// EventTimeout bounds the store work done for a single event.
	EventTimeout time.Duration
}

// GatewayStats contains runtime statistics.
type GatewayStats struct {
	EventsHandled int64
	EventsFailed  int64
	UnknownEvents int64
}

// Gateway implements connection.Handler.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	identity *identity.Resolver
	presence *presence.Tracker
	router   *router.Router
	fanout   *fanout.Broadcaster
	sender   connection.Sender

	validate *validator.Validate

	handled atomic.Int64
	failed  atomic.Int64
	unknown atomic.Int64
}

var _ connection.Handler = (*Gateway)(nil)

// New creates a Gateway.
func New(
	cfg Config,
	resolver *identity.Resolver,
	tracker *presence.Tracker,
	messages *router.Router,
	fan *fanout.Broadcaster,
	sender connection.Sender,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 5 * time.Second
	}
	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		identity: resolver,
		presence: tracker,
		router:   messages,
		fanout:   fan,
		sender:   sender,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HandleFrame implements connection.Handler.
func (g *Gateway) HandleFrame(ctx context.Context, c *connection.Conn, frame []byte) {
	g.Dispatch(ctx, c, frame)
}

// HandleDisconnect implements connection.Handler.
func (g *Gateway) HandleDisconnect(ctx context.Context, c *connection.Conn) {
	g.Disconnect(ctx, c)
}

// Dispatch decodes one frame from c and runs its event.
func (g *Gateway) Dispatch(ctx context.Context, c Client, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		g.failed.Add(1)
		g.logger.Warn("malformed frame", "session_id", c.ID(), "error", err)
		return
	}

	logger := g.logger.With("event", env.Event, "session_id", c.ID())
	if deviceID := c.DeviceID(); deviceID != "" {
		logger = logger.With("device_id", deviceID)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	start := time.Now()
	err = g.handle(ctx, c, env)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		g.unknown.Add(1)
		logger.Warn("ignoring unknown event")
	case errors.Is(err, store.ErrNotFound):
		// Lookups of unknown devices get no answer.
		g.handled.Add(1)
		logger.Debug("device not found", "error", err)
	case err != nil:
		g.failed.Add(1)
		logger.Error("event failed", "error", err, "elapsed", time.Since(start))
	default:
		g.handled.Add(1)
		logger.Debug("event handled", "elapsed", time.Since(start))
	}
}

func (g *Gateway) handle(ctx context.Context, c Client, env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventCheckRegistration:
		return g.checkRegistration(ctx, c, env)
	case protocol.EventRegister:
		return g.register(ctx, c, env)
	case protocol.EventLoadUsers:
		return g.fanout.PublishRoster(ctx)
	case protocol.EventLoadMessages:
		return g.loadMessages(ctx, c, env)
	case protocol.EventPrivateMessage:
		return g.privateMessage(ctx, c, env)
	case protocol.EventGetUserInfo:
		return g.userInfo(ctx, c, env)
	case protocol.EventGetUserStatus:
		return g.userStatus(ctx, c, env)
	case protocol.EventTyping:
		return g.typing(ctx, c, env)
	case protocol.EventStopTyping:
		return g.stopTyping(ctx, c, env)
	default:
		return ErrUnknownEvent
	}
}

// Disconnect releases c's device, if it registered one.
func (g *Gateway) Disconnect(ctx context.Context, c Client) {
	deviceID := c.DeviceID()
	if deviceID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	offline, err := g.presence.OnDisconnect(ctx, deviceID, c.ID())
	if err != nil {
		g.failed.Add(1)
		g.logger.Error("disconnect handling failed",
			"device_id", deviceID,
			"session_id", c.ID(),
			"error", err,
		)
		return
	}
	g.logger.Debug("device disconnected", "device_id", deviceID, "session_id", c.ID(), "offline", offline)
}

// Stats returns current statistics.
func (g *Gateway) Stats() GatewayStats {
	return GatewayStats{
		EventsHandled: g.handled.Load(),
		EventsFailed:  g.failed.Load(),
		UnknownEvents: g.unknown.Load(),
	}
}

// reply sends event to c alone.
func (g *Gateway) reply(c Client, event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	if !g.sender.Deliver(c.ID(), frame) {
		return fmt.Errorf("reply %s: %w", event, connection.ErrClosed)
	}
	return nil
}

// deviceArg decodes and validates a bare device ID payload.
func (g *Gateway) deviceArg(env protocol.Envelope) (string, error) {
	deviceID, err := env.DecodeString()
	if err != nil {
		return "", err
	}
	if err := g.validate.Var(deviceID, deviceIDRule); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}
	return deviceID, nil
}

// payload decodes and validates an object payload into v.
func (g *Gateway) payload(env protocol.Envelope, v any) error {
	if err := env.DecodeInto(v); err != nil {
		return err
	}
	if err := g.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}
	return nil
}

// registered returns the device c registered as.
func registered(c Client) (string, error) {
	deviceID := c.DeviceID()
	if deviceID == "" {
		return "", ErrNotRegistered
	}
	return deviceID, nil
}
