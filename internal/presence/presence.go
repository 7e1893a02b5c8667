// Package presence implements the Presence Tracker.
//
// A device's durable status is online or offline and lives in the store.
// Typing is an overlay that is broadcast but never written:
//
//	UNKNOWN -> register -> ONLINE <-> typing/stop_typing -> ONLINE -> disconnect -> OFFLINE
package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/fanout"
	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/protocol"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/store"
)

// Tracker maintains device status and drives status broadcasts.
type Tracker struct {
	devices  store.DeviceStore
	registry *session.Registry
	fanout   *fanout.Broadcaster
	sender   connection.Sender
	logger   *slog.Logger
}

// New creates a Tracker.
func New(
	devices store.DeviceStore,
	registry *session.Registry,
	fan *fanout.Broadcaster,
	sender connection.Sender,
	logger *slog.Logger,
) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		devices:  devices,
		registry: registry,
		fanout:   fan,
		sender:   sender,
		logger:   logger,
	}
}

// SetStatus persists a durable status. Typing is rejected with store.ErrInvalidStatus.
func (t *Tracker) SetStatus(ctx context.Context, deviceID string, status model.Status) error {
	if !status.Durable() {
		return fmt.Errorf("set status %q for %s: %w", status, deviceID, store.ErrInvalidStatus)
	}
	if err := t.devices.SetStatus(ctx, deviceID, status); err != nil {
		return fmt.Errorf("set status %q for %s: %w", status, deviceID, err)
	}
	return nil
}

// OnConnect marks deviceID online and publishes the roster to everyone.
// Callers hold the device lock.
func (t *Tracker) OnConnect(ctx context.Context, deviceID string) error {
	if err := t.SetStatus(ctx, deviceID, model.StatusOnline); err != nil {
		return err
	}
	return t.fanout.PublishRoster(ctx)
}

// OnTyping tells recipientID that deviceID is typing and tags deviceID as
// typing for everyone. Nothing is sent when the recipient is not connected.
// It reports whether the recipient was reached.
func (t *Tracker) OnTyping(deviceID, recipientID string) (bool, error) {
	sessionID, ok := t.registry.Resolve(recipientID)
	if !ok {
		return false, nil
	}

	if err := t.deliver(sessionID, protocol.EventTyping, deviceID); err != nil {
		return false, err
	}
	return true, t.fanout.PublishStatus(deviceID, model.StatusTyping)
}

// OnStopTyping tells recipientID that deviceID stopped typing and restores
// deviceID's stored status for everyone.
func (t *Tracker) OnStopTyping(ctx context.Context, deviceID, recipientID string) (bool, error) {
	sessionID, ok := t.registry.Resolve(recipientID)
	if !ok {
		return false, nil
	}

	if err := t.deliver(sessionID, protocol.EventStopTyping, deviceID); err != nil {
		return false, err
	}

	device, err := t.devices.Get(ctx, deviceID)
	if err != nil {
		return true, fmt.Errorf("read status of %s: %w", deviceID, err)
	}
	return true, t.fanout.PublishStatus(deviceID, device.Status)
}

// OnDisconnect releases sessionID's binding for deviceID. If a newer session
// has since registered the device, nothing else happens. Otherwise the
// device goes offline and the roster and status update are published.
// It reports whether the device went offline.
func (t *Tracker) OnDisconnect(ctx context.Context, deviceID, sessionID string) (bool, error) {
	unlock := t.registry.Lock(deviceID)
	defer unlock()

	if !t.registry.Unregister(deviceID, sessionID) {
		t.logger.Debug("disconnect of superseded session",
			"device_id", deviceID,
			"session_id", sessionID,
		)
		return false, nil
	}

	if err := t.SetStatus(ctx, deviceID, model.StatusOffline); err != nil {
		return false, err
	}
	if err := t.fanout.PublishRoster(ctx); err != nil {
		return true, err
	}
	return true, t.fanout.PublishStatus(deviceID, model.StatusOffline)
}

func (t *Tracker) deliver(sessionID, event, deviceID string) error {
	frame, err := protocol.Encode(event, deviceID)
	if err != nil {
		return err
	}
	if !t.sender.Deliver(sessionID, frame) {
		t.logger.Debug("recipient session not reachable", "event", event, "session_id", sessionID)
	}
	return nil
}
