// Package fanout pushes roster and status snapshots to every connected client.
//
// Delivery is best-effort: frames are encoded once and enqueued on every
// connection without waiting. There is no acknowledgment and no retry.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/protocol"
	"github.com/rickgao/devicechat/internal/store"
)

// Broadcaster publishes global updates.
type Broadcaster struct {
	devices store.DeviceStore
	sender  connection.Sender
	logger  *slog.Logger
}

// New creates a Broadcaster.
func New(devices store.DeviceStore, sender connection.Sender, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{devices: devices, sender: sender, logger: logger}
}

// Roster returns the current list of devices.
func (b *Broadcaster) Roster(ctx context.Context) (model.Roster, error) {
	devices, err := b.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if devices == nil {
		devices = []model.Device{}
	}
	return devices, nil
}

// PublishRoster sends the full device list to every connected session.
func (b *Broadcaster) PublishRoster(ctx context.Context) error {
	roster, err := b.Roster(ctx)
	if err != nil {
		return err
	}

	frame, err := protocol.Encode(protocol.EventUsers, roster)
	if err != nil {
		return err
	}

	queued := b.sender.Broadcast(frame)
	b.logger.Debug("roster published", "devices", len(roster), "sessions", queued)
	return nil
}

// PublishStatus sends a status update for deviceID to every connected session.
func (b *Broadcaster) PublishStatus(deviceID string, status model.Status) error {
	frame, err := protocol.Encode(protocol.EventUserStatusUpdate, protocol.UserStatusUpdate{
		DeviceID: deviceID,
		Status:   status,
	})
	if err != nil {
		return err
	}

	queued := b.sender.Broadcast(frame)
	b.logger.Debug("status published", "device_id", deviceID, "status", status, "sessions", queued)
	return nil
}
