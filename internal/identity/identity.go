// Package identity implements the Identity Resolver: device registration
// and profile lookups.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/store"
)

// undefinedAvatar is sent by clients that have no image picked yet.
const undefinedAvatar = "undefined"

// Connector is notified once a device is bound to a session.
type Connector interface {
	OnConnect(ctx context.Context, deviceID string) error
}

// Registration is the result of CheckRegistration.
type Registration struct {
	Registered      bool
	Username        string
	ProfileImageURL string
}

// Resolver reads and writes device profiles.
type Resolver struct {
	devices  store.DeviceStore
	registry *session.Registry
	presence Connector
	logger   *slog.Logger
}

// New creates a Resolver.
func New(devices store.DeviceStore, registry *session.Registry, presence Connector, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		devices:  devices,
		registry: registry,
		presence: presence,
		logger:   logger,
	}
}

// CheckRegistration reports whether deviceID has registered before.
func (r *Resolver) CheckRegistration(ctx context.Context, deviceID string) (Registration, error) {
	d, err := r.devices.Get(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return Registration{}, nil
	}
	if err != nil {
		return Registration{}, fmt.Errorf("check registration of %s: %w", deviceID, err)
	}
	return Registration{
		Registered:      true,
		Username:        d.Username,
		ProfileImageURL: d.ProfileImageURL,
	}, nil
}

// Register upserts deviceID's profile, binds it to sessionID and marks it
// online. An empty avatarRef keeps the stored avatar. On error sessionID is
// left unbound.
//
// Concurrent registrations of the same device are serialized, so the
// registry binding always matches the last completed profile write.
func (r *Resolver) Register(ctx context.Context, sessionID, deviceID, username, avatarRef string) error {
	if avatarRef == undefinedAvatar {
		avatarRef = ""
	}

	unlock := r.registry.Lock(deviceID)
	defer unlock()

	if avatarRef == "" {
		existing, err := r.devices.Get(ctx, deviceID)
		switch {
		case err == nil:
			avatarRef = existing.ProfileImageURL
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("read profile of %s: %w", deviceID, err)
		}
	}

	if err := r.devices.UpsertProfile(ctx, deviceID, username, avatarRef); err != nil {
		return fmt.Errorf("upsert profile of %s: %w", deviceID, err)
	}

	if previous, replaced := r.registry.Register(deviceID, sessionID); replaced {
		r.logger.Info("device rebound to new session",
			"device_id", deviceID,
			"session_id", sessionID,
			"previous_session_id", previous,
		)
	}

	if err := r.presence.OnConnect(ctx, deviceID); err != nil {
		// The caller does not adopt the device, so nothing would release the binding.
		r.registry.Unregister(deviceID, sessionID)
		return err
	}
	return nil
}

// GetProfile returns deviceID's stored profile, or store.ErrNotFound.
func (r *Resolver) GetProfile(ctx context.Context, deviceID string) (model.Device, error) {
	d, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		return model.Device{}, fmt.Errorf("get profile of %s: %w", deviceID, err)
	}
	return d, nil
}

// GetStatus returns deviceID's stored status, or store.ErrNotFound.
func (r *Resolver) GetStatus(ctx context.Context, deviceID string) (model.Status, error) {
	d, err := r.GetProfile(ctx, deviceID)
	if err != nil {
		return "", err
	}
	return d.Status, nil
}
