package store

import (
	"context"
	"errors"

	"github.com/rickgao/devicechat/internal/model"
)

// Errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("status cannot be persisted")
)

// DeviceStore reads and writes device records.
type DeviceStore interface {
	// Get returns the device with the given ID, or ErrNotFound.
	Get(ctx context.Context, deviceID string) (model.Device, error)

	// UpsertProfile writes username and profile image URL, creating the
	// device as offline if it does not exist. Status of an existing device
	// is left untouched.
	UpsertProfile(ctx context.Context, deviceID, username, profileImageURL string) error

	// SetStatus persists a durable status. Returns ErrNotFound if the device
	// does not exist and ErrInvalidStatus for non-durable statuses.
	SetStatus(ctx context.Context, deviceID string, status model.Status) error

	// List returns every device in insertion order.
	List(ctx context.Context) ([]model.Device, error)
}

// MessageStore persists direct messages.
type MessageStore interface {
	// Insert stores a message.
	Insert(ctx context.Context, msg model.Message) error

	// Between returns every message exchanged between a and b in either
	// direction, oldest first.
	Between(ctx context.Context, a, b string) ([]model.Message, error)
}

// Store is the full persistence surface used by the relay.
type Store interface {
	DeviceStore
	MessageStore

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}
