package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/rickgao/devicechat/internal/model"
)

// Memory is an in-process Store. Data is lost on restart.
type Memory struct {
	mu       sync.RWMutex
	devices  map[string]model.Device
	order    []string
	messages []model.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{devices: make(map[string]model.Device)}
}

func (m *Memory) Get(ctx context.Context, deviceID string) (model.Device, error) {
	if err := ctx.Err(); err != nil {
		return model.Device{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, deviceID, username, profileImageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		d = model.Device{ID: deviceID, Status: model.StatusOffline}
		m.order = append(m.order, deviceID)
	}
	d.Username = username
	d.ProfileImageURL = profileImageURL
	d.UpdatedAt = time.Now().UTC()
	m.devices[deviceID] = d
	return nil
}

func (m *Memory) SetStatus(ctx context.Context, deviceID string, status model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Durable() {
		return ErrInvalidStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.devices[deviceID] = d
	return nil
}

func (m *Memory) List(ctx context.Context) ([]model.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Map(m.order, func(id string, _ int) model.Device {
		return m.devices[id]
	}), nil
}

func (m *Memory) Insert(ctx context.Context, msg model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) Between(ctx context.Context, a, b string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := lo.Filter(m.messages, func(msg model.Message, _ int) bool {
		return msg.Between(a, b)
	})
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() {}
