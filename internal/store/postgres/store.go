// Package postgres implements store.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/store"
)

// Store is a pgx-backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. The store takes ownership and closes it on Close.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	s.logger.Info("schema migrated", "statements", len(schema))
	return nil
}

// deviceRow mirrors the devices table.
type deviceRow struct {
	DeviceID        string    `db:"device_id"`
	Username        string    `db:"username"`
	ProfileImageURL *string   `db:"profile_image_url"`
	Status          string    `db:"status"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r deviceRow) toModel() model.Device {
	d := model.Device{
		ID:        r.DeviceID,
		Username:  r.Username,
		Status:    model.Status(r.Status),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.ProfileImageURL != nil {
		d.ProfileImageURL = *r.ProfileImageURL
	}
	return d
}

// messageRow mirrors the messages table.
type messageRow struct {
	ID          uuid.UUID `db:"id"`
	SenderID    string    `db:"sender_id"`
	RecipientID string    `db:"recipient_id"`
	Body        string    `db:"body"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Body:        r.Body,
		Timestamp:   r.CreatedAt.UTC(),
	}
}

const deviceColumns = `device_id, username, profile_image_url, status, updated_at`

func (s *Store) Get(ctx context.Context, deviceID string) (model.Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return model.Device{}, fmt.Errorf("query device: %w", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[deviceRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, store.ErrNotFound
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("scan device: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) UpsertProfile(ctx context.Context, deviceID, username, profileImageURL string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (device_id, username, profile_image_url, status)
		VALUES ($1, $2, NULLIF($3, ''), 'offline')
		ON CONFLICT (device_id) DO UPDATE
		SET username = EXCLUDED.username,
		    profile_image_url = EXCLUDED.profile_image_url,
		    updated_at = now()
	`, deviceID, username, profileImageURL)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, deviceID string, status model.Status) error {
	if !status.Durable() {
		return store.ErrInvalidStatus
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE devices SET status = $2, updated_at = now() WHERE device_id = $1`,
		deviceID, string(status))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]model.Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY created_at, device_id`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[deviceRow])
	if err != nil {
		return nil, fmt.Errorf("scan devices: %w", err)
	}

	return lo.Map(collected, func(r deviceRow, _ int) model.Device {
		return r.toModel()
	}), nil
}

func (s *Store) Insert(ctx context.Context, msg model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Body, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Between(ctx context.Context, a, b string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at, id
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return lo.Map(collected, func(r messageRow, _ int) model.Message {
		return r.toModel()
	}), nil
}

// Ping verifies the pool is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
