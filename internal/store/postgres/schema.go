package postgres

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id         TEXT PRIMARY KEY,
		username          TEXT NOT NULL,
		profile_image_url TEXT,
		status            TEXT NOT NULL DEFAULT 'offline'
		                  CHECK (status IN ('online', 'offline')),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id           UUID PRIMARY KEY,
		sender_id    TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		body         TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, recipient_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_devices_created ON devices (created_at)`,
}
