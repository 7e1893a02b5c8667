package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Blob     BlobConfig     `yaml:"blob"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WSPath          string        `yaml:"ws_path"`
	OutboundBuffer  int           `yaml:"outbound_buffer"`  // Per-connection outbound queue length
	OverflowPolicy  string        `yaml:"overflow_policy"`  // "drop" or "disconnect"
	MaxMessageBytes int64         `yaml:"max_message_bytes"` // Largest inbound frame accepted
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver  string        `yaml:"driver"`  // "postgres" or "memory"
	Timeout time.Duration `yaml:"timeout"` // Budget for the store calls of one inbound event
}

// DatabaseConfig holds the PostgreSQL connection for devices and messages.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BlobConfig holds profile-image storage settings. An empty Bucket disables uploads.
type BlobConfig struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`        // Optional S3-compatible endpoint
	PublicBaseURL  string `yaml:"public_base_url"` // Optional CDN base for returned URLs
	KeyPrefix      string `yaml:"key_prefix"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Driver names
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Overflow policies
const (
	OverflowDrop       = "drop"
	OverflowDisconnect = "disconnect"
)
