package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-relay
server:
  port: 9000
  overflow_policy: disconnect
store:
  driver: postgres
database:
  postgres:
    host: localhost
    port: 5432
    name: chat
    user: testuser
    password: testpass
blob:
  bucket: avatars
  region: eu-west-1
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-relay" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-relay")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.OverflowPolicy != OverflowDisconnect {
		t.Errorf("Server.OverflowPolicy = %q, want %q", cfg.Server.OverflowPolicy, OverflowDisconnect)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
	if cfg.Blob.Bucket != "avatars" {
		t.Errorf("Blob.Bucket = %q, want %q", cfg.Blob.Bucket, "avatars")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_BUCKET", "profile-images")

	yaml := `
database:
  postgres:
    host: localhost
    name: chat
    user: testuser
    password: ${TEST_DB_PASSWORD}
blob:
  bucket: ${TEST_BUCKET}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
	if cfg.Blob.Bucket != "profile-images" {
		t.Errorf("Blob.Bucket = %q, want %q", cfg.Blob.Bucket, "profile-images")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
store:
  driver: memory
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Instance.ID != DefaultInstanceID {
		t.Errorf("Instance.ID = %q, want default %q", cfg.Instance.ID, DefaultInstanceID)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.WSPath != DefaultWSPath {
		t.Errorf("Server.WSPath = %q, want default %q", cfg.Server.WSPath, DefaultWSPath)
	}
	if cfg.Server.OutboundBuffer != DefaultOutboundBuffer {
		t.Errorf("Server.OutboundBuffer = %d, want default %d", cfg.Server.OutboundBuffer, DefaultOutboundBuffer)
	}
	if cfg.Server.OverflowPolicy != DefaultOverflowPolicy {
		t.Errorf("Server.OverflowPolicy = %q, want default %q", cfg.Server.OverflowPolicy, DefaultOverflowPolicy)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverMemory)
	}
	if cfg.Store.Timeout != DefaultStoreTimeout {
		t.Errorf("Store.Timeout = %v, want default %v", cfg.Store.Timeout, DefaultStoreTimeout)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Postgres.MaxConns = %d, want default %d", cfg.Database.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Blob.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("Blob.MaxUploadBytes = %d, want default %d", cfg.Blob.MaxUploadBytes, DefaultMaxUploadBytes)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadAndValidate_MemoryDriver(t *testing.T) {
	path := writeTempFile(t, "store:\n  driver: memory\n")

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "unknown overflow policy",
			mutate:  func(c *Config) { c.Server.OverflowPolicy = "block" },
			wantErr: `server.overflow_policy must be "drop" or "disconnect", got "block"`,
		},
		{
			name: "ping interval not shorter than pong timeout",
			mutate: func(c *Config) {
				c.Server.PingInterval = time.Minute
				c.Server.PongTimeout = time.Minute
			},
			wantErr: "server.ping_interval (1m0s) must be shorter than server.pong_timeout (1m0s)",
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing postgres password ignored for memory driver",
			mutate:  func(c *Config) { c.Store.Driver = DriverMemory; c.Database.Postgres.Password = "" },
			wantErr: "",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Postgres.MaxConns = 5
				c.Database.Postgres.MinConns = 10
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "mongo" },
			wantErr: `store.driver must be "postgres" or "memory", got "mongo"`,
		},
		{
			name:    "bucket without region",
			mutate:  func(c *Config) { c.Blob.Region = "" },
			wantErr: "blob.region is required when blob.bucket is set",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of debug, info, warn, error, got "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func validConfig() Config {
	cfg := Config{
		Instance: InstanceConfig{ID: "test"},
		Store:    StoreConfig{Driver: DriverPostgres},
		Database: DatabaseConfig{
			Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
		},
		Blob: BlobConfig{Bucket: "avatars", Region: "us-east-1"},
	}
	cfg.applyDefaults()
	return cfg
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
