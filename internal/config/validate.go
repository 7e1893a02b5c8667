package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Server.validate(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return errors.New("store.timeout must be > 0")
	}

	if c.Blob.Bucket != "" && c.Blob.Region == "" {
		return errors.New("blob.region is required when blob.bucket is set")
	}
	if c.Blob.MaxUploadBytes < 1 {
		return errors.New("blob.max_upload_bytes must be >= 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (s *ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	if s.OutboundBuffer < 1 {
		return errors.New("server.outbound_buffer must be >= 1")
	}
	if s.OverflowPolicy != OverflowDrop && s.OverflowPolicy != OverflowDisconnect {
		return fmt.Errorf("server.overflow_policy must be %q or %q, got %q", OverflowDrop, OverflowDisconnect, s.OverflowPolicy)
	}
	if s.PingInterval >= s.PongTimeout {
		return fmt.Errorf("server.ping_interval (%s) must be shorter than server.pong_timeout (%s)", s.PingInterval, s.PongTimeout)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
