package postgres

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds PostgreSQL pool configuration.
type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// WithDSN sets the libpq connection string.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) { c.DSN = dsn }
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

func WithConnLifetime(lifetime, idle time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnMaxLifetime = lifetime
		c.ConnMaxIdleTime = idle
	}
}
