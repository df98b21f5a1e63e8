package repository

import (
	"time"

	"github.com/okian/resonance/pkg/logger"
)

// Default store settings.
const (
	defaultBusyTimeout = 5 * time.Second
	defaultFileMode    = 0o644
	defaultDirMode     = 0o755
)

type storeConfig struct {
	logger      logger.Logger
	fsync       bool
	busyTimeout time.Duration
}

func newStoreConfig(opts []Option) storeConfig {
	cfg := storeConfig{
		logger:      logger.Named("store"),
		fsync:       true,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option applies a configuration option to a Store.
type Option func(*storeConfig)

// WithLogger sets the logger used for load warnings and write failures.
func WithLogger(l logger.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFsync controls whether file writes are flushed to disk before returning.
func WithFsync(enabled bool) Option {
	return func(c *storeConfig) {
		c.fsync = enabled
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *storeConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}
