package registry

import (
	"time"

	"github.com/okian/resonance/internal/domain/ids"
	"github.com/okian/resonance/pkg/logger"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithIDGenerator sets the generator behind fingerprint and pulse ids.
func WithIDGenerator(g ids.Generator) Option {
	return func(r *Registry) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock sets the time source for createdAt and archivedAt stamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
