package poller

import (
	"time"

	"github.com/okian/resonance/internal/adapters/feed"
	"github.com/okian/resonance/internal/domain/dedupe"
	"github.com/okian/resonance/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between ticks.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithHighThreshold sets the strength above which high_priority is emitted.
func WithHighThreshold(v float64) Option {
	return func(s *Scheduler) {
		if v > 0 && v <= 1 {
			s.highThreshold = v
		}
	}
}

// WithAdapters appends adapters polled on every tick.
func WithAdapters(adapters ...feed.Adapter) Option {
	return func(s *Scheduler) {
		for _, a := range adapters {
			if a != nil {
				s.adapters = append(s.adapters, a)
			}
		}
	}
}

// WithPublisher sets where notifications go. Without one they are dropped.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithDeduper sets the seen-item memory. Without one every item is recorded.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Scheduler) { s.deduper = d }
}

// WithImmediateTick runs a tick right after Start instead of waiting one interval.
func WithImmediateTick(enabled bool) Option {
	return func(s *Scheduler) { s.immediate = enabled }
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp notifications.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}
