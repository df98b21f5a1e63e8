package service

import (
	"time"

	"github.com/okian/resonance/internal/config"
	"github.com/okian/resonance/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every setting of a loaded Config.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		s.backend = cfg.StoreBackend
		s.dataDir = cfg.DataDir
		s.sqlitePath = cfg.ResolvedSQLitePath()
		s.idScheme = cfg.IDScheme
		s.pollInterval = cfg.PollInterval
		s.pollOnStart = cfg.PollOnStart
		s.autostartPoller = cfg.AutostartPoller
		s.highThreshold = cfg.HighThreshold
		s.minStrength = cfg.ConvergenceMinStrength
		s.minMatches = cfg.ConvergenceMinMatches
		s.queueSize = cfg.QueueSize
		s.dispatchWorkers = cfg.DispatchWorkers
		s.dedupeSize = cfg.DedupeSize
		s.spoolDir = cfg.SpoolDir
		s.watchURLs = append([]string(nil), cfg.WatchURLs...)
		s.fetchTimeout = cfg.FetchTimeout
	}
}

// WithStore selects the persistence backend and its locations.
func WithStore(backend, dataDir, sqlitePath string) Option {
	return func(s *Service) {
		if backend != "" {
			s.backend = backend
		}
		if dataDir != "" {
			s.dataDir = dataDir
		}
		s.sqlitePath = sqlitePath
	}
}

// WithIDScheme selects record id generation: hash or uuid.
func WithIDScheme(scheme string) Option {
	return func(s *Service) { s.idScheme = scheme }
}

// WithPollInterval sets the time between scheduler ticks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithPollOnStart runs a tick as soon as the scheduler starts.
func WithPollOnStart(enabled bool) Option {
	return func(s *Service) { s.pollOnStart = enabled }
}

// WithAutostartPoller starts the scheduler together with the service.
func WithAutostartPoller(enabled bool) Option {
	return func(s *Service) { s.autostartPoller = enabled }
}

// WithHighThreshold sets the strength above which high_priority is emitted.
func WithHighThreshold(v float64) Option {
	return func(s *Service) {
		if v > 0 && v <= 1 {
			s.highThreshold = v
		}
	}
}

// WithConvergenceDefaults sets the criteria used when a query leaves them unset.
func WithConvergenceDefaults(minStrength float64, minMatches int) Option {
	return func(s *Service) {
		if minStrength > 0 {
			s.minStrength = minStrength
		}
		if minMatches > 0 {
			s.minMatches = minMatches
		}
	}
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDispatchWorkers sets the number of notification dispatchers.
func WithDispatchWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.dispatchWorkers = count
		}
	}
}

// WithDedupeSize sets how many feed item keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSpoolDir enables the directory spool adapter.
func WithSpoolDir(dir string) Option {
	return func(s *Service) { s.spoolDir = dir }
}

// WithWatchURLs enables the web page adapter.
func WithWatchURLs(urls ...string) Option {
	return func(s *Service) { s.watchURLs = append([]string(nil), urls...) }
}

// WithFetchTimeout bounds each web page request.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithClock overrides the time source of the registry, engine and scheduler.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
