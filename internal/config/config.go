// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loaders layer a YAML file and environment variables over the defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the persistence layer: file or sqlite.
	StoreBackend string `koanf:"store_backend"`

	// DataDir holds fingerprints.json and comparisons.jsonl for the file backend.
	DataDir string `koanf:"data_dir"`

	// SQLitePath is the database file; empty means <data_dir>/resonance.db.
	SQLitePath string `koanf:"sqlite_path"`

	// IDScheme selects record id generation: hash or uuid.
	IDScheme string `koanf:"id_scheme"`

	// PollInterval is the time between scheduler ticks.
	PollInterval time.Duration `koanf:"poll_interval"`

	// PollOnStart runs a tick as soon as the scheduler starts.
	PollOnStart bool `koanf:"poll_on_start"`

	// AutostartPoller starts the scheduler together with the service.
	AutostartPoller bool `koanf:"autostart_poller"`

	// HighThreshold is the strength above which high_priority is emitted.
	HighThreshold float64 `koanf:"high_threshold"`

	// ConvergenceMinStrength and ConvergenceMinMatches are the detector defaults.
	ConvergenceMinStrength float64 `koanf:"convergence_min_strength"`
	ConvergenceMinMatches  int     `koanf:"convergence_min_matches"`

	// QueueSize bounds the in-memory notification queue.
	QueueSize int `koanf:"queue_size"`

	// DispatchWorkers sets the number of notification dispatchers.
	DispatchWorkers int `koanf:"dispatch_workers"`

	// DedupeSize sets how many feed item keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// SpoolDir enables the directory spool adapter when set.
	SpoolDir string `koanf:"spool_dir"`

	// WatchURLs enables the web page adapter for these pages.
	WatchURLs []string `koanf:"watch_urls"`

	// FetchTimeout bounds each web page request.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshInterval is how often serve samples runtime and service gauges.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		StoreBackend:           "file",
		DataDir:                "data",
		IDScheme:               "hash",
		PollInterval:           5 * time.Minute,
		PollOnStart:            false,
		AutostartPoller:        false,
		HighThreshold:          0.6,
		ConvergenceMinStrength: 0.6,
		ConvergenceMinMatches:  2,
		QueueSize:              1024,
		DispatchWorkers:        2,
		DedupeSize:             50_000,
		FetchTimeout:           30 * time.Second,
		MetricsEnabled:         true,
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// ResolvedSQLitePath returns SQLitePath or its default under DataDir.
func (c *Config) ResolvedSQLitePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "resonance.db")
}

// Validate checks every field and reports the first offending key.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log_level", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format", c.LogFormat)
	}
	if c.Addr == "" {
		return invalid("addr", c.Addr)
	}
	switch c.StoreBackend {
	case "file", "sqlite":
	default:
		return invalid("store_backend", c.StoreBackend)
	}
	if c.DataDir == "" {
		return invalid("data_dir", c.DataDir)
	}
	switch c.IDScheme {
	case "hash", "uuid":
	default:
		return invalid("id_scheme", c.IDScheme)
	}
	if c.PollInterval <= 0 {
		return invalid("poll_interval", c.PollInterval)
	}
	if c.HighThreshold <= 0 || c.HighThreshold > 1 {
		return invalid("high_threshold", c.HighThreshold)
	}
	if c.ConvergenceMinStrength < 0 || c.ConvergenceMinStrength > 1 {
		return invalid("convergence_min_strength", c.ConvergenceMinStrength)
	}
	if c.ConvergenceMinMatches < 1 {
		return invalid("convergence_min_matches", c.ConvergenceMinMatches)
	}
	if c.QueueSize < 1 {
		return invalid("queue_size", c.QueueSize)
	}
	if c.DispatchWorkers < 1 {
		return invalid("dispatch_workers", c.DispatchWorkers)
	}
	if c.DedupeSize < 1 {
		return invalid("dedupe_size", c.DedupeSize)
	}
	if c.FetchTimeout <= 0 {
		return invalid("fetch_timeout", c.FetchTimeout)
	}
	if c.MetricsRefreshInterval <= 0 {
		return invalid("metrics_refresh_interval", c.MetricsRefreshInterval)
	}
	return nil
}

func invalid(key string, value any) error {
	return fmt.Errorf("%w: %s=%v", ErrInvalidConfig, key, value)
}
