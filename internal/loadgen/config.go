// Package loadgen drives synthetic traffic against a running resonance API
// and checks the responses for consistency.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Fingerprints int           // Number of fingerprints to register
	Pulses       int           // Number of pulses to record
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // Seed for the text generator
	OutputFile   string        // Optional JSON dump of the generated traffic
	Owner        string        // Owner stamped on generated fingerprints
}

// Defaults used by Validate.
const (
	DefaultFingerprints = 20
	DefaultPulses       = 500
	DefaultWorkers      = 8
	DefaultTimeout      = 30 * time.Second
	DefaultOwner        = "loadgen"
)

// Validate fills defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.Fingerprints <= 0 {
		c.Fingerprints = DefaultFingerprints
	}
	if c.Pulses < 0 {
		c.Pulses = 0
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Owner == "" {
		c.Owner = DefaultOwner
	}
	return nil
}

// FingerprintSpec is a fingerprint to be registered.
type FingerprintSpec struct {
	IntentText string   `json:"intent_text"`
	Owner      string   `json:"owner"`
	Tags       []string `json:"tags"`
	Charge     float64  `json:"charge"`
}

// PulseSpec is a text to be recorded.
type PulseSpec struct {
	Text        string `json:"text"`
	SourceLabel string `json:"source_label"`
}

// Stats holds run statistics.
type Stats struct {
	FingerprintsRegistered int
	FingerprintsFailed     int
	PulsesSubmitted        int
	PulsesRecorded         int
	PulsesFailed           int
	PulsesMatched          int
	PulsesReadBack         int
	Convergences           int
	Violations             []string
	StartTime              time.Time
	EndTime                time.Time
	Duration               time.Duration
}
