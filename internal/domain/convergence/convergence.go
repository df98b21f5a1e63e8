// Package convergence finds comparison records where several fingerprints
// resonated strongly with the same input.
package convergence

import (
	"context"
	"time"

	"github.com/okian/resonance/internal/domain/model"
)

// Thresholds used when a caller gives none.
const (
	DefaultMinStrength = 0.6
	DefaultMinMatches  = 2
)

// Criteria selects convergent records. Find applies the thresholds exactly as
// given; callers start from Defaults to leave one unset.
type Criteria struct {
	MinStrength float64
	MinMatches  int
	// Since, when set, excludes records stamped before it.
	Since time.Time
}

// Defaults returns the criteria with the default thresholds and no time bound.
func Defaults() Criteria {
	return Criteria{MinStrength: DefaultMinStrength, MinMatches: DefaultMinMatches}
}

// Source lists comparison records in append order.
type Source interface {
	Comparisons(ctx context.Context) []model.Comparison
}

// Detector runs convergence queries. It never writes.
type Detector struct {
	source Source
}

// NewDetector constructs a Detector over source.
func NewDetector(source Source) *Detector {
	return &Detector{source: source}
}

// Find returns the records holding at least MinMatches matches of strength
// at least MinStrength, in append order.
func (d *Detector) Find(ctx context.Context, c Criteria) []model.Comparison { //nolint:gocritic // small value type
	var out []model.Comparison
	for _, rec := range d.source.Comparisons(ctx) {
		if !c.Since.IsZero() && rec.Timestamp.Before(c.Since) {
			continue
		}
		if rec.CountAtLeast(c.MinStrength) >= c.MinMatches {
			out = append(out, rec)
		}
	}
	return out
}
