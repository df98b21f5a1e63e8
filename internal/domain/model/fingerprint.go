// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Charge bounds and default.
const (
	DefaultCharge = 0.7
	MinCharge     = 0.0
	MaxCharge     = 1.0
)

// Metadata defaults applied at registration.
const (
	DefaultSource   = "manual"
	DefaultPriority = "normal"
	DefaultCategory = "general"
)

// Fingerprint is a registered interest that incoming text is matched against.
type Fingerprint struct {
	ID                   string     `json:"id"`
	Owner                string     `json:"owner"`
	IntentText           string     `json:"intent_text"`
	Tags                 []string   `json:"tags"`
	Charge               float64    `json:"charge"`
	CreatedAt            time.Time  `json:"created_at"`
	LastSignificantMatch *time.Time `json:"last_significant_match,omitempty"`
	Metadata             Metadata   `json:"metadata"`
}

// Metadata carries descriptive fields and the archive tombstone.
type Metadata struct {
	Source     string     `json:"source"`
	Priority   string     `json:"priority"`
	Category   string     `json:"category"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Active reports whether the fingerprint still takes part in comparisons.
func (f *Fingerprint) Active() bool {
	return !f.Metadata.Archived
}

// HasTag reports whether the fingerprint carries tag, ignoring case.
func (f *Fingerprint) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices or pointers with the store.
func (f Fingerprint) Clone() Fingerprint { //nolint:gocritic // value receiver produces the copy
	out := f
	if f.Tags != nil {
		out.Tags = append([]string(nil), f.Tags...)
	}
	if f.LastSignificantMatch != nil {
		ts := *f.LastSignificantMatch
		out.LastSignificantMatch = &ts
	}
	if f.Metadata.ArchivedAt != nil {
		ts := *f.Metadata.ArchivedAt
		out.Metadata.ArchivedAt = &ts
	}
	return out
}

// RegisterOptions are the optional registration inputs.
// A nil Charge means "not supplied" and resolves to DefaultCharge.
type RegisterOptions struct {
	Tags     []string
	Charge   *float64
	Source   string
	Priority string
	Category string
}

// Filter selects fingerprints. Zero-valued fields do not constrain the result.
type Filter struct {
	Owner      string
	Tags       []string
	ActiveOnly bool
}

// Matches reports whether f satisfies every supplied predicate.
func (q Filter) Matches(f *Fingerprint) bool { //nolint:gocritic // small value type
	if q.ActiveOnly && !f.Active() {
		return false
	}
	if q.Owner != "" && f.Owner != q.Owner {
		return false
	}
	for _, tag := range q.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !f.HasTag(tag) {
			return false
		}
	}
	return true
}

// NormalizeCharge clamps v into [0,1]; NaN resolves to DefaultCharge.
func NormalizeCharge(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultCharge
	case v < MinCharge:
		return MinCharge
	case v > MaxCharge:
		return MaxCharge
	default:
		return v
	}
}

// ResolveCharge applies the registration rules to an optional charge.
func ResolveCharge(v *float64) float64 {
	if v == nil {
		return DefaultCharge
	}
	return NormalizeCharge(*v)
}

// ParseCharge converts free-form input into a valid charge. Unparseable or
// empty input yields DefaultCharge, numbers are clamped.
func ParseCharge(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultCharge
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultCharge
	}
	return NormalizeCharge(v)
}

// NormalizeTags trims tags, drops empties and case-insensitive duplicates,
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Or returns v when non-blank, otherwise fallback.
func Or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
