package model

import "time"

// Classification buckets a strength into one of five ordered labels.
type Classification string

const (
	StrongEntanglement Classification = "strong-entanglement"
	StrongResonance    Classification = "strong-resonance"
	SubtleAttraction   Classification = "subtle-attraction"
	FaintEcho          Classification = "faint-echo"
	MinimalResponse    Classification = "minimal-response"
)

// Thresholds shared by the recorder and the classifier.
const (
	// RetainThreshold: matches at or below it are not kept in a comparison.
	RetainThreshold = 0.1
	// SignificantThreshold: matches above it refresh LastSignificantMatch.
	SignificantThreshold = 0.4
)

// Input type and source defaults for direct recordings.
const (
	DefaultInputType   = "text"
	DefaultSourceLabel = "direct"
	FeedInputType      = "feed"
)

// Comparison is the immutable record of one input scored against every active
// fingerprint at one instant.
type Comparison struct {
	ID          string     `json:"id"`
	InputText   string     `json:"input_text"`
	InputType   string     `json:"input_type"`
	Timestamp   time.Time  `json:"timestamp"`
	SourceLabel string     `json:"source_label"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Matches     []Match    `json:"matches"`
}

// Match ties a comparison to one fingerprint by id.
type Match struct {
	FingerprintID  string         `json:"fingerprint_id"`
	Strength       float64        `json:"strength"`
	Classification Classification `json:"classification"`
	Evidence       Evidence       `json:"evidence"`
}

// Evidence breaks a strength down into its terms.
type Evidence struct {
	Similarity       float64  `json:"similarity"`
	ChargeMultiplier float64  `json:"charge_multiplier"`
	TagBonus         float64  `json:"tag_bonus"`
	RecencyBonus     float64  `json:"recency_bonus"`
	MatchedTags      []string `json:"matched_tags,omitempty"`
	SharedTerms      []string `json:"shared_terms,omitempty"`
}

// MaxStrength returns the highest match strength, 0 when there are no matches.
func (c *Comparison) MaxStrength() float64 {
	best := 0.0
	for i := range c.Matches {
		if c.Matches[i].Strength > best {
			best = c.Matches[i].Strength
		}
	}
	return best
}

// CountAtLeast counts matches whose strength is >= min.
func (c *Comparison) CountAtLeast(min float64) int {
	n := 0
	for i := range c.Matches {
		if c.Matches[i].Strength >= min {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (c Comparison) Clone() Comparison { //nolint:gocritic // value receiver produces the copy
	out := c
	if c.PublishedAt != nil {
		ts := *c.PublishedAt
		out.PublishedAt = &ts
	}
	if c.Matches != nil {
		out.Matches = make([]Match, len(c.Matches))
		for i, m := range c.Matches {
			m.Evidence.MatchedTags = append([]string(nil), m.Evidence.MatchedTags...)
			m.Evidence.SharedTerms = append([]string(nil), m.Evidence.SharedTerms...)
			out.Matches[i] = m
		}
	}
	return out
}

// RecordMeta describes where a recorded input came from.
type RecordMeta struct {
	InputType   string
	SourceLabel string
	PublishedAt *time.Time
}
