// Package recorder scores an input against every active fingerprint and
// commits the resulting comparison record.
package recorder

import (
	"context"
	"sort"
	"time"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/registry"
	"github.com/okian/resonance/internal/domain/resonance"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// Committer applies a scoring pass atomically. *registry.Registry implements it.
type Committer interface {
	Commit(ctx context.Context, fn registry.CommitFunc) (model.Comparison, error)
}

// Recorder turns inputs into comparison records.
type Recorder struct {
	committer Committer
	scorer    resonance.Scorer
	logger    logger.Logger
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// New constructs a Recorder.
func New(committer Committer, scorer resonance.Scorer, opts ...Option) *Recorder {
	r := &Recorder{
		committer: committer,
		scorer:    scorer,
		logger:    logger.Named("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record scores text against all active fingerprints at one evaluation
// instant, keeps matches above model.RetainThreshold, and commits the record.
// Fingerprints matched above model.SignificantThreshold get their
// LastSignificantMatch set to the record timestamp.
func (r *Recorder) Record(ctx context.Context, text string, meta model.RecordMeta) (model.Comparison, error) {
	start := time.Now()

	in := resonance.Prepare(text)
	c, err := r.committer.Commit(ctx, func(active []model.Fingerprint) (model.Comparison, error) {
		now := r.scorer.Now().UTC()
		matches := make([]model.Match, 0, len(active))
		for i := range active {
			res := r.scorer.Score(in, &active[i], now)
			if res.Strength > model.RetainThreshold {
				matches = append(matches, res.Match())
			}
		}
		SortMatches(matches)

		return model.Comparison{
			InputText:   text,
			InputType:   model.Or(meta.InputType, model.DefaultInputType),
			Timestamp:   now,
			SourceLabel: model.Or(meta.SourceLabel, model.DefaultSourceLabel),
			PublishedAt: meta.PublishedAt,
			Matches:     matches,
		}, nil
	})
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		r.logger.Error(ctx, "recording comparison failed", logger.String("id", c.ID), logger.Error(err))
		if c.ID == "" {
			return model.Comparison{}, err
		}
	}

	metrics.RecordPulse(c.InputType)
	for _, m := range c.Matches {
		metrics.RecordMatch(string(m.Classification), m.Strength)
	}
	r.logger.Debug(ctx, "comparison recorded",
		logger.String("id", c.ID),
		logger.String("source", c.SourceLabel),
		logger.Int("matches", len(c.Matches)),
		logger.Float64("max_strength", c.MaxStrength()))
	// A non-nil err here means the record was appended and only the
	// fingerprint stamps failed.
	return c, err
}

// SortMatches orders matches by strength descending, ties by fingerprint id.
func SortMatches(matches []model.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Strength != matches[j].Strength {
			return matches[i].Strength > matches[j].Strength
		}
		return matches[i].FingerprintID < matches[j].FingerprintID
	})
}
