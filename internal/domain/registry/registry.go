// Package registry owns the in-memory fingerprint and comparison collections
// and keeps them in step with a repository.Store.
//
// A Registry is constructed once per storage location. Every mutation holds
// the write lock for the full operation, including the durable write, so two
// writers never interleave. Reads share the lock and return copies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/resonance/internal/adapters/repository"
	"github.com/okian/resonance/internal/domain/ids"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// Id prefixes.
const (
	FingerprintPrefix = "fp_"
	PulsePrefix       = "pulse_"
)

// CommitFunc scores one input against the active fingerprints and returns
// the record to append. It runs under the registry write lock and must not
// call back into the Registry.
type CommitFunc func(active []model.Fingerprint) (model.Comparison, error)

// Counts summarises the collections.
type Counts struct {
	Fingerprints int `json:"fingerprints"`
	Active       int `json:"active"`
	Archived     int `json:"archived"`
	Comparisons  int `json:"comparisons"`
}

type entry struct {
	fp  model.Fingerprint
	seq int
}

// Registry is the fingerprint store.
type Registry struct {
	store  repository.Store
	ids    ids.Generator
	clock  func() time.Time
	logger logger.Logger

	mu          sync.RWMutex
	closed      bool
	entries     []*entry
	byID        map[string]*entry
	comparisons []model.Comparison
	compByID    map[string]int
}

// Open loads both collections from store and returns a ready Registry.
func Open(ctx context.Context, store repository.Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:    store,
		ids:      ids.NewHashGenerator(),
		clock:    time.Now,
		logger:   logger.Named("registry"),
		byID:     make(map[string]*entry),
		compByID: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	for i := range snap.Fingerprints {
		e := &entry{fp: snap.Fingerprints[i], seq: len(r.entries)}
		r.entries = append(r.entries, e)
		r.byID[e.fp.ID] = e
	}
	for i := range snap.Comparisons {
		r.compByID[snap.Comparisons[i].ID] = len(r.comparisons)
		r.comparisons = append(r.comparisons, snap.Comparisons[i])
	}

	r.logger.Info(ctx, "registry loaded",
		logger.String("backend", store.Backend()),
		logger.Int("fingerprints", len(r.entries)),
		logger.Int("comparisons", len(r.comparisons)))
	r.updateGauges()
	return r, nil
}

// Register creates a fingerprint and persists it. When the durable write
// fails the fingerprint stays registered in memory and the error is returned
// with it.
func (r *Registry) Register(ctx context.Context, intentText, owner string, opts model.RegisterOptions) (model.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.Fingerprint{}, ErrClosed
	}

	now := r.clock().UTC()
	fp := model.Fingerprint{
		ID:         FingerprintPrefix + r.ids.NewID(owner+"\x00"+intentText, now),
		Owner:      owner,
		IntentText: intentText,
		Tags:       model.NormalizeTags(opts.Tags),
		Charge:     model.ResolveCharge(opts.Charge),
		CreatedAt:  now,
		Metadata: model.Metadata{
			Source:   model.Or(opts.Source, model.DefaultSource),
			Priority: model.Or(opts.Priority, model.DefaultPriority),
			Category: model.Or(opts.Category, model.DefaultCategory),
		},
	}

	e := &entry{fp: fp, seq: len(r.entries)}
	r.entries = append(r.entries, e)
	r.byID[fp.ID] = e
	metrics.RecordFingerprintRegistered()
	r.updateGauges()

	if err := r.store.PutFingerprint(ctx, &e.fp); err != nil {
		metrics.RecordErrorByComponent("registry", "persist")
		return fp.Clone(), fmt.Errorf("%w: fingerprint %s: %w", ErrPersist, fp.ID, err)
	}

	r.logger.Debug(ctx, "fingerprint registered",
		logger.String("id", fp.ID),
		logger.String("owner", owner),
		logger.Float64("charge", fp.Charge))
	return fp.Clone(), nil
}

// Archive tombstones a fingerprint. It reports false for unknown ids.
// Archiving an archived fingerprint reports true without touching it.
func (r *Registry) Archive(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	e, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if e.fp.Metadata.Archived {
		return true, nil
	}

	now := r.clock().UTC()
	e.fp.Metadata.Archived = true
	e.fp.Metadata.ArchivedAt = &now
	metrics.RecordFingerprintArchived()
	r.updateGauges()

	if err := r.store.PutFingerprint(ctx, &e.fp); err != nil {
		metrics.RecordErrorByComponent("registry", "persist")
		return true, fmt.Errorf("%w: fingerprint %s: %w", ErrPersist, id, err)
	}
	r.logger.Info(ctx, "fingerprint archived", logger.String("id", id))
	return true, nil
}

// Get returns a copy of the fingerprint with id.
func (r *Registry) Get(_ context.Context, id string) (model.Fingerprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return model.Fingerprint{}, fmt.Errorf("fingerprint %s: %w", id, ErrNotFound)
	}
	return e.fp.Clone(), nil
}

// Query returns the fingerprints matching f, newest created first. Equal
// creation times put the later registration first.
func (r *Registry) Query(_ context.Context, f model.Filter) []model.Fingerprint {
	r.mu.RLock()
	matched := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.Matches(&e.fp) {
			matched = append(matched, e)
		}
	}
	out := make([]model.Fingerprint, 0, len(matched))
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.fp.CreatedAt.Equal(b.fp.CreatedAt) {
			return a.fp.CreatedAt.After(b.fp.CreatedAt)
		}
		return a.seq > b.seq
	})
	for _, e := range matched {
		out = append(out, e.fp.Clone())
	}
	r.mu.RUnlock()
	return out
}

// Active returns copies of the non-archived fingerprints in registration order.
func (r *Registry) Active(_ context.Context) []model.Fingerprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() []model.Fingerprint {
	out := make([]model.Fingerprint, 0, len(r.entries))
	for _, e := range r.entries {
		if e.fp.Active() {
			out = append(out, e.fp.Clone())
		}
	}
	return out
}

// Comparisons returns copies of every record in append order.
func (r *Registry) Comparisons(_ context.Context) []model.Comparison {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Comparison, len(r.comparisons))
	for i := range r.comparisons {
		out[i] = r.comparisons[i].Clone()
	}
	return out
}

// Comparison returns a copy of the record with id.
func (r *Registry) Comparison(_ context.Context, id string) (model.Comparison, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.compByID[id]
	if !ok {
		return model.Comparison{}, fmt.Errorf("comparison %s: %w", id, ErrNotFound)
	}
	return r.comparisons[i].Clone(), nil
}

// Counts returns collection sizes.
func (r *Registry) Counts(_ context.Context) Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *Registry) countsLocked() Counts {
	c := Counts{Fingerprints: len(r.entries), Comparisons: len(r.comparisons)}
	for _, e := range r.entries {
		if e.fp.Active() {
			c.Active++
		}
	}
	c.Archived = c.Fingerprints - c.Active
	return c
}

// Commit runs fn over the active fingerprints under the write lock, appends
// the record it returns and stamps LastSignificantMatch on every fingerprint
// the record matched above model.SignificantThreshold.
//
// The record is only kept when its append succeeds. Stamp writes that fail
// after a successful append are reported together; the record and the
// in-memory stamps remain.
func (r *Registry) Commit(ctx context.Context, fn CommitFunc) (model.Comparison, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.Comparison{}, ErrClosed
	}

	c, err := fn(r.activeLocked())
	if err != nil {
		return model.Comparison{}, err
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = r.clock().UTC()
	}
	if c.ID == "" {
		c.ID = PulsePrefix + r.ids.NewID(c.InputText, c.Timestamp)
	}
	if _, dup := r.compByID[c.ID]; dup {
		return model.Comparison{}, fmt.Errorf("comparison %s already recorded", c.ID)
	}

	if err := r.store.AppendComparison(ctx, &c); err != nil {
		metrics.RecordErrorByComponent("registry", "persist")
		return model.Comparison{}, fmt.Errorf("%w: comparison %s: %w", ErrPersist, c.ID, err)
	}
	r.compByID[c.ID] = len(r.comparisons)
	r.comparisons = append(r.comparisons, c)

	var errs []error
	for _, m := range c.Matches {
		if m.Strength <= model.SignificantThreshold {
			continue
		}
		e, ok := r.byID[m.FingerprintID]
		if !ok {
			continue
		}
		ts := c.Timestamp
		e.fp.LastSignificantMatch = &ts
		if err := r.store.PutFingerprint(ctx, &e.fp); err != nil {
			metrics.RecordErrorByComponent("registry", "persist")
			errs = append(errs, fmt.Errorf("fingerprint %s: %w", e.fp.ID, err))
		}
	}
	r.updateGauges()

	if len(errs) > 0 {
		return c.Clone(), fmt.Errorf("%w: %w", ErrPersist, errors.Join(errs...))
	}
	return c.Clone(), nil
}

// Close closes the backing store. Further mutations fail with ErrClosed;
// reads keep serving the in-memory state.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.store.Close()
}

func (r *Registry) updateGauges() {
	c := r.countsLocked()
	metrics.UpdateActiveFingerprints(c.Active)
	metrics.UpdateStoredComparisons(c.Comparisons)
}
