// Package dedupe remembers which feed items were already recorded so that an
// adapter re-delivering an item does not produce a second comparison.
package dedupe

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/resonance/internal/domain/model"
)

// Default number of remembered items.
const DefaultMaxSize = 50000

// Deduper records seen item keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key uint64) bool

	// Unrecord forgets key, so a failed recording can be retried on the next tick.
	Unrecord(ctx context.Context, key uint64)

	Size() int64
}

// ItemKey hashes the identity of an item: its source, publication time and text.
func ItemKey(item model.Item) uint64 { //nolint:gocritic // value type passed from adapters
	d := xxhash.New()
	_, _ = d.WriteString(item.SourceLabel)
	_, _ = d.WriteString("\x00")
	if !item.PublishedAt.IsZero() {
		_, _ = d.WriteString(strconv.FormatInt(item.PublishedAt.UnixNano(), 10))
	}
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(item.Text)
	return d.Sum64()
}

// inMemoryDeduper keeps keys in a map with a ring of insertion order. When
// bounded, the oldest key is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[uint64]int // key -> slot in ring, -1 when unbounded
	ring    []uint64
	live    []bool
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[uint64]int)
	if d.maxSize > 0 {
		d.ring = make([]uint64, d.maxSize)
		d.live = make([]bool, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[key] = -1
		d.size.Add(1)
		return false
	}

	slot := d.next
	if d.live[slot] {
		delete(d.seen, d.ring[slot])
		d.size.Add(-1)
	}
	d.ring[slot] = key
	d.live[slot] = true
	d.seen[key] = slot
	d.next = (slot + 1) % d.maxSize
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	if slot >= 0 {
		d.live[slot] = false
	}
	d.size.Add(-1)
}

// Size implements Deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
