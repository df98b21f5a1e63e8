// Package repository persists fingerprints and comparison records.
//
// Two backends are provided: FileStore keeps a JSON document of fingerprints
// next to an append-only JSON Lines comparison log, and SQLiteStore keeps both
// collections in a single SQLite database. Both load everything at startup and
// are written through on every mutation.
package repository

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/okian/resonance/internal/domain/model"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// File names used inside the data directory.
const (
	FingerprintsFile = "fingerprints.json"
	ComparisonsFile  = "comparisons.jsonl"
	SQLiteFile       = "resonance.db"
)

// Snapshot is the full persisted state in insertion order.
type Snapshot struct {
	Fingerprints []model.Fingerprint
	Comparisons  []model.Comparison
}

// Store provides durable storage for both collections.
type Store interface {
	// Load reads both collections. Missing data yields an empty snapshot;
	// unreadable data is logged and treated as empty.
	Load(ctx context.Context) (Snapshot, error)

	// PutFingerprint inserts or replaces a fingerprint by id.
	PutFingerprint(ctx context.Context, fp *model.Fingerprint) error

	// AppendComparison appends one record to the comparison log.
	AppendComparison(ctx context.Context, c *model.Comparison) error

	// Backend names the storage implementation.
	Backend() string

	Close() error
}

// Open constructs the backend named by backend. dataDir is used by the file
// backend; sqlitePath falls back to dataDir/resonance.db when empty.
func Open(ctx context.Context, backend, dataDir, sqlitePath string, opts ...Option) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dataDir, opts...)
	case BackendSQLite:
		if sqlitePath == "" {
			sqlitePath = filepath.Join(dataDir, SQLiteFile)
		}
		return NewSQLiteStore(ctx, sqlitePath, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
