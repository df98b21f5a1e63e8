package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS fingerprints (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		intent_text TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		charge REAL NOT NULL,
		created_at INTEGER NOT NULL,
		last_significant_match INTEGER,
		source TEXT NOT NULL,
		priority TEXT NOT NULL,
		category TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		archived_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_fingerprints_owner ON fingerprints(owner);`,
	`CREATE TABLE IF NOT EXISTS comparisons (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		input_text TEXT NOT NULL,
		input_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		source_label TEXT NOT NULL,
		published_at INTEGER,
		matches TEXT NOT NULL DEFAULT '[]'
	);`,
}

const upsertFingerprintSQL = `INSERT INTO fingerprints (
		id, owner, intent_text, tags, charge, created_at, last_significant_match,
		source, priority, category, archived, archived_at
	) VALUES (
		:id, :owner, :intent_text, :tags, :charge, :created_at, :last_significant_match,
		:source, :priority, :category, :archived, :archived_at
	)
	ON CONFLICT(id) DO UPDATE SET
		owner = excluded.owner,
		intent_text = excluded.intent_text,
		tags = excluded.tags,
		charge = excluded.charge,
		created_at = excluded.created_at,
		last_significant_match = excluded.last_significant_match,
		source = excluded.source,
		priority = excluded.priority,
		category = excluded.category,
		archived = excluded.archived,
		archived_at = excluded.archived_at`

const insertComparisonSQL = `INSERT INTO comparisons (
		id, input_text, input_type, timestamp, source_label, published_at, matches
	) VALUES (
		:id, :input_text, :input_type, :timestamp, :source_label, :published_at, :matches
	)`

const selectFingerprintsSQL = `SELECT id, owner, intent_text, tags, charge, created_at,
		last_significant_match, source, priority, category, archived, archived_at
	FROM fingerprints ORDER BY seq`

const selectComparisonsSQL = `SELECT id, input_text, input_type, timestamp, source_label,
		published_at, matches
	FROM comparisons ORDER BY seq`

type fingerprintRow struct {
	ID                   string        `db:"id"`
	Owner                string        `db:"owner"`
	IntentText           string        `db:"intent_text"`
	Tags                 string        `db:"tags"`
	Charge               float64       `db:"charge"`
	CreatedAt            int64         `db:"created_at"`
	LastSignificantMatch sql.NullInt64 `db:"last_significant_match"`
	Source               string        `db:"source"`
	Priority             string        `db:"priority"`
	Category             string        `db:"category"`
	Archived             bool          `db:"archived"`
	ArchivedAt           sql.NullInt64 `db:"archived_at"`
}

type comparisonRow struct {
	ID          string        `db:"id"`
	InputText   string        `db:"input_text"`
	InputType   string        `db:"input_type"`
	Timestamp   int64         `db:"timestamp"`
	SourceLabel string        `db:"source_label"`
	PublishedAt sql.NullInt64 `db:"published_at"`
	Matches     string        `db:"matches"`
}

// SQLiteStore keeps both collections in one SQLite database. Times are stored
// as Unix nanoseconds; tags and matches as JSON text.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
	cfg  storeConfig
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	cfg := newStoreConfig(opts)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), defaultDirMode); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	busy := cfg.busyTimeout.Milliseconds()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection keeps upsert order identical to call order.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.busyTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, path: abs, cfg: cfg}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Path returns the absolute database path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// Load implements Store. Rows that cannot be decoded are logged and skipped.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	var fpRows []fingerprintRow
	if err := s.db.SelectContext(ctx, &fpRows, selectFingerprintsSQL); err != nil {
		s.cfg.logger.Warn(ctx, "fingerprint table unreadable, starting empty", logger.Error(err))
		metrics.RecordStoreCorruption(BackendSQLite, "fingerprints")
		fpRows = nil
	}
	var cRows []comparisonRow
	if err := s.db.SelectContext(ctx, &cRows, selectComparisonsSQL); err != nil {
		s.cfg.logger.Warn(ctx, "comparison table unreadable, starting empty", logger.Error(err))
		metrics.RecordStoreCorruption(BackendSQLite, "comparisons")
		cRows = nil
	}

	var out Snapshot
	for i := range fpRows {
		fp, err := fpRows[i].toModel()
		if err != nil {
			s.cfg.logger.Warn(ctx, "dropping unreadable fingerprint row",
				logger.String("id", fpRows[i].ID), logger.Error(err))
			metrics.RecordStoreCorruption(BackendSQLite, "fingerprints")
			continue
		}
		out.Fingerprints = append(out.Fingerprints, fp)
	}
	for i := range cRows {
		c, err := cRows[i].toModel()
		if err != nil {
			s.cfg.logger.Warn(ctx, "dropping unreadable comparison row",
				logger.String("id", cRows[i].ID), logger.Error(err))
			metrics.RecordStoreCorruption(BackendSQLite, "comparisons")
			continue
		}
		out.Comparisons = append(out.Comparisons, c)
	}
	return out, nil
}

// PutFingerprint implements Store.
func (s *SQLiteStore) PutFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	start := time.Now()
	row, err := fingerprintToRow(fp)
	if err != nil {
		metrics.RecordStoreError(BackendSQLite, "put_fingerprint")
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, upsertFingerprintSQL, row); err != nil {
		metrics.RecordStoreError(BackendSQLite, "put_fingerprint")
		s.cfg.logger.Error(ctx, "fingerprint upsert failed", logger.String("id", fp.ID), logger.Error(err))
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	metrics.RecordStoreWrite(BackendSQLite, "fingerprints", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// AppendComparison implements Store.
func (s *SQLiteStore) AppendComparison(ctx context.Context, c *model.Comparison) error {
	start := time.Now()
	row, err := comparisonToRow(c)
	if err != nil {
		metrics.RecordStoreError(BackendSQLite, "append_comparison")
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, insertComparisonSQL, row); err != nil {
		metrics.RecordStoreError(BackendSQLite, "append_comparison")
		s.cfg.logger.Error(ctx, "comparison insert failed", logger.String("id", c.ID), logger.Error(err))
		return fmt.Errorf("insert comparison: %w", err)
	}
	metrics.RecordStoreWrite(BackendSQLite, "comparisons", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func fingerprintToRow(fp *model.Fingerprint) (fingerprintRow, error) {
	tags := fp.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return fingerprintRow{}, fmt.Errorf("encode tags: %w", err)
	}
	return fingerprintRow{
		ID:                   fp.ID,
		Owner:                fp.Owner,
		IntentText:           fp.IntentText,
		Tags:                 string(rawTags),
		Charge:               fp.Charge,
		CreatedAt:            fp.CreatedAt.UnixNano(),
		LastSignificantMatch: toNullNanos(fp.LastSignificantMatch),
		Source:               fp.Metadata.Source,
		Priority:             fp.Metadata.Priority,
		Category:             fp.Metadata.Category,
		Archived:             fp.Metadata.Archived,
		ArchivedAt:           toNullNanos(fp.Metadata.ArchivedAt),
	}, nil
}

func (r *fingerprintRow) toModel() (model.Fingerprint, error) {
	var tags []string
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return model.Fingerprint{}, fmt.Errorf("%w: tags: %w", ErrCorrupt, err)
	}
	return model.Fingerprint{
		ID:                   r.ID,
		Owner:                r.Owner,
		IntentText:           r.IntentText,
		Tags:                 tags,
		Charge:               r.Charge,
		CreatedAt:            time.Unix(0, r.CreatedAt).UTC(),
		LastSignificantMatch: fromNullNanos(r.LastSignificantMatch),
		Metadata: model.Metadata{
			Source:     r.Source,
			Priority:   r.Priority,
			Category:   r.Category,
			Archived:   r.Archived,
			ArchivedAt: fromNullNanos(r.ArchivedAt),
		},
	}, nil
}

func comparisonToRow(c *model.Comparison) (comparisonRow, error) {
	matches := c.Matches
	if matches == nil {
		matches = []model.Match{}
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return comparisonRow{}, fmt.Errorf("encode matches: %w", err)
	}
	return comparisonRow{
		ID:          c.ID,
		InputText:   c.InputText,
		InputType:   c.InputType,
		Timestamp:   c.Timestamp.UnixNano(),
		SourceLabel: c.SourceLabel,
		PublishedAt: toNullNanos(c.PublishedAt),
		Matches:     string(raw),
	}, nil
}

func (r *comparisonRow) toModel() (model.Comparison, error) {
	var matches []model.Match
	if err := json.Unmarshal([]byte(r.Matches), &matches); err != nil {
		return model.Comparison{}, fmt.Errorf("%w: matches: %w", ErrCorrupt, err)
	}
	return model.Comparison{
		ID:          r.ID,
		InputText:   r.InputText,
		InputType:   r.InputType,
		Timestamp:   time.Unix(0, r.Timestamp).UTC(),
		SourceLabel: r.SourceLabel,
		PublishedAt: fromNullNanos(r.PublishedAt),
		Matches:     matches,
	}, nil
}
