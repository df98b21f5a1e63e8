package repository

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// documentVersion is the current fingerprints.json layout.
const documentVersion = 1

type fingerprintDocument struct {
	Version      int                 `json:"version"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Fingerprints []model.Fingerprint `json:"fingerprints"`
}

// FileStore keeps fingerprints in a JSON document that is replaced atomically
// on every write, and comparisons in an append-only JSON Lines log.
type FileStore struct {
	dir string
	cfg storeConfig

	mu           sync.Mutex
	loaded       bool
	closed       bool
	fingerprints []model.Fingerprint
	index        map[string]int
	log          *os.File
	logSize      int64
}

var _ Store = (*FileStore)(nil)

// NewFileStore prepares dir for use. Nothing is read until Load.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		dir:   dir,
		cfg:   newStoreConfig(opts),
		index: make(map[string]int),
	}, nil
}

// Backend implements Store.
func (s *FileStore) Backend() string { return BackendFile }

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load implements Store. A comparison log holding unreadable lines is
// rewritten without them before the append handle is opened.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if s.log != nil {
		_ = s.log.Close()
		s.log = nil
	}

	fps := s.loadFingerprints(ctx)
	s.fingerprints = fps
	s.index = make(map[string]int, len(fps))
	for i := range fps {
		s.index[fps[i].ID] = i
	}

	comps, dirty := s.loadComparisons(ctx)
	if dirty {
		if err := s.rewriteComparisons(comps); err != nil {
			metrics.RecordStoreError(BackendFile, "compact")
			return Snapshot{}, fmt.Errorf("compact comparison log: %w", err)
		}
		s.cfg.logger.Info(ctx, "comparison log compacted", logger.Int("records", len(comps)))
	}

	f, err := os.OpenFile(s.path(ComparisonsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFileMode)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open comparison log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Snapshot{}, fmt.Errorf("stat comparison log: %w", err)
	}
	s.log = f
	s.logSize = st.Size()
	s.loaded = true

	out := Snapshot{
		Fingerprints: make([]model.Fingerprint, len(fps)),
		Comparisons:  comps,
	}
	for i := range fps {
		out.Fingerprints[i] = fps[i].Clone()
	}
	return out, nil
}

func (s *FileStore) loadFingerprints(ctx context.Context) []model.Fingerprint {
	data, err := os.ReadFile(s.path(FingerprintsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.cfg.logger.Warn(ctx, "fingerprint store unreadable, starting empty", logger.Error(err))
		metrics.RecordStoreCorruption(BackendFile, "fingerprints")
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var doc fingerprintDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.cfg.logger.Warn(ctx, "fingerprint store corrupt, starting empty",
			logger.String("path", s.path(FingerprintsFile)),
			logger.Error(fmt.Errorf("%w: %w", ErrCorrupt, err)))
		metrics.RecordStoreCorruption(BackendFile, "fingerprints")
		return nil
	}

	out := doc.Fingerprints[:0]
	seen := make(map[string]bool, len(doc.Fingerprints))
	for _, fp := range doc.Fingerprints {
		if fp.ID == "" || seen[fp.ID] {
			s.cfg.logger.Warn(ctx, "dropping fingerprint with missing or duplicate id", logger.String("id", fp.ID))
			continue
		}
		seen[fp.ID] = true
		out = append(out, fp)
	}
	return out
}

// loadComparisons returns the readable records and whether the log needs to
// be rewritten.
func (s *FileStore) loadComparisons(ctx context.Context) ([]model.Comparison, bool) {
	f, err := os.Open(s.path(ComparisonsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		s.cfg.logger.Warn(ctx, "comparison log unreadable, starting empty", logger.Error(err))
		metrics.RecordStoreCorruption(BackendFile, "comparisons")
		return nil, false
	}
	defer func() { _ = f.Close() }()

	var (
		out     []model.Comparison
		dirty   bool
		dropped int
		lineNo  int
	)
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if readErr == io.EOF {
				// A record without its newline was cut short by a crash, or
				// would be glued to the next append.
				dirty = true
			}
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var c model.Comparison
				if err := json.Unmarshal(trimmed, &c); err != nil || c.ID == "" {
					dropped++
					dirty = true
					s.cfg.logger.Warn(ctx, "dropping unreadable comparison record", logger.Int("line", lineNo))
				} else {
					out = append(out, c)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.cfg.logger.Warn(ctx, "comparison log read failed, keeping records read so far", logger.Error(readErr))
			metrics.RecordStoreCorruption(BackendFile, "comparisons")
			return out, true
		}
	}
	if dropped > 0 {
		metrics.RecordStoreCorruption(BackendFile, "comparisons")
	}
	return out, dirty
}

// PutFingerprint implements Store. The in-memory copy is updated before the
// document is written, so a failed write is healed by the next successful one.
func (s *FileStore) PutFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.loaded {
		return ErrNotLoaded
	}

	cp := fp.Clone()
	if i, ok := s.index[cp.ID]; ok {
		s.fingerprints[i] = cp
	} else {
		s.index[cp.ID] = len(s.fingerprints)
		s.fingerprints = append(s.fingerprints, cp)
	}

	data, err := json.MarshalIndent(fingerprintDocument{
		Version:      documentVersion,
		UpdatedAt:    time.Now().UTC(),
		Fingerprints: s.fingerprints,
	}, "", "  ")
	if err != nil {
		metrics.RecordStoreError(BackendFile, "put_fingerprint")
		return fmt.Errorf("encode fingerprints: %w", err)
	}
	if err := writeFileAtomic(s.path(FingerprintsFile), data, s.cfg.fsync); err != nil {
		metrics.RecordStoreError(BackendFile, "put_fingerprint")
		s.cfg.logger.Error(ctx, "fingerprint write failed", logger.String("id", cp.ID), logger.Error(err))
		return fmt.Errorf("write fingerprints: %w", err)
	}

	metrics.RecordStoreWrite(BackendFile, "fingerprints", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// AppendComparison implements Store. A failed append is truncated back so
// the log never holds a partial record followed by a valid one.
func (s *FileStore) AppendComparison(ctx context.Context, c *model.Comparison) error {
	start := time.Now()

	line, err := json.Marshal(c)
	if err != nil {
		metrics.RecordStoreError(BackendFile, "append_comparison")
		return fmt.Errorf("encode comparison: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.loaded || s.log == nil {
		return ErrNotLoaded
	}

	n, err := s.log.Write(line)
	if err == nil && s.cfg.fsync {
		err = s.log.Sync()
	}
	if err != nil {
		metrics.RecordStoreError(BackendFile, "append_comparison")
		if n > 0 {
			if terr := s.log.Truncate(s.logSize); terr != nil {
				s.cfg.logger.Error(ctx, "truncating partial comparison record failed", logger.Error(terr))
			}
		}
		s.cfg.logger.Error(ctx, "comparison append failed", logger.String("id", c.ID), logger.Error(err))
		return fmt.Errorf("append comparison: %w", err)
	}
	s.logSize += int64(n)

	metrics.RecordStoreWrite(BackendFile, "comparisons", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}

func (s *FileStore) rewriteComparisons(comps []model.Comparison) error {
	var buf bytes.Buffer
	for i := range comps {
		line, err := json.Marshal(&comps[i])
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(s.path(ComparisonsFile), buf.Bytes(), s.cfg.fsync)
}

// writeFileAtomic writes data to a temporary sibling of path and renames it
// into place.
func writeFileAtomic(path string, data []byte, fsync bool) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if fsync {
		if err = tmp.Sync(); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, defaultFileMode); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	if fsync {
		syncDir(dir)
	}
	return nil
}

// syncDir flushes a directory entry; not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
