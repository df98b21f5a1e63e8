package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
)

// Spool defaults.
const (
	defaultMaxFileSize = 1 << 20
)

// spoolExtensions are the file types read from a spool directory.
var spoolExtensions = map[string]bool{".txt": true, ".md": true, ".text": true} //nolint:gochecknoglobals // fixed lookup

// Spool turns text files dropped into a directory into items. A filesystem
// watcher collects created and rewritten files between polls; the first poll
// also picks up files already present.
type Spool struct {
	dir         string
	maxFileSize int64
	backlog     bool
	logger      logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	scanned bool
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// SpoolOption applies a configuration option to a Spool.
type SpoolOption func(*Spool)

// WithBacklog controls whether files present before the first poll are read.
func WithBacklog(enabled bool) SpoolOption {
	return func(s *Spool) { s.backlog = enabled }
}

// WithMaxFileSize caps how many bytes are read from one file.
func WithMaxFileSize(n int64) SpoolOption {
	return func(s *Spool) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithSpoolLogger sets the spool logger.
func WithSpoolLogger(l logger.Logger) SpoolOption {
	return func(s *Spool) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSpool creates a Spool over dir, creating the directory when missing.
func NewSpool(dir string, opts ...SpoolOption) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	s := &Spool{
		dir:         dir,
		maxFileSize: defaultMaxFileSize,
		backlog:     true,
		logger:      logger.Named("spool"),
		pending:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Adapter.
func (s *Spool) Name() string { return "spool" }

// Dir returns the watched directory.
func (s *Spool) Dir() string { return s.dir }

// Start begins watching the directory. Calling Start on a running spool is a no-op.
func (s *Spool) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.watcher = w
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.watchLoop(loopCtx, w, s.done)

	s.logger.Info(ctx, "spool watching", logger.String("dir", s.dir))
	return nil
}

// Stop ends watching. Files seen but not yet polled stay pending.
func (s *Spool) Stop() error {
	s.mu.Lock()
	w, cancel, done := s.watcher, s.cancel, s.done
	s.watcher, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	cancel()
	err := w.Close()
	<-done
	return err
}

func (s *Spool) watchLoop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isSpoolFile(ev.Name) {
				continue
			}
			s.mu.Lock()
			s.pending[filepath.Clean(ev.Name)] = struct{}{}
			s.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, "spool watcher error", logger.Error(err))
		}
	}
}

// Poll implements Adapter.
func (s *Spool) Poll(ctx context.Context) ([]model.Item, error) {
	s.mu.Lock()
	if !s.scanned {
		s.scanned = true
		if s.backlog {
			if err := s.scanLocked(); err != nil {
				s.mu.Unlock()
				return nil, err
			}
		}
	}
	paths := make([]string, 0, len(s.pending))
	for p := range s.pending {
		paths = append(paths, p)
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	sort.Strings(paths)
	items := make([]model.Item, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, ok, err := s.readItem(p)
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable spool file", logger.String("path", p), logger.Error(err))
			continue
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Spool) scanLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan spool: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		if isSpoolFile(p) {
			s.pending[filepath.Clean(p)] = struct{}{}
		}
	}
	return nil
}

func (s *Spool) readItem(path string) (model.Item, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Item{}, false, nil
	}
	if err != nil {
		return model.Item{}, false, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return model.Item{}, false, err
	}
	if st.IsDir() {
		return model.Item{}, false, nil
	}
	data, err := io.ReadAll(io.LimitReader(f, s.maxFileSize))
	if err != nil {
		return model.Item{}, false, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return model.Item{}, false, nil
	}
	return model.Item{
		Text:        text,
		SourceLabel: "spool:" + filepath.Base(path),
		PublishedAt: st.ModTime().UTC().Truncate(time.Millisecond),
	}, true, nil
}

func isSpoolFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return spoolExtensions[strings.ToLower(filepath.Ext(base))]
}
