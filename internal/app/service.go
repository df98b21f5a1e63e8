// Package service wires the resonance components together and exposes the
// operations used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/resonance/internal/adapters/feed"
	eventqueue "github.com/okian/resonance/internal/adapters/mq/queue"
	workerpool "github.com/okian/resonance/internal/adapters/mq/worker"
	"github.com/okian/resonance/internal/adapters/poller"
	"github.com/okian/resonance/internal/adapters/repository"
	"github.com/okian/resonance/internal/domain/convergence"
	"github.com/okian/resonance/internal/domain/dedupe"
	"github.com/okian/resonance/internal/domain/ids"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/recorder"
	"github.com/okian/resonance/internal/domain/registry"
	"github.com/okian/resonance/internal/domain/resonance"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// InboxName labels items pushed through the service.
const InboxName = "inbox"

// Service owns the registry, the scoring pipeline, the poll scheduler and the
// notification dispatch pool.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry  *registry.Registry
	engine    *resonance.Engine
	recorder  *recorder.Recorder
	detector  *convergence.Detector
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	sinks     *workerpool.SinkSet
	pool      *workerpool.Pool
	scheduler *poller.Scheduler
	inbox     *feed.Inbox
	spool     *feed.Spool

	// Configuration
	backend         string
	dataDir         string
	sqlitePath      string
	idScheme        string
	pollInterval    time.Duration
	pollOnStart     bool
	autostartPoller bool
	highThreshold   float64
	minStrength     float64
	minMatches      int
	queueSize       int
	dispatchWorkers int
	dedupeSize      int
	spoolDir        string
	watchURLs       []string
	fetchTimeout    time.Duration
	clock           func() time.Time

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service with default configuration. Nothing is opened
// until Start.
func New(opts ...Option) *Service {
	s := &Service{
		backend:         repository.BackendFile,
		dataDir:         "data",
		idScheme:        "hash",
		pollInterval:    poller.DefaultInterval,
		highThreshold:   poller.DefaultHighThreshold,
		minStrength:     convergence.DefaultMinStrength,
		minMatches:      convergence.DefaultMinMatches,
		queueSize:       1024,
		dispatchWorkers: 2,
		dedupeSize:      dedupe.DefaultMaxSize,
		fetchTimeout:    30 * time.Second,
		clock:           time.Now,
		logger:          logger.Named("service"),
		sinks:           workerpool.NewSinkSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts notification dispatch. The poll scheduler
// is started too when autostart is enabled. Starting twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting resonance service...", logger.String("backend", s.backend))

	gen, err := ids.ForScheme(s.idScheme)
	if err != nil {
		return err
	}
	store, err := repository.Open(ctx, s.backend, s.dataDir, s.sqlitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	reg, err := registry.Open(ctx, store,
		registry.WithIDGenerator(gen),
		registry.WithClock(s.clock),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open registry: %w", err)
	}

	s.registry = reg
	s.engine = resonance.NewEngine(resonance.WithClock(s.clock))
	s.recorder = recorder.New(reg, s.engine)
	s.detector = convergence.NewDetector(reg)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.inbox = feed.NewInbox(InboxName, s.queueSize)

	if err := s.buildScheduler(); err != nil {
		_ = reg.Close()
		s.registry = nil
		return err
	}

	if s.sinks.Len() == 0 {
		s.sinks.Add(workerpool.NewLogSink(logger.Named("notifications")))
	}
	s.pool = workerpool.NewPool(s.dispatchWorkers, s.queue, s.sinks)
	if err := s.pool.Start(context.WithoutCancel(ctx)); err != nil {
		_ = reg.Close()
		s.registry = nil
		return fmt.Errorf("start dispatchers: %w", err)
	}

	s.started = true
	s.startedAt = s.clock().UTC()

	if s.autostartPoller {
		s.startSchedulerLocked(ctx)
	}

	counts := reg.Counts(ctx)
	s.logger.Info(ctx, "resonance service started",
		logger.Int("fingerprints", counts.Fingerprints),
		logger.Int("comparisons", counts.Comparisons),
		logger.Int("dispatchers", s.dispatchWorkers),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

func (s *Service) buildScheduler() error {
	adapters := []feed.Adapter{s.inbox}
	s.spool = nil
	if s.spoolDir != "" {
		sp, err := feed.NewSpool(s.spoolDir)
		if err != nil {
			return fmt.Errorf("spool adapter: %w", err)
		}
		s.spool = sp
		adapters = append(adapters, sp)
	}
	if len(s.watchURLs) > 0 {
		web, err := feed.NewWebPage(s.watchURLs, feed.WithFetchTimeout(s.fetchTimeout))
		if err != nil {
			return fmt.Errorf("web adapter: %w", err)
		}
		adapters = append(adapters, web)
	}

	sched, err := poller.New(s.recorder,
		poller.WithAdapters(adapters...),
		poller.WithPublisher(s.queue),
		poller.WithDeduper(s.deduper),
		poller.WithInterval(s.pollInterval),
		poller.WithHighThreshold(s.highThreshold),
		poller.WithImmediateTick(s.pollOnStart),
		poller.WithClock(s.clock),
	)
	if err != nil {
		return err
	}
	s.scheduler = sched
	return nil
}

// Stop halts the scheduler, drains pending notifications and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping resonance service...")

	s.stopSchedulerLocked()

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown dispatchers: %w", err))
	}
	if err := s.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "resonance service stopped")
	return errors.Join(errs...)
}

// Register creates a fingerprint.
func (s *Service) Register(ctx context.Context, intentText, owner string, opts model.RegisterOptions) (model.Fingerprint, error) {
	reg, err := s.reg()
	if err != nil {
		return model.Fingerprint{}, err
	}
	return reg.Register(ctx, intentText, owner, opts)
}

// Archive retires a fingerprint. Unknown ids report false.
func (s *Service) Archive(ctx context.Context, id string) (bool, error) {
	reg, err := s.reg()
	if err != nil {
		return false, err
	}
	ok, err := reg.Archive(ctx, id)
	if ok {
		s.mu.RLock()
		s.engine.Forget(id)
		s.mu.RUnlock()
	}
	return ok, err
}

// Fingerprint returns one fingerprint by id.
func (s *Service) Fingerprint(ctx context.Context, id string) (model.Fingerprint, error) {
	reg, err := s.reg()
	if err != nil {
		return model.Fingerprint{}, err
	}
	return reg.Get(ctx, id)
}

// Fingerprints lists fingerprints matching f, newest first.
func (s *Service) Fingerprints(ctx context.Context, f model.Filter) ([]model.Fingerprint, error) {
	reg, err := s.reg()
	if err != nil {
		return nil, err
	}
	return reg.Query(ctx, f), nil
}

// Record scores text against the active fingerprints and stores the result.
// Direct recordings never emit notifications.
func (s *Service) Record(ctx context.Context, text string, meta model.RecordMeta) (model.Comparison, error) {
	s.mu.RLock()
	started, rec := s.started, s.recorder
	s.mu.RUnlock()
	if !started {
		return model.Comparison{}, ErrNotStarted
	}
	return rec.Record(ctx, text, meta)
}

// Comparison returns one comparison record by id.
func (s *Service) Comparison(ctx context.Context, id string) (model.Comparison, error) {
	reg, err := s.reg()
	if err != nil {
		return model.Comparison{}, err
	}
	return reg.Comparison(ctx, id)
}

// ConvergenceDefaults returns the configured convergence thresholds.
func (s *Service) ConvergenceDefaults() convergence.Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return convergence.Criteria{MinStrength: s.minStrength, MinMatches: s.minMatches}
}

// Convergences returns comparisons matching c. The thresholds in c are
// applied as given.
func (s *Service) Convergences(ctx context.Context, c convergence.Criteria) ([]model.Comparison, error) { //nolint:gocritic // small value type
	s.mu.RLock()
	started, det := s.started, s.detector
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	return det.Find(ctx, c), nil
}

// Push queues text for the next scheduler tick.
func (s *Service) Push(text, sourceLabel string, publishedAt time.Time) error {
	s.mu.RLock()
	started, in := s.started, s.inbox
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if in == nil {
		return ErrNoInbox
	}
	return in.Push(text, sourceLabel, publishedAt)
}

// StartScheduler starts the poll scheduler. A running scheduler is left alone.
func (s *Service) StartScheduler(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.startSchedulerLocked(ctx)
	return nil
}

func (s *Service) startSchedulerLocked(ctx context.Context) {
	if s.spool != nil {
		if err := s.spool.Start(ctx); err != nil {
			s.logger.Warn(ctx, "spool watch unavailable; relying on backlog scans", logger.Error(err))
		}
	}
	s.scheduler.Start(ctx)
}

// StopScheduler stops the poll scheduler, waiting for an in-flight tick.
func (s *Service) StopScheduler() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.stopSchedulerLocked()
	return nil
}

func (s *Service) stopSchedulerLocked() {
	s.scheduler.Stop()
	if s.spool != nil {
		if err := s.spool.Stop(); err != nil {
			s.logger.Warn(context.Background(), "spool stop failed", logger.Error(err))
		}
	}
}

// Tick runs one scheduler tick synchronously.
func (s *Service) Tick(ctx context.Context) (poller.TickResult, error) {
	s.mu.RLock()
	started, sched := s.started, s.scheduler
	s.mu.RUnlock()
	if !started {
		return poller.TickResult{}, ErrNotStarted
	}
	return sched.Tick(ctx), nil
}

// SchedulerStatus reports the scheduler state and last tick.
func (s *Service) SchedulerStatus() (poller.Status, error) {
	s.mu.RLock()
	started, sched := s.started, s.scheduler
	s.mu.RUnlock()
	if !started {
		return poller.Status{State: poller.StateStopped}, ErrNotStarted
	}
	return sched.Status(), nil
}

// AddSink registers a notification sink and returns its removal func.
func (s *Service) AddSink(sink workerpool.Sink) func() {
	return s.sinks.Add(sink)
}

// Subscribe registers a buffered channel sink, e.g. for a streaming client.
func (s *Service) Subscribe(name string, buffer int) (*workerpool.ChannelSink, func()) {
	sink := workerpool.NewChannelSink(name, buffer)
	return sink, s.sinks.Add(sink)
}

// Started reports whether Start has completed.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"backend":         s.backend,
		"dispatchWorkers": s.dispatchWorkers,
		"queueCapacity":   s.queueSize,
		"dedupeSize":      s.dedupeSize,
	}

	if s.started {
		counts := s.registry.Counts(ctx)
		queueLen := s.queue.Len()
		stats["fingerprints"] = counts.Fingerprints
		stats["activeFingerprints"] = counts.Active
		stats["archivedFingerprints"] = counts.Archived
		stats["comparisons"] = counts.Comparisons
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["pendingInbox"] = s.inbox.Pending()
		stats["scheduler"] = s.scheduler.Status()
		stats["subscribers"] = s.sinks.Len()
		stats["uptimeSeconds"] = int64(s.clock().UTC().Sub(s.startedAt).Seconds())

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateDispatcherCount(s.pool.Size())
	}
	return stats
}

func (s *Service) reg() (*registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.registry, nil
}
