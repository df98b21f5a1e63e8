// Package poller runs the recurring tick that pulls feed adapters, records
// every new item and publishes notifications for the ones that resonate.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/okian/resonance/internal/adapters/feed"
	"github.com/okian/resonance/internal/domain/dedupe"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// Scheduler defaults.
const (
	DefaultInterval      = 5 * time.Minute
	DefaultHighThreshold = 0.6
)

// State of the scheduler loop.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Recorder records one input. *recorder.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, text string, meta model.RecordMeta) (model.Comparison, error)
}

// Publisher accepts notifications. queue.Queue implements it.
type Publisher interface {
	Enqueue(ctx context.Context, n model.Notification) error
}

// TickResult summarises one tick.
type TickResult struct {
	Items         int `json:"items"`
	Duplicates    int `json:"duplicates"`
	Recorded      int `json:"recorded"`
	Matched       int `json:"matched"`
	HighPriority  int `json:"high_priority"`
	AdapterErrors int `json:"adapter_errors"`
	RecordErrors  int `json:"record_errors"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State    State         `json:"state"`
	Interval time.Duration `json:"interval"`
	Adapters []string      `json:"adapters"`
	Ticks    int64         `json:"ticks"`
	LastTick *time.Time    `json:"last_tick,omitempty"`
	Last     TickResult    `json:"last"`
}

// Scheduler drives feed polling on a fixed interval.
type Scheduler struct {
	recorder      Recorder
	publisher     Publisher
	deduper       dedupe.Deduper
	interval      time.Duration
	highThreshold float64
	immediate     bool
	logger        logger.Logger
	clock         func() time.Time

	mu       sync.Mutex
	adapters []feed.Adapter
	stop     chan struct{}
	done     chan struct{}
	ticks    int64
	lastTick *time.Time
	last     TickResult

	// tickMu serialises ticks between the loop and Tick callers.
	tickMu sync.Mutex
}

// New constructs a stopped Scheduler.
func New(rec Recorder, opts ...Option) (*Scheduler, error) {
	if rec == nil {
		return nil, ErrNoRecorder
	}
	s := &Scheduler{
		recorder:      rec,
		interval:      DefaultInterval,
		highThreshold: DefaultHighThreshold,
		logger:        logger.Named("poller"),
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddAdapter registers another adapter; it is polled from the next tick on.
func (s *Scheduler) AddAdapter(a feed.Adapter) {
	if a == nil {
		return
	}
	s.mu.Lock()
	s.adapters = append(s.adapters, a)
	s.mu.Unlock()
}

// Start begins ticking. Starting a running scheduler is a no-op.
// The loop outlives ctx cancellation and ends only on Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	metrics.UpdateSchedulerRunning(true)
	s.logger.Info(ctx, "poll scheduler started", logger.Duration("interval", s.interval))
	go s.loop(context.WithoutCancel(ctx), stop, done)
}

// Stop halts future ticks and waits for an in-flight tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	metrics.UpdateSchedulerRunning(false)
	s.logger.Info(context.Background(), "poll scheduler stopped")
}

// State reports whether the loop is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return StateRunning
	}
	return StateStopped
}

// Status returns the current state and the outcome of the last tick.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    StateStopped,
		Interval: s.interval,
		Adapters: make([]string, 0, len(s.adapters)),
		Ticks:    s.ticks,
		Last:     s.last,
	}
	if s.stop != nil {
		st.State = StateRunning
	}
	for _, a := range s.adapters {
		st.Adapters = append(st.Adapters, a.Name())
	}
	if s.lastTick != nil {
		ts := *s.lastTick
		st.LastTick = &ts
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if s.immediate {
		s.Tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			s.Tick(ctx)
		}
	}
}

// Tick polls every adapter once, records new items and publishes
// notifications. It runs synchronously and never overlaps another tick.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	s.mu.Lock()
	adapters := append([]feed.Adapter(nil), s.adapters...)
	s.mu.Unlock()

	var res TickResult
	for _, a := range adapters {
		if ctx.Err() != nil {
			break
		}
		items, err := a.Poll(ctx)
		if err != nil {
			res.AdapterErrors++
			metrics.RecordAdapterError(a.Name())
			metrics.RecordErrorByComponent("poller", "adapter")
			s.logger.Warn(ctx, "adapter poll failed", logger.String("adapter", a.Name()), logger.Error(err))
			continue
		}
		metrics.RecordAdapterItems(a.Name(), len(items))
		for i := range items {
			s.handleItem(ctx, a.Name(), items[i], &res)
		}
	}

	elapsed := time.Since(start)
	metrics.RecordPollTick(float64(elapsed.Nanoseconds()) / 1e6)

	now := s.clock().UTC()
	s.mu.Lock()
	s.ticks++
	s.lastTick = &now
	s.last = res
	s.mu.Unlock()

	s.logger.Debug(ctx, "poll tick finished",
		logger.Int("items", res.Items),
		logger.Int("recorded", res.Recorded),
		logger.Int("matched", res.Matched),
		logger.Int("adapter_errors", res.AdapterErrors),
		logger.Duration("elapsed", elapsed),
	)
	return res
}

func (s *Scheduler) handleItem(ctx context.Context, adapter string, item model.Item, res *TickResult) { //nolint:gocritic // value type from adapters
	res.Items++
	var key uint64
	if s.deduper != nil {
		key = dedupe.ItemKey(item)
		if s.deduper.SeenAndRecord(ctx, key) {
			res.Duplicates++
			metrics.RecordDuplicateItem()
			return
		}
	}

	meta := model.RecordMeta{InputType: model.FeedInputType, SourceLabel: item.SourceLabel}
	if !item.PublishedAt.IsZero() {
		ts := item.PublishedAt.UTC()
		meta.PublishedAt = &ts
	}
	c, err := s.recorder.Record(ctx, item.Text, meta)
	if err != nil {
		res.RecordErrors++
		metrics.RecordErrorByComponent("poller", "record")
		s.logger.Error(ctx, "record feed item failed",
			logger.String("adapter", adapter),
			logger.String("comparison_id", c.ID),
			logger.Error(err),
		)
		if c.ID == "" {
			if s.deduper != nil {
				s.deduper.Unrecord(ctx, key)
			}
			return
		}
		// The record is stored; keep the key and notify as usual.
	}
	res.Recorded++

	if len(c.Matches) == 0 {
		return
	}
	res.Matched++
	best := c.MaxStrength()
	s.publish(ctx, model.MatchFound, c, best)
	if best > s.highThreshold {
		res.HighPriority++
		s.publish(ctx, model.HighPriority, c, best)
	}
}

func (s *Scheduler) publish(ctx context.Context, kind model.NotificationKind, c model.Comparison, best float64) { //nolint:gocritic // value semantics
	metrics.RecordNotification(string(kind))
	if s.publisher == nil {
		return
	}
	n := model.Notification{Kind: kind, Comparison: c.Clone(), MaxStrength: best, At: s.clock().UTC()}
	if err := s.publisher.Enqueue(ctx, n); err != nil {
		metrics.RecordNotificationDropped(string(kind))
		s.logger.Warn(ctx, "notification dropped",
			logger.String("kind", string(kind)),
			logger.String("comparison_id", c.ID),
			logger.Error(err),
		)
	}
}
