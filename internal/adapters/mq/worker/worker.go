// Package worker runs the dispatchers that deliver queued notifications to
// every registered sink.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultDispatcherCount = 2
	defaultDeliverTimeout  = 5 * time.Second
	poolShutdownTimeout    = 30 * time.Second
)

// Queue defines how dispatchers receive notifications.
type Queue interface {
	Dequeue(ctx context.Context) (model.Notification, bool)
}

// Dispatcher delivers notifications from a queue to a sink set.
type Dispatcher struct {
	queue          Queue
	sinks          *SinkSet
	name           string
	deliverTimeout time.Duration

	done   chan struct{}
	logger logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(queue Queue, sinks *SinkSet, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          queue,
		sinks:          sinks,
		name:           "dispatcher",
		deliverTimeout: defaultDeliverTimeout,
		done:           make(chan struct{}),
		logger:         logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name != "dispatcher" {
		d.logger = d.logger.Named(d.name)
	}
	return d
}

// Run delivers notifications until the queue is closed and drained or ctx
// is done.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		n, ok := d.queue.Dequeue(ctx)
		if !ok {
			return
		}
		d.deliver(ctx, n)
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// deliver fans n out to every sink. A failing sink does not stop delivery to
// the others.
func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) { //nolint:gocritic // value semantics from the queue
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	for _, sink := range d.sinks.Snapshot() {
		dctx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
		err := safeDeliver(dctx, sink, n)
		cancel()
		if err != nil {
			metrics.RecordSinkError(sink.Name())
			metrics.RecordErrorByComponent("dispatcher", "sink_error")
			d.logger.Warn(ctx, "notification delivery failed",
				logger.String("sink", sink.Name()),
				logger.String("kind", string(n.Kind)),
				logger.String("pulse", n.Comparison.ID),
				logger.Error(err))
		}
	}
}

func safeDeliver(ctx context.Context, sink Sink, n model.Notification) (err error) { //nolint:gocritic // value semantics from the queue
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
	}()
	return sink.Deliver(ctx, n)
}

// Pool manages a fixed number of dispatchers.
type Pool struct {
	dispatchers []*Dispatcher
	queue       Queue

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// NewPool creates a pool of count dispatchers reading from queue.
func NewPool(count int, queue Queue, sinks *SinkSet, opts ...Option) *Pool {
	if count < 1 {
		count = defaultDispatcherCount
	}
	p := &Pool{
		dispatchers: make([]*Dispatcher, count),
		queue:       queue,
		logger:      logger.Named("dispatcher-pool"),
	}
	for i := 0; i < count; i++ {
		dopts := append([]Option{WithName("dispatcher-" + strconv.Itoa(i))}, opts...)
		p.dispatchers[i] = NewDispatcher(queue, sinks, dopts...)
	}
	return p
}

// Size returns the number of dispatchers.
func (p *Pool) Size() int {
	return len(p.dispatchers)
}

// Start runs every dispatcher in its own goroutine.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	for _, d := range p.dispatchers {
		go d.Run(runCtx)
	}
	metrics.UpdateDispatcherCount(len(p.dispatchers))
	p.logger.Info(ctx, "dispatchers started", logger.Int("count", len(p.dispatchers)))
	return nil
}

// Shutdown closes the queue when it supports closing, lets the dispatchers
// drain it and waits for them, up to ctx or an internal limit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	cancel := p.cancel
	p.started = false
	p.mu.Unlock()
	if !started {
		return nil
	}

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, stop := context.WithTimeout(ctx, poolShutdownTimeout)
	defer stop()

	var err error
	for i, d := range p.dispatchers {
		select {
		case <-d.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "dispatcher shutdown timed out", logger.Int("dispatcher", i))
			err = fmt.Errorf("dispatcher shutdown: %w", shutdownCtx.Err())
		}
	}
	cancel()
	metrics.UpdateDispatcherCount(0)
	return err
}
