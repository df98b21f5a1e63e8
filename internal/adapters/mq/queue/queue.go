// Package queue holds notifications between the scheduler that emits them
// and the dispatchers that deliver them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/metrics"
)

// Default queue capacity.
const defaultCapacity = 1024

// Queue is a bounded FIFO of notifications. Enqueue never blocks.
type Queue interface {
	// Enqueue adds n. It fails with ErrFull when the queue is at capacity and
	// ErrClosed after Close.
	Enqueue(ctx context.Context, n model.Notification) error

	// Dequeue blocks until a notification is available. ok is false once the
	// queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) (n model.Notification, ok bool)

	Len() int
	Cap() int

	// Close stops accepting notifications. Queued ones can still be dequeued.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	items    chan model.Notification
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.Notification, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n model.Notification) error { //nolint:gocritic // value semantics through the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordNotificationDropped(string(n.Kind))
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordNotificationDropped(string(n.Kind))
		return err
	}

	select {
	case q.items <- n:
		metrics.RecordQueueEnqueue()
		metrics.RecordNotification(string(n.Kind))
		metrics.UpdateQueueSize(len(q.items))
		return nil
	default:
		metrics.RecordNotificationDropped(string(n.Kind))
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (model.Notification, bool) {
	select {
	case n, ok := <-q.items:
		if ok {
			metrics.RecordQueueDequeue()
			metrics.UpdateQueueSize(len(q.items))
		}
		return n, ok
	case <-ctx.Done():
		return model.Notification{}, false
	}
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

// Cap implements Queue.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
