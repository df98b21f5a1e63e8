package worker

import (
	"context"
	"sync"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
)

// Sink receives notifications from the dispatchers.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n model.Notification) error
}

// SinkSet is a concurrent observer list.
type SinkSet struct {
	mu    sync.RWMutex
	next  int
	sinks map[int]Sink
	order []int
}

// NewSinkSet creates a set holding sinks.
func NewSinkSet(sinks ...Sink) *SinkSet {
	s := &SinkSet{sinks: make(map[int]Sink)}
	for _, sink := range sinks {
		s.Add(sink)
	}
	return s
}

// Add registers sink and returns a function that removes it.
func (s *SinkSet) Add(sink Sink) (remove func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.sinks[id] = sink
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.sinks, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot returns the sinks in registration order.
func (s *SinkSet) Snapshot() []Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sink, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sinks[id])
	}
	return out
}

// Len returns the number of registered sinks.
func (s *SinkSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// LogSink writes every notification to a logger.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Named("notifications")
	}
	return &LogSink{logger: l}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, n model.Notification) error { //nolint:gocritic // Sink signature
	fields := []logger.Field{
		logger.String("kind", string(n.Kind)),
		logger.String("pulse", n.Comparison.ID),
		logger.String("source", n.Comparison.SourceLabel),
		logger.Int("matches", len(n.Comparison.Matches)),
		logger.Float64("max_strength", n.MaxStrength),
	}
	if n.Kind == model.HighPriority {
		s.logger.Warn(ctx, "high priority resonance", fields...)
		return nil
	}
	s.logger.Info(ctx, "resonance detected", fields...)
	return nil
}

// FuncSink adapts a function to Sink.
type FuncSink struct {
	name string
	fn   func(ctx context.Context, n model.Notification) error
}

// NewFuncSink creates a FuncSink.
func NewFuncSink(name string, fn func(ctx context.Context, n model.Notification) error) *FuncSink {
	return &FuncSink{name: name, fn: fn}
}

// Name implements Sink.
func (s *FuncSink) Name() string { return s.name }

// Deliver implements Sink.
func (s *FuncSink) Deliver(ctx context.Context, n model.Notification) error { //nolint:gocritic // Sink signature
	return s.fn(ctx, n)
}

// ChannelSink forwards notifications to a buffered channel and drops them
// when the reader falls behind.
type ChannelSink struct {
	name string
	ch   chan model.Notification
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(name string, buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{name: name, ch: make(chan model.Notification, buffer)}
}

// Name implements Sink.
func (s *ChannelSink) Name() string { return s.name }

// C returns the receive side.
func (s *ChannelSink) C() <-chan model.Notification { return s.ch }

// Deliver implements Sink.
func (s *ChannelSink) Deliver(_ context.Context, n model.Notification) error { //nolint:gocritic // Sink signature
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrSinkFull
	}
}
