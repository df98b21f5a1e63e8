// Package feed provides the external sources the poll scheduler pulls from.
//
// Every adapter remembers how far it has read and returns only items that
// arrived after that point, advancing the marker on each successful Poll.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/resonance/internal/domain/model"
)

// Adapter is a pull-based item source.
type Adapter interface {
	Name() string
	Poll(ctx context.Context) ([]model.Item, error)
}

// Inbox is an in-process adapter fed through Push, e.g. by the HTTP API.
type Inbox struct {
	name  string
	limit int

	mu    sync.Mutex
	items []model.Item
}

// NewInbox creates an Inbox that holds at most limit pending items
// (unbounded when limit <= 0).
func NewInbox(name string, limit int) *Inbox {
	if name == "" {
		name = "inbox"
	}
	return &Inbox{name: name, limit: limit}
}

// Name implements Adapter.
func (b *Inbox) Name() string { return b.name }

// Push queues text for the next poll. Blank text is ignored. The source
// label defaults to the inbox name and a zero publishedAt to now.
func (b *Inbox) Push(text, sourceLabel string, publishedAt time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyItem
	}
	if sourceLabel == "" {
		sourceLabel = b.name
	}
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.items) >= b.limit {
		return ErrInboxFull
	}
	b.items = append(b.items, model.Item{Text: text, SourceLabel: sourceLabel, PublishedAt: publishedAt})
	return nil
}

// Pending returns the number of items waiting for the next poll.
func (b *Inbox) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Poll implements Adapter by draining everything pushed so far.
func (b *Inbox) Poll(ctx context.Context) ([]model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	out := b.items
	b.items = nil
	b.mu.Unlock()
	return out, nil
}
