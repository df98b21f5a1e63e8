package model

import "time"

// Item is one piece of text handed over by a feed adapter.
type Item struct {
	Text        string
	SourceLabel string
	PublishedAt time.Time
}

// NotificationKind identifies the event emitted by a poll tick.
type NotificationKind string

const (
	// MatchFound is emitted for every polled comparison with at least one match.
	MatchFound NotificationKind = "match_found"
	// HighPriority is emitted when the best match crosses the high threshold.
	HighPriority NotificationKind = "high_priority"
)

// Notification is the payload delivered to sinks.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Comparison  Comparison       `json:"comparison"`
	MaxStrength float64          `json:"max_strength"`
	At          time.Time        `json:"at"`
}
