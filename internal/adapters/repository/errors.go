package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrNotLoaded      = errors.New("store written before load")
	ErrClosed         = errors.New("store closed")
	ErrCorrupt        = errors.New("persisted data is corrupt")
)
