package feed

import "errors"

// Sentinel kinds for feed errors.
var (
	ErrEmptyItem   = errors.New("empty item")
	ErrInboxFull   = errors.New("inbox full")
	ErrFetchStatus = errors.New("unexpected fetch status")
	ErrNoText      = errors.New("no text content found")
	ErrBadURL      = errors.New("invalid url")
)
