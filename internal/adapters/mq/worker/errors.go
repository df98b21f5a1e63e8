package worker

import "errors"

// Sentinel kinds for dispatcher errors.
var (
	ErrSinkFull       = errors.New("sink buffer full")
	ErrAlreadyStarted = errors.New("dispatcher pool already started")
)
