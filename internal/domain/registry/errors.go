package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("registry closed")
	ErrPersist  = errors.New("persist failed")
)
