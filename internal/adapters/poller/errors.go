package poller

import "errors"

// ErrNoRecorder is returned by New when no recorder is supplied.
var ErrNoRecorder = errors.New("poller: recorder is required")
