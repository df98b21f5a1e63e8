package loadgen

import "errors"

// Sentinel kinds for load run errors.
var (
	ErrNoBaseURL     = errors.New("base url is required")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrStatus        = errors.New("unexpected status")
	ErrNoFingerprint = errors.New("no fingerprint was registered")
	ErrInconsistent  = errors.New("responses are inconsistent")
)
