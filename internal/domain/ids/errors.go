package ids

import "errors"

// Sentinel kinds for id generation errors.
var (
	ErrUnknownScheme = errors.New("unknown id scheme")
)
