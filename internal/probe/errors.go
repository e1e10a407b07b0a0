package probe

import "errors"

var (
	ErrNoActiveSession     = errors.New("no active session")
	ErrProviderUnavailable = errors.New("media provider unavailable")
)
