package probe

import (
	"context"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// Provider is the platform media-session API the relay samples and controls.
type Provider interface {
	// Name identifies the provider in logs and diagnostics.
	Name() string

	// CurrentSessionID returns the identity of the "now playing" session,
	// or false when no session is active.
	CurrentSessionID(ctx context.Context) (string, bool)

	// Snapshot samples the current session. Implementations may return an
	// error; the Probe converts any failure into media.Idle().
	Snapshot(ctx context.Context) (media.Snapshot, error)

	SendPlay(ctx context.Context) error
	SendPause(ctx context.Context) error
	SendNext(ctx context.Context) error
	SendPrevious(ctx context.Context) error
}

// ChangeNotifier is implemented by providers that can signal a change
// before the next poll. Polling alone must remain correct without it.
type ChangeNotifier interface {
	Changes() <-chan struct{}
}

// Factory acquires a provider. A failure is a provider initialization failure.
type Factory func(ctx context.Context) (Provider, error)
