package probe

import (
	"context"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// IdleProvider never has a session. It stands in while a real provider is being acquired.
type IdleProvider struct{}

func (IdleProvider) Name() string { return "idle" }

func (IdleProvider) CurrentSessionID(context.Context) (string, bool) { return "", false }

func (IdleProvider) Snapshot(context.Context) (media.Snapshot, error) { return media.Idle(), nil }

func (IdleProvider) SendPlay(context.Context) error     { return ErrNoActiveSession }
func (IdleProvider) SendPause(context.Context) error    { return ErrNoActiveSession }
func (IdleProvider) SendNext(context.Context) error     { return ErrNoActiveSession }
func (IdleProvider) SendPrevious(context.Context) error { return ErrNoActiveSession }

var _ Provider = IdleProvider{}
