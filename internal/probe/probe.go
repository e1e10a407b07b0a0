package probe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// CommandResult is the outcome of a control command. Failures are values, never panics.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Probe adapts a Provider into the sampling and command surface used by the relay.
type Probe struct {
	provider      Provider
	sampleTimeout time.Duration
	logger        *zap.Logger

	mu          sync.Mutex
	lastSession string
	hadSession  bool

	lastStatus atomic.Int32
}

// New creates a Probe. A sampleTimeout <= 0 leaves sampling bounded only by ctx.
func New(provider Provider, sampleTimeout time.Duration, logger *zap.Logger) *Probe {
	return &Probe{
		provider:      provider,
		sampleTimeout: sampleTimeout,
		logger:        logger,
	}
}

// Name returns the underlying provider name.
func (p *Probe) Name() string {
	return p.provider.Name()
}

// Sample returns the current snapshot. Provider errors and timeouts yield media.Idle().
func (p *Probe) Sample(ctx context.Context) media.Snapshot {
	if p.sampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sampleTimeout)
		defer cancel()
	}

	snap, err := p.provider.Snapshot(ctx)
	if err != nil {
		p.logger.Debug("sample failed, reporting no media",
			zap.String("provider", p.provider.Name()),
			zap.Error(err),
		)
		snap = media.Idle()
	}

	p.lastStatus.Store(int32(snap.Status))
	return snap
}

// EpochChanged reports true once for every transition of the provider's
// session identity, including a session appearing or disappearing.
func (p *Probe) EpochChanged(ctx context.Context) bool {
	id, ok := p.provider.CurrentSessionID(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	changed := ok != p.hadSession || (ok && id != p.lastSession)
	if changed {
		p.logger.Info("media session changed",
			zap.String("provider", p.provider.Name()),
			zap.String("previous", p.lastSession),
			zap.String("current", id),
			zap.Bool("active", ok),
		)
	}
	p.hadSession = ok
	p.lastSession = id
	return changed
}

// LastStatus is the status observed by the most recent Sample.
func (p *Probe) LastStatus() media.Status {
	return media.Status(p.lastStatus.Load())
}

// Changes exposes the provider's early-wake hook, or nil when it has none.
func (p *Probe) Changes() <-chan struct{} {
	if n, ok := p.provider.(ChangeNotifier); ok {
		return n.Changes()
	}
	return nil
}

func (p *Probe) Play(ctx context.Context) CommandResult {
	return p.command(ctx, "Play", p.provider.SendPlay)
}

func (p *Probe) Pause(ctx context.Context) CommandResult {
	return p.command(ctx, "Pause", p.provider.SendPause)
}

func (p *Probe) Next(ctx context.Context) CommandResult {
	return p.command(ctx, "Next", p.provider.SendNext)
}

func (p *Probe) Previous(ctx context.Context) CommandResult {
	return p.command(ctx, "Previous", p.provider.SendPrevious)
}

func (p *Probe) command(ctx context.Context, name string, send func(context.Context) error) (result CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("media command panicked",
				zap.String("command", name),
				zap.Any("panic", r),
			)
			result = CommandResult{Success: false, Message: fmt.Sprintf("%s command failed: %v", name, r)}
		}
	}()

	if err := send(ctx); err != nil {
		p.logger.Warn("media command failed",
			zap.String("command", name),
			zap.String("provider", p.provider.Name()),
			zap.Error(err),
		)
		return CommandResult{Success: false, Message: err.Error()}
	}

	p.logger.Info("media command executed", zap.String("command", name))
	return CommandResult{Success: true, Message: name + " command sent"}
}
