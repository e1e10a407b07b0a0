package relay

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// Sampler is the probe surface the poller needs.
type Sampler interface {
	Sample(ctx context.Context) media.Snapshot
	EpochChanged(ctx context.Context) bool
}

// Publisher broadcasts a snapshot.
type Publisher interface {
	Publish(ctx context.Context, snapshot media.Snapshot) PublishResult
}

// Poller samples on a fixed cadence and publishes meaningful changes.
// Ticks run one at a time on the Run goroutine, so a slow publish delays the
// next sample instead of overlapping it.
type Poller struct {
	sampler   Sampler
	publisher Publisher
	detector  *Detector
	interval  time.Duration
	wake      <-chan struct{}
	logger    *zap.Logger

	epoch atomic.Uint64
	ticks atomic.Uint64
}

// NewPoller creates a poller. wake may be nil; when set, a receive on it
// triggers an immediate tick.
func NewPoller(sampler Sampler, publisher Publisher, interval time.Duration, wake <-chan struct{}, logger *zap.Logger) *Poller {
	return &Poller{
		sampler:   sampler,
		publisher: publisher,
		detector:  NewDetector(),
		interval:  interval,
		wake:      wake,
		logger:    logger,
	}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", zap.Uint64("ticks", p.ticks.Load()))
			return
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.wake:
			p.Tick(ctx)
		}
	}
}

// Tick performs one sample and publishes it if it is a meaningful change.
// It reports whether a broadcast happened.
func (p *Poller) Tick(ctx context.Context) bool {
	p.ticks.Add(1)

	if p.sampler.EpochChanged(ctx) {
		p.epoch.Add(1)
	}

	sample := p.sampler.Sample(ctx)
	snapshot, changed := p.detector.Consider(sample, p.epoch.Load())
	if !changed {
		return false
	}

	result := p.publisher.Publish(ctx, snapshot)
	p.logger.Debug("media changed",
		zap.Uint64("seq", result.Seq),
		zap.Uint64("epoch", p.epoch.Load()),
		zap.Stringer("snapshot", snapshot))
	return true
}

// Epoch returns the number of session transitions observed so far.
func (p *Poller) Epoch() uint64 {
	return p.epoch.Load()
}

// Ticks returns the number of completed sampling ticks.
func (p *Poller) Ticks() uint64 {
	return p.ticks.Load()
}
