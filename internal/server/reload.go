package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/probe"
)

var (
	ErrReloadInProgress = errors.New("provider reload already in progress")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// ProviderSwapper installs a new provider behind a running probe.
type ProviderSwapper interface {
	Swap(next probe.Provider) probe.Provider
}

// ProviderReloader switches the relay's media provider without restarting the server.
// Subscribers stay connected; the session change is picked up on the next poll tick.
type ProviderReloader struct {
	target    ProviderSwapper
	factories map[string]probe.Factory
	logger    *zap.Logger

	isReloading atomic.Bool
	reloadMu    sync.Mutex
	// guarded by reloadMu
	overridden    bool
	startupCancel context.CancelFunc

	current  string
	loadedAt time.Time
	stateMu  sync.RWMutex
}

// ReloadResult describes a completed provider switch.
type ReloadResult struct {
	Previous string    `json:"previous"`
	Current  string    `json:"current"`
	LoadedAt time.Time `json:"loaded_at"`
}

func NewProviderReloader(target ProviderSwapper, initial string, factories map[string]probe.Factory, logger *zap.Logger) *ProviderReloader {
	return &ProviderReloader{
		target:    target,
		factories: factories,
		logger:    logger,
		current:   initial,
		loadedAt:  time.Now(),
	}
}

func (rm *ProviderReloader) IsReloading() bool {
	return rm.isReloading.Load()
}

// Current returns the kind of the provider installed by the last reload.
func (rm *ProviderReloader) Current() string {
	rm.stateMu.RLock()
	defer rm.stateMu.RUnlock()
	return rm.current
}

func (rm *ProviderReloader) LoadedAt() time.Time {
	rm.stateMu.RLock()
	defer rm.stateMu.RUnlock()
	return rm.loadedAt
}

// Startup returns the context and install target for the initial provider
// acquisition. Once a Reload succeeds the context is cancelled and late
// installs through the target are discarded, so an operator's choice is
// never replaced by a slow startup acquisition.
func (rm *ProviderReloader) Startup(parent context.Context) (context.Context, probe.Installer) {
	ctx, cancel := context.WithCancel(parent)
	rm.reloadMu.Lock()
	rm.startupCancel = cancel
	if rm.overridden {
		cancel()
	}
	rm.reloadMu.Unlock()
	return ctx, startupInstaller{rm: rm}
}

type startupInstaller struct {
	rm *ProviderReloader
}

func (s startupInstaller) Swap(next probe.Provider) probe.Provider {
	rm := s.rm
	rm.reloadMu.Lock()
	defer rm.reloadMu.Unlock()

	if rm.overridden {
		rm.logger.Info("startup provider discarded, already replaced by reload",
			zap.String("provider", next.Name()),
			zap.String("current", rm.Current()),
		)
		return next
	}
	old := rm.target.Swap(next)
	rm.record(next.Name())
	return old
}

func (rm *ProviderReloader) record(kind string) time.Time {
	rm.stateMu.Lock()
	defer rm.stateMu.Unlock()
	rm.current = kind
	rm.loadedAt = time.Now()
	return rm.loadedAt
}

// Kinds lists the provider kinds Reload accepts.
func (rm *ProviderReloader) Kinds() []string {
	kinds := make([]string, 0, len(rm.factories))
	for k := range rm.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Reload acquires a provider of the given kind and swaps it in.
// On failure the current provider stays installed.
func (rm *ProviderReloader) Reload(ctx context.Context, kind string) (*ReloadResult, error) {
	if !rm.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer rm.reloadMu.Unlock()

	factory, ok := rm.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}

	previous := rm.Current()
	rm.logger.Info("starting provider reload",
		zap.String("previous", previous),
		zap.String("next", kind),
	)

	rm.isReloading.Store(true)
	defer rm.isReloading.Store(false)

	next, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring %s provider: %w", kind, err)
	}

	rm.target.Swap(next)
	loadedAt := rm.record(kind)

	rm.overridden = true
	if rm.startupCancel != nil {
		rm.startupCancel()
	}

	rm.logger.Info("provider reload complete",
		zap.String("previous", previous),
		zap.String("current", kind),
		zap.Time("loadedAt", loadedAt),
	)

	return &ReloadResult{Previous: previous, Current: kind, LoadedAt: loadedAt}, nil
}
