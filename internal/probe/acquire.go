package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Installer receives an acquired provider. *Swappable is the usual target.
type Installer interface {
	Swap(next Provider) Provider
}

// Acquire runs factory until it yields a provider, then swaps it into target.
// Until then target keeps serving whatever it holds (normally IdleProvider),
// so subscribers see "no media" rather than an outage. A retry <= 0 makes a
// single attempt. Returns ctx.Err() if cancelled before the provider is installed.
func Acquire(ctx context.Context, factory Factory, retry time.Duration, target Installer, logger *zap.Logger) error {
	attempt := 0
	for {
		attempt++
		provider, err := factory(ctx)
		if err == nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			old := target.Swap(provider)
			logger.Info("media provider acquired",
				zap.String("provider", provider.Name()),
				zap.String("previous", old.Name()),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		if attempt == 1 {
			logger.Error("failed to acquire media provider, continuing with no active session",
				zap.Error(err),
				zap.Duration("retry", retry),
			)
		} else {
			logger.Debug("media provider still unavailable",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}

		if retry <= 0 {
			return fmt.Errorf("acquiring media provider: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}
