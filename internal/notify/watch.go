package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// resubscribeDelay is the pause before rejoining after the relay dropped us.
const resubscribeDelay = time.Second

// Subscriber is the relay surface the watcher needs.
type Subscriber interface {
	Subscribe() *relay.Subscription
}

// Watch follows the relay as an ordinary subscriber and sends a notification
// whenever a new track starts playing. Sending happens on a separate
// goroutine so a slow ntfy server never holds up delivery. Watch returns
// when ctx is cancelled.
func Watch(ctx context.Context, src Subscriber, n Notifier, logger *zap.Logger) {
	pending := make(chan media.Snapshot, 1)

	var wg conc.WaitGroup
	wg.Go(func() { sendLoop(ctx, pending, n, logger) })
	defer wg.Wait()

	var last trackKey
	for {
		err := follow(ctx, src, func(s media.Snapshot) {
			key := keyOf(s)
			if s.Status != media.StatusPlaying || s.IsIdle() || key == last {
				return
			}
			last = key
			// Keep only the newest track when the sender is behind.
			select {
			case <-pending:
			default:
			}
			pending <- s
		})
		if ctx.Err() != nil {
			return
		}

		logger.Warn("notification watcher lost its subscription, rejoining", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

type trackKey struct {
	title, artist string
}

func keyOf(s media.Snapshot) trackKey {
	return trackKey{title: s.Title, artist: s.Artist}
}

// follow consumes one subscription until it ends.
func follow(ctx context.Context, src Subscriber, fn func(media.Snapshot)) error {
	sub := src.Subscribe()
	defer sub.Close()

	fn(sub.Initial().Snapshot)
	sub.Activate()

	for {
		u, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, relay.ErrTerminated) {
				return err
			}
			return ctx.Err()
		}
		fn(u.Snapshot)
	}
}

func sendLoop(ctx context.Context, pending <-chan media.Snapshot, n Notifier, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-pending:
			if err := n.NowPlaying(ctx, s); err != nil {
				logger.Warn("now playing notification failed",
					zap.Stringer("snapshot", s),
					zap.Error(err))
			}
		}
	}
}
