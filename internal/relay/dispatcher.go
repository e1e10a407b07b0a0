package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// PublishResult summarizes one broadcast.
type PublishResult struct {
	Seq       uint64
	Attempted int
	Delivered int
	Dropped   int
}

// DispatchStats are cumulative counters across all broadcasts.
type DispatchStats struct {
	Published  uint64 `json:"published"`
	Deliveries uint64 `json:"deliveries"`
	Dropped    uint64 `json:"dropped"`
}

// Dispatcher fans a snapshot out to every registered subscriber.
type Dispatcher struct {
	registry *Registry
	budget   time.Duration
	logger   *zap.Logger

	published  atomic.Uint64
	deliveries atomic.Uint64
	dropped    atomic.Uint64
}

// DefaultDeliveryBudget applies when a dispatcher is created without a budget.
const DefaultDeliveryBudget = 250 * time.Millisecond

// NewDispatcher creates a dispatcher. Each delivery gets at most budget;
// a subscriber that exceeds it is removed. budget <= 0 means DefaultDeliveryBudget.
func NewDispatcher(registry *Registry, budget time.Duration, logger *zap.Logger) *Dispatcher {
	if budget <= 0 {
		budget = DefaultDeliveryBudget
	}
	return &Dispatcher{
		registry: registry,
		budget:   budget,
		logger:   logger,
	}
}

// Publish delivers snapshot to all current subscribers concurrently and
// returns once every delivery has completed or failed. A failing subscriber
// is unregistered without affecting the others.
func (d *Dispatcher) Publish(ctx context.Context, snapshot media.Snapshot) PublishResult {
	update, subs := d.registry.stamp(snapshot)
	d.published.Add(1)

	result := PublishResult{Seq: update.Seq}
	if len(subs) == 0 {
		d.logger.Debug("no subscribers, update recorded only",
			zap.Uint64("seq", update.Seq),
			zap.Stringer("snapshot", update.Snapshot))
		return result
	}

	var mu sync.Mutex
	var wg conc.WaitGroup
	for _, sub := range subs {
		wg.Go(func() {
			attempted, err := d.deliver(ctx, sub, update)
			mu.Lock()
			defer mu.Unlock()
			if !attempted {
				return
			}
			result.Attempted++
			switch {
			case err == nil:
			case errors.Is(err, ErrSubscriberClosed):
				return
			default:
				result.Dropped++
				return
			}
			result.Delivered++
		})
	}
	wg.Wait()

	d.deliveries.Add(uint64(result.Delivered))
	d.dropped.Add(uint64(result.Dropped))

	d.logger.Debug("update broadcast",
		zap.Uint64("seq", update.Seq),
		zap.Int("attempted", result.Attempted),
		zap.Int("delivered", result.Delivered),
		zap.Int("dropped", result.Dropped))
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscriber, u Update) (bool, error) {
	dctx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	u.Snapshot = u.Snapshot.Clone()
	attempted, err := sub.deliver(dctx, u)
	if errors.Is(err, ErrSubscriberClosed) {
		d.logger.Debug("subscriber left during delivery",
			zap.String("subscriber_id", string(sub.ID)),
			zap.Uint64("seq", u.Seq))
		return attempted, err
	}
	if err != nil {
		// Unregister after sub.deliver has released the subscriber lock.
		d.registry.Unregister(sub.ID)
		d.logger.Warn("subscriber dropped",
			zap.String("subscriber_id", string(sub.ID)),
			zap.Uint64("seq", u.Seq),
			zap.Error(err))
	}
	return attempted, err
}

// Stats returns cumulative broadcast counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Published:  d.published.Load(),
		Deliveries: d.deliveries.Load(),
		Dropped:    d.dropped.Load(),
	}
}
