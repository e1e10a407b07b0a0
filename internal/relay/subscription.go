package relay

import (
	"context"
	"sync/atomic"
)

// SubscriptionState is the lifecycle of a subscription.
type SubscriptionState int32

const (
	StateRegistered SubscriptionState = iota
	StateActive
	StateTerminated
)

func (s SubscriptionState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Subscription is the consumer side of a registered subscriber.
//
// A transport writes Initial() first, then calls Activate and reads from
// Updates (or Next) until Done is closed. Updates always carry sequence
// numbers greater than Initial().Seq with no gaps, unless the subscriber
// is dropped.
type Subscription struct {
	registry *Registry
	sub      *Subscriber
	sink     *ChannelSink
	initial  Update
	state    atomic.Int32
}

func newSubscription(registry *Registry, sub *Subscriber, sink *ChannelSink, initial Update) *Subscription {
	return &Subscription{
		registry: registry,
		sub:      sub,
		sink:     sink,
		initial:  initial,
	}
}

func (s *Subscription) ID() SubscriberID {
	return s.sub.ID
}

// Initial returns the update captured at registration.
func (s *Subscription) Initial() Update {
	u := s.initial
	u.Snapshot = u.Snapshot.Clone()
	return u
}

// Activate marks the initial update as written. It returns false if the
// subscription has already terminated.
func (s *Subscription) Activate() bool {
	if s.State() == StateTerminated {
		return false
	}
	return s.state.CompareAndSwap(int32(StateRegistered), int32(StateActive))
}

// Updates returns the stream of broadcast updates.
func (s *Subscription) Updates() <-chan Update {
	return s.sink.C()
}

// Done is closed when the subscription terminates, either through Close or
// because the dispatcher dropped it.
func (s *Subscription) Done() <-chan struct{} {
	return s.sink.Done()
}

// Next blocks for the next update.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	select {
	case <-s.sink.Done():
		return Update{}, ErrTerminated
	default:
	}

	select {
	case u := <-s.sink.C():
		return u, nil
	case <-s.sink.Done():
		return Update{}, ErrTerminated
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	select {
	case <-s.sink.Done():
		s.state.Store(int32(StateTerminated))
	default:
	}
	return SubscriptionState(s.state.Load())
}

// Close unregisters the subscriber. It is safe to call more than once; after
// it returns no further delivery to this subscription is attempted.
func (s *Subscription) Close() {
	s.state.Store(int32(StateTerminated))
	s.registry.Unregister(s.sub.ID)
}
