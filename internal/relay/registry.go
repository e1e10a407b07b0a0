package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// SubscriberID uniquely identifies a registered subscriber.
type SubscriberID string

func newSubscriberID() SubscriberID {
	return SubscriberID(uuid.New().String())
}

// Subscriber is one registered output endpoint.
type Subscriber struct {
	ID       SubscriberID
	JoinedAt time.Time

	sink Sink

	// mu is held for the whole of a delivery so that terminate waits for
	// any in-flight Deliver before reporting the subscriber gone.
	mu   sync.Mutex
	live bool
}

// deliver hands u to the sink unless the subscriber has been terminated.
// The returned bool reports whether delivery was attempted.
func (s *Subscriber) deliver(ctx context.Context, u Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return false, nil
	}
	return true, s.sink.Deliver(ctx, u)
}

// terminate closes the sink first so a blocked Deliver returns at once,
// then waits for it to release mu.
func (s *Subscriber) terminate() {
	s.sink.Close()

	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}

// Live reports whether the subscriber still receives deliveries.
func (s *Subscriber) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Registry is the set of current subscribers plus the latest published update.
// Registration and sequence stamping share one lock, which is what lets a new
// subscriber start exactly after the update it was given on registration.
type Registry struct {
	mu     sync.Mutex
	subs   []*Subscriber
	latest Update
}

func NewRegistry() *Registry {
	return &Registry{
		latest: Update{Snapshot: media.Idle(), At: time.Now()},
	}
}

// Register adds sink and returns the new subscriber together with the latest
// published update. Every later publish reaches the subscriber.
func (r *Registry) Register(sink Sink) (*Subscriber, Update) {
	sub := &Subscriber{
		ID:       newSubscriberID(),
		JoinedAt: time.Now(),
		sink:     sink,
		live:     true,
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	latest := r.latest
	r.mu.Unlock()

	latest.Snapshot = latest.Snapshot.Clone()
	return sub, latest
}

// Unregister removes the subscriber and closes its sink. When it returns, no
// delivery to that subscriber is in progress or will be attempted. Unknown
// ids are ignored.
func (r *Registry) Unregister(id SubscriberID) bool {
	r.mu.Lock()
	var found *Subscriber
	for i, sub := range r.subs {
		if sub.ID == id {
			found = sub
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return false
	}
	found.terminate()
	return true
}

// Snapshot returns the current subscribers in registration order.
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Latest returns the most recently published update.
func (r *Registry) Latest() Update {
	r.mu.Lock()
	latest := r.latest
	r.mu.Unlock()
	latest.Snapshot = latest.Snapshot.Clone()
	return latest
}

// stamp records snapshot as the latest update and returns it along with the
// subscriber set that must receive it.
func (r *Registry) stamp(snapshot media.Snapshot) (Update, []*Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest = Update{
		Seq:      r.latest.Seq + 1,
		Snapshot: snapshot.Clone(),
		At:       time.Now(),
	}

	subs := make([]*Subscriber, len(r.subs))
	copy(subs, r.subs)
	return r.latest, subs
}
