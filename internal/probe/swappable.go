package probe

import (
	"context"
	"sync"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// Swappable wraps a Provider and allows atomic replacement while the relay
// keeps sampling through it. All Provider methods delegate to the current provider.
type Swappable struct {
	mu          sync.RWMutex
	current     Provider
	stopForward chan struct{}
	changes     chan struct{}
}

// NewSwappable creates a Swappable with the given initial provider.
func NewSwappable(initial Provider) *Swappable {
	s := &Swappable{changes: make(chan struct{}, 1)}
	s.mu.Lock()
	s.install(initial)
	s.mu.Unlock()
	return s
}

// Swap atomically replaces the underlying provider and returns the old one.
// The swap itself counts as a change notification.
func (s *Swappable) Swap(next Provider) Provider {
	s.mu.Lock()
	old := s.current
	s.install(next)
	s.mu.Unlock()

	s.signal()
	return old
}

// Current returns the provider currently in use.
func (s *Swappable) Current() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// install must be called with mu held.
func (s *Swappable) install(p Provider) {
	if s.stopForward != nil {
		close(s.stopForward)
		s.stopForward = nil
	}
	s.current = p
	if n, ok := p.(ChangeNotifier); ok {
		stop := make(chan struct{})
		s.stopForward = stop
		go s.forward(n.Changes(), stop)
	}
}

func (s *Swappable) forward(src <-chan struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case _, ok := <-src:
			if !ok {
				return
			}
			s.signal()
		}
	}
}

func (s *Swappable) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Swappable) Changes() <-chan struct{} {
	return s.changes
}

func (s *Swappable) Name() string {
	return s.Current().Name()
}

func (s *Swappable) CurrentSessionID(ctx context.Context) (string, bool) {
	p := s.Current()
	id, ok := p.CurrentSessionID(ctx)
	if !ok {
		return "", false
	}
	// Qualify by provider so a swap always reads as a new session.
	return p.Name() + ":" + id, true
}

func (s *Swappable) Snapshot(ctx context.Context) (media.Snapshot, error) {
	return s.Current().Snapshot(ctx)
}

func (s *Swappable) SendPlay(ctx context.Context) error     { return s.Current().SendPlay(ctx) }
func (s *Swappable) SendPause(ctx context.Context) error    { return s.Current().SendPause(ctx) }
func (s *Swappable) SendNext(ctx context.Context) error     { return s.Current().SendNext(ctx) }
func (s *Swappable) SendPrevious(ctx context.Context) error { return s.Current().SendPrevious(ctx) }

var (
	_ Provider       = (*Swappable)(nil)
	_ ChangeNotifier = (*Swappable)(nil)
)
