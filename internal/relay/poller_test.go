package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

type step struct {
	epochChanged bool
	sample       media.Snapshot
}

// scriptedSampler replays steps, repeating the last one when exhausted.
type scriptedSampler struct {
	mu    sync.Mutex
	steps []step
	pos   int
}

func (s *scriptedSampler) current() step {
	if s.pos >= len(s.steps) {
		return s.steps[len(s.steps)-1]
	}
	return s.steps[s.pos]
}

func (s *scriptedSampler) EpochChanged(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().epochChanged
}

func (s *scriptedSampler) Sample(context.Context) media.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.current()
	s.pos++
	return st.sample
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []media.Snapshot
}

func (r *recordingPublisher) Publish(_ context.Context, s media.Snapshot) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, s)
	return PublishResult{Seq: uint64(len(r.published))}
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func TestPollerPlayPauseWithinSession(t *testing.T) {
	a := media.New("Song A", "Artist", "Album", media.StatusPlaying)
	aPaused := media.New("Song A", "Artist", "Album", media.StatusPaused)

	sampler := &scriptedSampler{steps: []step{
		{sample: media.Idle()},
		{sample: a},
		{sample: a},
		{sample: aPaused},
	}}
	pub := &recordingPublisher{}
	p := NewPoller(sampler, pub, time.Second, nil, zap.NewNop())

	for range 4 {
		p.Tick(context.Background())
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(pub.published))
	}
	if !pub.published[0].Equal(a) || !pub.published[1].Equal(aPaused) {
		t.Errorf("published %v", pub.published)
	}
}

func TestPollerSessionSwitchRepublishes(t *testing.T) {
	a := media.New("Song A", "Artist", "Album", media.StatusPlaying)

	sampler := &scriptedSampler{steps: []step{
		{epochChanged: true, sample: a},
		{sample: a},
		{epochChanged: true, sample: a},
	}}
	pub := &recordingPublisher{}
	p := NewPoller(sampler, pub, time.Second, nil, zap.NewNop())

	got := []bool{
		p.Tick(context.Background()),
		p.Tick(context.Background()),
		p.Tick(context.Background()),
	}
	want := []bool{true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick %d published = %v, want %v", i, got[i], want[i])
		}
	}
	if p.Epoch() != 2 {
		t.Errorf("Epoch = %d, want 2", p.Epoch())
	}
}

func TestPollerRunWakesEarly(t *testing.T) {
	a := media.New("Song A", "Artist", "Album", media.StatusPlaying)
	b := media.New("Song B", "Artist", "Album", media.StatusPlaying)

	sampler := &scriptedSampler{steps: []step{
		{sample: a},
		{sample: b},
	}}
	pub := &recordingPublisher{}
	wake := make(chan struct{}, 1)
	p := NewPoller(sampler, pub, time.Hour, wake, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return pub.count() == 1 })
	wake <- struct{}{}
	waitFor(t, func() bool { return pub.count() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
