package relay

import (
	"sync"
	"testing"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

func TestRegistryRegisterCapturesLatest(t *testing.T) {
	r := NewRegistry()

	_, initial := r.Register(NewChannelSink(1))
	if initial.Seq != 0 || !initial.Snapshot.IsIdle() {
		t.Fatalf("initial = seq %d %s, want seq 0 idle", initial.Seq, initial.Snapshot)
	}

	snap := media.New("Song", "Artist", "Album", media.StatusPlaying)
	u, subs := r.stamp(snap)
	if u.Seq != 1 {
		t.Errorf("stamp seq = %d, want 1", u.Seq)
	}
	if len(subs) != 1 {
		t.Errorf("stamp returned %d subscribers, want 1", len(subs))
	}

	_, latest := r.Register(NewChannelSink(1))
	if latest.Seq != 1 || !latest.Snapshot.Equal(snap) {
		t.Errorf("second register initial = seq %d %s, want seq 1 %s", latest.Seq, latest.Snapshot, snap)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	sink := NewChannelSink(1)
	sub, _ := r.Register(sink)

	if !r.Unregister(sub.ID) {
		t.Fatal("Unregister returned false for registered id")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after unregister, want 0", r.Len())
	}
	if sub.Live() {
		t.Error("subscriber still live after unregister")
	}
	select {
	case <-sink.Done():
	default:
		t.Error("sink not closed by unregister")
	}

	if r.Unregister(sub.ID) {
		t.Error("second Unregister returned true")
	}
	if r.Unregister("no-such-id") {
		t.Error("Unregister of unknown id returned true")
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	var ids []SubscriberID
	for range 5 {
		sub, _ := r.Register(NewChannelSink(1))
		ids = append(ids, sub.ID)
	}
	r.Unregister(ids[2])

	got := r.Snapshot()
	want := []SubscriberID{ids[0], ids[1], ids[3], ids[4]}
	if len(got) != len(want) {
		t.Fatalf("Snapshot has %d subscribers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Snapshot[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestRegistryUniqueIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[SubscriberID]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, _ := r.Register(NewChannelSink(1))
			mu.Lock()
			defer mu.Unlock()
			if seen[sub.ID] {
				t.Errorf("duplicate subscriber id %s", sub.ID)
			}
			seen[sub.ID] = true
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("Len = %d, want 50", r.Len())
	}
}

func TestRegistryLatestIsCopy(t *testing.T) {
	r := NewRegistry()
	r.stamp(media.New("T", "A", "B", media.StatusPlaying).WithArtwork([]byte{1}))

	got := r.Latest()
	got.Snapshot.Artwork[0] = 7

	if again := r.Latest(); again.Snapshot.Artwork[0] != 1 {
		t.Errorf("latest artwork mutated through copy: %v", again.Snapshot.Artwork)
	}
}
