package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// scriptedRunner answers playerctl invocations from a table keyed by joined args.
type scriptedRunner struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (s *scriptedRunner) run(_ context.Context, args ...string) (string, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, key)
	if err, ok := s.errs[key]; ok {
		return "", err
	}
	return s.responses[key], nil
}

func metadataKey(player string) string {
	return "--player " + player + " metadata --format " + playerctlFormat
}

func TestPlayerctlSnapshot(t *testing.T) {
	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify\nvlc",
		metadataKey("spotify"): "Song A\tArtist A\tAlbum | Sessions\tPlaying\t",
	}}
	p := newPlayerctlProvider("", false, r.run)

	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := media.New("Song A", "Artist A", "Album | Sessions", media.StatusPlaying)
	if !snap.Equal(want) {
		t.Errorf("expected %v, got %v", want, snap)
	}
}

func TestPlayerctlPinnedPlayer(t *testing.T) {
	r := &scriptedRunner{responses: map[string]string{
		"--list-all": "spotify\nchromium.instance42",
	}}
	p := newPlayerctlProvider("chromium", false, r.run)

	id, ok := p.CurrentSessionID(context.Background())
	if !ok || id != "chromium.instance42" {
		t.Errorf("expected chromium instance, got %q (%v)", id, ok)
	}
}

func TestPlayerctlNoPlayers(t *testing.T) {
	r := &scriptedRunner{errs: map[string]error{
		"--list-all": errors.New("No players found"),
	}}
	p := newPlayerctlProvider("", false, r.run)

	snap, err := p.Snapshot(context.Background())
	if err != nil || !snap.IsIdle() {
		t.Errorf("expected idle snapshot without error, got %v / %v", snap, err)
	}
	if err := p.SendPlay(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestPlayerctlMalformedMetadata(t *testing.T) {
	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify",
		metadataKey("spotify"): "only\ttwo",
	}}
	p := newPlayerctlProvider("", false, r.run)

	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Error("expected error for malformed metadata")
	}
}

func TestPlayerctlControlError(t *testing.T) {
	r := &scriptedRunner{
		responses: map[string]string{"--list-all": "spotify"},
		errs:      map[string]error{"--player spotify next": errors.New("not supported")},
	}
	p := newPlayerctlProvider("", false, r.run)

	err := p.SendNext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected wrapped playerctl error, got %v", err)
	}
	if err := p.SendPause(context.Background()); err != nil {
		t.Errorf("pause: %v", err)
	}
}

func TestPlayerctlArtworkFromFile(t *testing.T) {
	dir := t.TempDir()
	artPath := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(artPath, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify",
		metadataKey("spotify"): "Song\tArtist\tAlbum\tPaused\tfile://" + artPath,
	}}
	p := newPlayerctlProvider("", true, r.run)

	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.HasArtwork || len(snap.Artwork) != 3 {
		t.Errorf("expected 3 bytes of artwork, got %v", snap.Artwork)
	}
}

func TestPlayerctlArtworkCachedByURL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("png"))
	}))
	defer server.Close()

	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify",
		metadataKey("spotify"): "Song\tArtist\tAlbum\tPlaying\t" + server.URL + "/art.png",
	}}
	p := newPlayerctlProvider("", true, r.run)

	for i := 0; i < 3; i++ {
		snap, err := p.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(snap.Artwork) != "png" {
			t.Fatalf("unexpected artwork %q", snap.Artwork)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected artwork fetched once, got %d", n)
	}
}

func TestPlayerctlArtworkRetriedAfterTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(200 * time.Millisecond):
			}
			return
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer server.Close()

	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify",
		metadataKey("spotify"): "Song\tArtist\tAlbum\tPlaying\t" + server.URL + "/art.png",
	}}
	p := newPlayerctlProvider("", true, r.run)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	snap, err := p.Snapshot(ctx)
	cancel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.HasArtwork {
		t.Fatal("expected no artwork from a timed-out fetch")
	}

	snap, err = p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(snap.Artwork) != "png" {
		t.Errorf("artwork after retry = %q, want png", snap.Artwork)
	}
}

func TestPlayerctlMissingArtworkNotRefetched(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	r := &scriptedRunner{responses: map[string]string{
		"--list-all":            "spotify",
		metadataKey("spotify"): "Song\tArtist\tAlbum\tPlaying\t" + server.URL + "/gone.png",
	}}
	p := newPlayerctlProvider("", true, r.run)

	for i := 0; i < 3; i++ {
		snap, err := p.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.HasArtwork {
			t.Fatal("expected no artwork for a 404")
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected 404 fetched once, got %d", n)
	}
}
