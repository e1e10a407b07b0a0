package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

const (
	// Tab separated so album names like "Artist | Sessions" survive.
	playerctlFormat = "{{title}}\t{{artist}}\t{{album}}\t{{status}}\t{{mpris:artUrl}}"

	maxArtworkBytes = 4 << 20
)

// errArtworkMissing marks artwork failures that will not go away for the same URL.
var errArtworkMissing = errors.New("artwork unavailable")

// commandRunner runs playerctl with args and returns trimmed stdout.
type commandRunner func(ctx context.Context, args ...string) (string, error)

// PlayerctlProvider reads MPRIS sessions on Linux through the playerctl CLI.
type PlayerctlProvider struct {
	player     string
	artwork    bool
	run        commandRunner
	httpClient *http.Client

	artMu  sync.Mutex
	artURL string
	art    []byte
}

// NewPlayerctlProvider checks that playerctl is installed. player pins a
// specific MPRIS player name; empty follows whichever player is listed first.
func NewPlayerctlProvider(player string, artwork bool) (*PlayerctlProvider, error) {
	path, err := exec.LookPath("playerctl")
	if err != nil {
		return nil, fmt.Errorf("%w: playerctl not found: %v", ErrProviderUnavailable, err)
	}
	return newPlayerctlProvider(player, artwork, execRunner(path)), nil
}

func newPlayerctlProvider(player string, artwork bool, run commandRunner) *PlayerctlProvider {
	return &PlayerctlProvider{
		player:     player,
		artwork:    artwork,
		run:        run,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// PlayerctlFactory adapts NewPlayerctlProvider to a Factory for Acquire.
func PlayerctlFactory(player string, artwork bool) Factory {
	return func(ctx context.Context) (Provider, error) {
		return NewPlayerctlProvider(player, artwork)
	}
}

func execRunner(path string) commandRunner {
	return func(ctx context.Context, args ...string) (string, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return "", errors.New(msg)
			}
			return "", err
		}
		return strings.TrimSpace(stdout.String()), nil
	}
}

func (p *PlayerctlProvider) Name() string { return "playerctl" }

func (p *PlayerctlProvider) CurrentSessionID(ctx context.Context) (string, bool) {
	out, err := p.run(ctx, "--list-all")
	if err != nil || out == "" {
		return "", false
	}
	for _, name := range strings.Split(out, "\n") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if p.player == "" || name == p.player || strings.HasPrefix(name, p.player+".") {
			return name, true
		}
	}
	return "", false
}

func (p *PlayerctlProvider) Snapshot(ctx context.Context) (media.Snapshot, error) {
	player, ok := p.CurrentSessionID(ctx)
	if !ok {
		return media.Idle(), nil
	}

	out, err := p.run(ctx, "--player", player, "metadata", "--format", playerctlFormat)
	if err != nil {
		return media.Snapshot{}, fmt.Errorf("reading metadata: %w", err)
	}

	parts := strings.Split(out, "\t")
	if len(parts) != 5 {
		return media.Snapshot{}, fmt.Errorf("unexpected metadata format: got %d parts, expected 5", len(parts))
	}

	snap := media.New(
		strings.TrimSpace(parts[0]),
		strings.TrimSpace(parts[1]),
		strings.TrimSpace(parts[2]),
		media.ParseStatus(parts[3]),
	)

	if p.artwork {
		if art, ok := p.fetchArtwork(ctx, strings.TrimSpace(parts[4])); ok {
			snap = snap.WithArtwork(art)
		}
	}
	return snap, nil
}

func (p *PlayerctlProvider) SendPlay(ctx context.Context) error     { return p.control(ctx, "play") }
func (p *PlayerctlProvider) SendPause(ctx context.Context) error    { return p.control(ctx, "pause") }
func (p *PlayerctlProvider) SendNext(ctx context.Context) error     { return p.control(ctx, "next") }
func (p *PlayerctlProvider) SendPrevious(ctx context.Context) error { return p.control(ctx, "previous") }

func (p *PlayerctlProvider) control(ctx context.Context, command string) error {
	player, ok := p.CurrentSessionID(ctx)
	if !ok {
		return ErrNoActiveSession
	}
	if _, err := p.run(ctx, "--player", player, command); err != nil {
		return fmt.Errorf("playerctl %s failed: %w", command, err)
	}
	return nil
}

// fetchArtwork resolves an mpris:artUrl, caching the last URL so an
// unchanged track does not refetch every poll. Transient failures such as
// timeouts are not cached and are retried on the next sample.
func (p *PlayerctlProvider) fetchArtwork(ctx context.Context, artURL string) ([]byte, bool) {
	if artURL == "" {
		return nil, false
	}

	p.artMu.Lock()
	defer p.artMu.Unlock()

	if artURL == p.artURL {
		return p.art, p.art != nil
	}

	data, err := p.loadArtwork(ctx, artURL)
	if err != nil {
		if errors.Is(err, errArtworkMissing) {
			p.artURL = artURL
			p.art = nil
		}
		return nil, false
	}
	p.artURL = artURL
	p.art = data
	return data, true
}

func (p *PlayerctlProvider) loadArtwork(ctx context.Context, artURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(artURL, "file://"):
		f, err := os.Open(strings.TrimPrefix(artURL, "file://"))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", errArtworkMissing, err)
		}
		if err != nil {
			return nil, fmt.Errorf("opening artwork file: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxArtworkBytes))

	case strings.HasPrefix(artURL, "http://"), strings.HasPrefix(artURL, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating artwork request: %w", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("downloading artwork: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d", errArtworkMissing, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("artwork download failed with status: %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))

	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme: %s", errArtworkMissing, artURL)
	}
}

var _ Provider = (*PlayerctlProvider)(nil)
