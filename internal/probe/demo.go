package probe

import (
	"context"
	"sync"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

type demoTrack struct {
	title, artist, album string
}

var demoTracks = []demoTrack{
	{"Demo Song - Cross Platform", "Stagehand", "Test Album"},
	{"Another Track", "Virtual Artist", "Demo Album"},
	{"Media Control Test", "Test Artist", "System Sounds"},
}

// DemoProvider is an in-process simulated player for development and fallback use.
type DemoProvider struct {
	mu      sync.Mutex
	active  bool
	track   int
	status  media.Status
	changes chan struct{}
}

// NewDemoProvider returns a DemoProvider with an active, stopped session on the first track.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{
		active:  true,
		status:  media.StatusStopped,
		changes: make(chan struct{}, 1),
	}
}

func (d *DemoProvider) Name() string { return "demo" }

func (d *DemoProvider) CurrentSessionID(context.Context) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return "", false
	}
	return "demo", true
}

func (d *DemoProvider) Snapshot(context.Context) (media.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return media.Idle(), nil
	}
	t := demoTracks[d.track]
	return media.New(t.title, t.artist, t.album, d.status), nil
}

func (d *DemoProvider) SendPlay(context.Context) error {
	return d.update(func() { d.status = media.StatusPlaying })
}

func (d *DemoProvider) SendPause(context.Context) error {
	return d.update(func() { d.status = media.StatusPaused })
}

func (d *DemoProvider) SendNext(context.Context) error {
	return d.update(func() { d.track = (d.track + 1) % len(demoTracks) })
}

func (d *DemoProvider) SendPrevious(context.Context) error {
	return d.update(func() { d.track = (d.track + len(demoTracks) - 1) % len(demoTracks) })
}

// Start (re)opens the demo session.
func (d *DemoProvider) Start() {
	d.mu.Lock()
	d.active = true
	d.mu.Unlock()
	d.signal()
}

// Stop ends the demo session so the provider reports no media.
func (d *DemoProvider) Stop() {
	d.mu.Lock()
	d.active = false
	d.status = media.StatusStopped
	d.mu.Unlock()
	d.signal()
}

// Changes fires after every command or session transition.
func (d *DemoProvider) Changes() <-chan struct{} {
	return d.changes
}

func (d *DemoProvider) update(fn func()) error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return ErrNoActiveSession
	}
	fn()
	d.mu.Unlock()
	d.signal()
	return nil
}

func (d *DemoProvider) signal() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}

var (
	_ Provider       = (*DemoProvider)(nil)
	_ ChangeNotifier = (*DemoProvider)(nil)
)
