// Package media holds the value types shared by the probe, relay and stream layers.
package media

import (
	"bytes"
	"fmt"
	"strings"
)

// Status is the playback state reported by a media session.
type Status int

const (
	StatusUnknown Status = iota
	StatusPlaying
	StatusPaused
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ParseStatus maps a provider status string (case-insensitive) to a Status.
// Unrecognised values map to StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing":
		return StatusPlaying
	case "paused":
		return StatusPaused
	case "stopped":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// MarshalText implements encoding.TextMarshaler so Status renders as its name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed := ParseStatus(string(text))
	if parsed == StatusUnknown && !strings.EqualFold(string(text), "unknown") && len(text) > 0 {
		return fmt.Errorf("invalid status: %q", text)
	}
	*s = parsed
	return nil
}

// Snapshot is one sample of the active media session.
// Treat it as immutable: use New or With* helpers rather than mutating a shared value.
type Snapshot struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Artwork []byte `json:"artwork,omitempty"`
	// HasArtwork distinguishes an absent thumbnail from an empty one.
	HasArtwork bool   `json:"has_artwork"`
	Status     Status `json:"status"`
}

// New builds a Snapshot without artwork.
func New(title, artist, album string, status Status) Snapshot {
	return Snapshot{Title: title, Artist: artist, Album: album, Status: status}
}

// Idle is the "no media" snapshot: empty text fields, no artwork, StatusUnknown.
func Idle() Snapshot {
	return Snapshot{}
}

// WithArtwork returns a copy carrying its own copy of art.
func (s Snapshot) WithArtwork(art []byte) Snapshot {
	s.Artwork = bytes.Clone(art)
	if s.Artwork == nil {
		s.Artwork = []byte{}
	}
	s.HasArtwork = true
	return s
}

// Clone returns a deep copy so callers can hand the value across goroutines.
func (s Snapshot) Clone() Snapshot {
	if s.HasArtwork {
		s.Artwork = bytes.Clone(s.Artwork)
		if s.Artwork == nil {
			s.Artwork = []byte{}
		}
	}
	return s
}

// Equal compares every field; artwork is compared by content and presence.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Title != o.Title || s.Artist != o.Artist || s.Album != o.Album || s.Status != o.Status {
		return false
	}
	if s.HasArtwork != o.HasArtwork {
		return false
	}
	return bytes.Equal(s.Artwork, o.Artwork)
}

// IsIdle reports whether s represents "no media".
func (s Snapshot) IsIdle() bool {
	return s.Equal(Idle())
}

// DisplayTitle falls back to a placeholder when no media is active.
func (s Snapshot) DisplayTitle() string {
	if s.IsIdle() {
		return "No media"
	}
	if s.Title == "" {
		return "Untitled"
	}
	return s.Title
}

// DisplayArtist falls back to a placeholder when no media is active.
func (s Snapshot) DisplayArtist() string {
	if s.IsIdle() {
		return "Start playing media"
	}
	if s.Artist == "" {
		return "Unknown artist"
	}
	return s.Artist
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s - %s [%s]", s.DisplayArtist(), s.DisplayTitle(), s.Status)
}
