package stream

import (
	"bytes"
	"testing"
	"time"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	t.Cleanup(enc.Close)
	return enc
}

func TestEncoderProtobufRoundTrip(t *testing.T) {
	enc := newTestEncoder(t)
	at := time.UnixMilli(1_700_000_000_123)

	tests := []struct {
		name string
		snap media.Snapshot
	}{
		{"idle", media.Idle()},
		{"no artwork", media.New("Song", "Artist", "Album", media.StatusPaused)},
		{"empty artwork", media.New("Song", "Artist", "", media.StatusPlaying).WithArtwork(nil)},
		{"artwork", media.New("Song", "", "Album", media.StatusStopped).WithArtwork(bytes.Repeat([]byte{0xAB, 0x01}, 512))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := relay.Update{Seq: 42, Snapshot: tt.snap, Initial: true, At: at}
			frame := enc.EncodeProtobuf(in)

			if !bytes.HasPrefix(frame, []byte{0x28, 0xB5, 0x2F, 0xFD}) {
				t.Fatalf("frame is not a zstd frame: % x", frame[:4])
			}

			out, err := enc.Decode(FormatProtobuf, frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.Seq != 42 || !out.Initial || !out.At.Equal(at) {
				t.Errorf("header = seq %d initial %v at %v", out.Seq, out.Initial, out.At)
			}
			if !out.Snapshot.Equal(tt.snap) {
				t.Errorf("snapshot = %s (art %v), want %s (art %v)",
					out.Snapshot, out.Snapshot.HasArtwork, tt.snap, tt.snap.HasArtwork)
			}
		})
	}
}

func TestEncoderJSON(t *testing.T) {
	enc := newTestEncoder(t)
	in := relay.Update{
		Seq:      7,
		Snapshot: media.New("Song", "Artist", "Album", media.StatusPlaying).WithArtwork([]byte("png")),
	}

	frame, err := enc.Encode(FormatJSON, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, want := range []string{`"seq":7`, `"status":"Playing"`, `"artwork":"cG5n"`} {
		if !bytes.Contains(frame, []byte(want)) {
			t.Errorf("json %s missing %s", frame, want)
		}
	}

	out, err := enc.Decode(FormatJSON, frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Seq != 7 || !out.Snapshot.Equal(in.Snapshot) {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	enc := newTestEncoder(t)

	if _, err := enc.Decode(FormatProtobuf, []byte("not zstd")); err == nil {
		t.Error("expected error for non-zstd frame")
	}

	truncated := enc.zstdEncoder.EncodeAll([]byte{0x0A, 0x05, 'a'}, nil)
	if _, err := enc.Decode(FormatProtobuf, truncated); err == nil {
		t.Error("expected error for truncated message")
	}

	if _, err := enc.Decode(FormatJSON, []byte("{")); err == nil {
		t.Error("expected error for bad json")
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	enc := newTestEncoder(t)
	raw := marshalMediaUpdate(relay.Update{Seq: 3, Snapshot: media.New("T", "", "", media.StatusPlaying)})
	// field 15, varint 1
	raw = append(raw, 0x78, 0x01)

	out, err := enc.Decode(FormatProtobuf, enc.zstdEncoder.EncodeAll(raw, nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Seq != 3 || out.Snapshot.Title != "T" {
		t.Errorf("decoded %+v", out)
	}
}
