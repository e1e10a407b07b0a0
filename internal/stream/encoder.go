// Package stream carries relay updates to remote subscribers over SSE and WebSocket.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// WebSocket subprotocols.
const (
	ProtocolJSON     = "json.stagehand.v1"
	ProtocolProtobuf = "protobuf.stagehand.v1"
)

// Format selects the frame encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatProtobuf
)

func (f Format) String() string {
	if f == FormatProtobuf {
		return "protobuf"
	}
	return "json"
}

// Subprotocol returns the WebSocket subprotocol name for f.
func (f Format) Subprotocol() string {
	if f == FormatProtobuf {
		return ProtocolProtobuf
	}
	return ProtocolJSON
}

// MediaUpdate field numbers, see proto/media.proto.
const (
	fieldTitle     protowire.Number = 1
	fieldArtist    protowire.Number = 2
	fieldAlbum     protowire.Number = 3
	fieldAlbumArt  protowire.Number = 4
	fieldStatus    protowire.Number = 5
	fieldSeq       protowire.Number = 6
	fieldInitial   protowire.Number = 7
	fieldTimestamp protowire.Number = 8
)

var errMalformedFrame = errors.New("malformed media update frame")

// Encoder converts relay updates to wire frames. Binary frames are
// zstd-compressed MediaUpdate messages; text frames are JSON.
// An Encoder is safe for concurrent use.
type Encoder struct {
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc, zstdDecoder: dec}, nil
}

// Encode renders u in the given format.
func (e *Encoder) Encode(format Format, u relay.Update) ([]byte, error) {
	if format == FormatProtobuf {
		return e.EncodeProtobuf(u), nil
	}
	return EncodeJSON(u)
}

// EncodeJSON renders u as a JSON object; artwork is base64.
func EncodeJSON(u relay.Update) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal update json: %w", err)
	}
	return data, nil
}

// EncodeProtobuf renders u as a zstd-compressed MediaUpdate.
func (e *Encoder) EncodeProtobuf(u relay.Update) []byte {
	return e.zstdEncoder.EncodeAll(marshalMediaUpdate(u), nil)
}

// Decode parses a frame produced by Encode.
func (e *Encoder) Decode(format Format, data []byte) (relay.Update, error) {
	if format != FormatProtobuf {
		var u relay.Update
		if err := json.Unmarshal(data, &u); err != nil {
			return relay.Update{}, fmt.Errorf("unmarshal update json: %w", err)
		}
		return u, nil
	}

	raw, err := e.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return relay.Update{}, fmt.Errorf("decompress frame: %w", err)
	}
	return unmarshalMediaUpdate(raw)
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
	if e.zstdDecoder != nil {
		e.zstdDecoder.Close()
	}
}

func marshalMediaUpdate(u relay.Update) []byte {
	s := u.Snapshot
	var b []byte

	appendString := func(num protowire.Number, v string) {
		if v == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	appendVarint := func(num protowire.Number, v uint64) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}

	appendString(fieldTitle, s.Title)
	appendString(fieldArtist, s.Artist)
	appendString(fieldAlbum, s.Album)
	// album_art is an optional field: present-but-empty is distinct from absent.
	if s.HasArtwork {
		b = protowire.AppendTag(b, fieldAlbumArt, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Artwork)
	}
	appendVarint(fieldStatus, uint64(s.Status))
	appendVarint(fieldSeq, u.Seq)
	appendVarint(fieldInitial, protowire.EncodeBool(u.Initial))
	if !u.At.IsZero() {
		appendVarint(fieldTimestamp, uint64(u.At.UnixMilli()))
	}
	return b
}

func unmarshalMediaUpdate(b []byte) (relay.Update, error) {
	var u relay.Update
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return relay.Update{}, fmt.Errorf("%w: %v", errMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num <= fieldAlbumArt:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return relay.Update{}, fmt.Errorf("%w: field %d: %v", errMalformedFrame, num, protowire.ParseError(m))
			}
			switch num {
			case fieldTitle:
				u.Snapshot.Title = string(v)
			case fieldArtist:
				u.Snapshot.Artist = string(v)
			case fieldAlbum:
				u.Snapshot.Album = string(v)
			case fieldAlbumArt:
				u.Snapshot.Artwork = append([]byte{}, v...)
				u.Snapshot.HasArtwork = true
			}
			n = m

		case typ == protowire.VarintType && num >= fieldStatus && num <= fieldTimestamp:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return relay.Update{}, fmt.Errorf("%w: field %d: %v", errMalformedFrame, num, protowire.ParseError(m))
			}
			switch num {
			case fieldStatus:
				u.Snapshot.Status = media.Status(v)
			case fieldSeq:
				u.Seq = v
			case fieldInitial:
				u.Initial = protowire.DecodeBool(v)
			case fieldTimestamp:
				u.At = time.UnixMilli(int64(v))
			}
			n = m

		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return relay.Update{}, fmt.Errorf("%w: field %d: %v", errMalformedFrame, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return u, nil
}
