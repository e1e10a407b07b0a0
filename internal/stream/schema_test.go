package stream

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

const schemaPath = "../../proto/media.proto"

type schemaField struct {
	optional bool
	typ      string
	name     string
	number   int32
}

var (
	fieldLine = regexp.MustCompile(`(?m)^\s*(optional\s+)?(\w+)\s+(\w+)\s*=\s*(\d+)\s*;`)
	enumLine  = regexp.MustCompile(`(?m)^\s*(\w+)\s*=\s*(\d+)\s*;`)
)

func block(t *testing.T, src, header string) string {
	t.Helper()
	start := strings.Index(src, header)
	if start < 0 {
		t.Fatalf("%s not found in %s", header, schemaPath)
	}
	body := src[start+len(header):]
	end := strings.Index(body, "}")
	if end < 0 {
		t.Fatalf("unterminated %s", header)
	}
	return body[:end]
}

func readSchema(t *testing.T) ([]schemaField, map[string]int32) {
	t.Helper()
	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	src := string(raw)

	var fields []schemaField
	for _, m := range fieldLine.FindAllStringSubmatch(block(t, src, "message MediaUpdate {"), -1) {
		n, _ := strconv.Atoi(m[4])
		fields = append(fields, schemaField{optional: m[1] != "", typ: m[2], name: m[3], number: int32(n)})
	}

	values := map[string]int32{}
	for _, m := range enumLine.FindAllStringSubmatch(block(t, src, "enum PlaybackStatus {"), -1) {
		n, _ := strconv.Atoi(m[2])
		values[m[1]] = int32(n)
	}
	return fields, values
}

// mediaUpdateDescriptor builds the MediaUpdate descriptor from the parsed schema.
func mediaUpdateDescriptor(t *testing.T, fields []schemaField, values map[string]int32) protoreflect.MessageDescriptor {
	t.Helper()

	scalar := map[string]descriptorpb.FieldDescriptorProto_Type{
		"string": descriptorpb.FieldDescriptorProto_TYPE_STRING,
		"bytes":  descriptorpb.FieldDescriptorProto_TYPE_BYTES,
		"uint64": descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		"int64":  descriptorpb.FieldDescriptorProto_TYPE_INT64,
		"bool":   descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	}

	msg := &descriptorpb.DescriptorProto{Name: proto.String("MediaUpdate")}
	for _, f := range fields {
		fd := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(f.name),
			JsonName: proto.String(f.name),
			Number:   proto.Int32(f.number),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}
		if typ, ok := scalar[f.typ]; ok {
			fd.Type = typ.Enum()
		} else if f.typ == "PlaybackStatus" {
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
			fd.TypeName = proto.String(".stagehand.v1.PlaybackStatus")
		} else {
			t.Fatalf("field %s has unhandled type %s", f.name, f.typ)
		}
		if f.optional {
			fd.Proto3Optional = proto.Bool(true)
			fd.OneofIndex = proto.Int32(int32(len(msg.OneofDecl)))
			msg.OneofDecl = append(msg.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.name)})
		}
		msg.Field = append(msg.Field, fd)
	}

	enum := &descriptorpb.EnumDescriptorProto{Name: proto.String("PlaybackStatus")}
	for name, n := range values {
		enum.Value = append(enum.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(n),
		})
	}
	// proto3 requires the zero value first.
	for i, v := range enum.Value {
		if v.GetNumber() == 0 {
			enum.Value[0], enum.Value[i] = enum.Value[i], enum.Value[0]
		}
	}

	file, err := protodesc.NewFile(&descriptorpb.FileDescriptorProto{
		Name:        proto.String("media.proto"),
		Package:     proto.String("stagehand.v1"),
		Syntax:      proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{msg},
		EnumType:    []*descriptorpb.EnumDescriptorProto{enum},
	}, nil)
	if err != nil {
		t.Fatalf("build descriptor: %v", err)
	}
	return file.Messages().ByName("MediaUpdate")
}

func TestSchemaFieldNumbersMatchEncoder(t *testing.T) {
	fields, values := readSchema(t)

	want := map[string]protowire.Number{
		"title":     fieldTitle,
		"artist":    fieldArtist,
		"album":     fieldAlbum,
		"album_art": fieldAlbumArt,
		"status":    fieldStatus,
		"seq":       fieldSeq,
		"initial":   fieldInitial,
		"timestamp": fieldTimestamp,
	}
	if len(fields) != len(want) {
		t.Errorf("schema has %d fields, encoder knows %d", len(fields), len(want))
	}
	for _, f := range fields {
		num, ok := want[f.name]
		if !ok {
			t.Errorf("schema field %s unknown to the encoder", f.name)
			continue
		}
		if protowire.Number(f.number) != num {
			t.Errorf("field %s: schema number %d, encoder %d", f.name, f.number, num)
		}
	}

	statuses := map[string]media.Status{
		"PLAYBACK_STATUS_UNKNOWN": media.StatusUnknown,
		"PLAYBACK_STATUS_PLAYING": media.StatusPlaying,
		"PLAYBACK_STATUS_PAUSED":  media.StatusPaused,
		"PLAYBACK_STATUS_STOPPED": media.StatusStopped,
	}
	for name, status := range statuses {
		if n, ok := values[name]; !ok || n != int32(status) {
			t.Errorf("enum %s = %d (present %v), want %d", name, n, ok, status)
		}
	}
}

func TestEncoderInteroperatesWithSchema(t *testing.T) {
	fields, values := readSchema(t)
	md := mediaUpdateDescriptor(t, fields, values)
	field := md.Fields().ByName

	at := time.UnixMilli(1_700_000_000_456)
	u := relay.Update{
		Seq:      12,
		Initial:  true,
		At:       at,
		Snapshot: media.New("Song", "Artist", "Album", media.StatusPaused).WithArtwork([]byte{0x89, 'P', 'N', 'G'}),
	}

	decoded := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(marshalMediaUpdate(u), decoded); err != nil {
		t.Fatalf("proto.Unmarshal: %v", err)
	}
	if decoded.Get(field("title")).String() != "Song" ||
		decoded.Get(field("artist")).String() != "Artist" ||
		decoded.Get(field("album")).String() != "Album" {
		t.Errorf("text fields = %v", decoded)
	}
	if !decoded.Has(field("album_art")) || string(decoded.Get(field("album_art")).Bytes()) != "\x89PNG" {
		t.Errorf("album_art = %v", decoded.Get(field("album_art")))
	}
	if got := decoded.Get(field("status")).Enum(); got != protoreflect.EnumNumber(media.StatusPaused) {
		t.Errorf("status = %d", got)
	}
	if decoded.Get(field("seq")).Uint() != 12 || !decoded.Get(field("initial")).Bool() {
		t.Errorf("seq/initial = %v", decoded)
	}
	if decoded.Get(field("timestamp")).Int() != at.UnixMilli() {
		t.Errorf("timestamp = %d", decoded.Get(field("timestamp")).Int())
	}

	// The other direction: a message built by the protobuf runtime.
	built := dynamicpb.NewMessage(md)
	built.Set(field("title"), protoreflect.ValueOfString("Other"))
	built.Set(field("album_art"), protoreflect.ValueOfBytes([]byte{}))
	built.Set(field("status"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(media.StatusPlaying)))
	built.Set(field("seq"), protoreflect.ValueOfUint64(99))
	built.Set(field("timestamp"), protoreflect.ValueOfInt64(at.UnixMilli()))

	raw, err := proto.Marshal(built)
	if err != nil {
		t.Fatalf("proto.Marshal: %v", err)
	}
	got, err := unmarshalMediaUpdate(raw)
	if err != nil {
		t.Fatalf("unmarshalMediaUpdate: %v", err)
	}
	if got.Snapshot.Title != "Other" || got.Snapshot.Status != media.StatusPlaying || got.Seq != 99 {
		t.Errorf("decoded = %+v", got)
	}
	if !got.Snapshot.HasArtwork || len(got.Snapshot.Artwork) != 0 {
		t.Errorf("empty album_art should be present and empty, got has=%v %v", got.Snapshot.HasArtwork, got.Snapshot.Artwork)
	}
	if !got.At.Equal(at) {
		t.Errorf("at = %v, want %v", got.At, at)
	}
}
