package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"arenasync/internal/syncerr"
)

func TestMarshalLayout(t *testing.T) {
	f := New(KindDelta, 0x0102030405060708, 300, []byte{0xAA, 0xBB})
	got := f.Marshal()

	want := []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0x01,
		0x2C, 0x01, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0xAA, 0xBB,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected layout\n got %x\nwant %x", got, want)
	}
	if f.Size() != len(want) {
		t.Fatalf("expected size %d, got %d", len(want), f.Size())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindFull, KindDelta, KindAck} {
		f := New(kind, 42, 9, []byte("payload"))
		data := f.Marshal()
		parsed, err := Parse(data)
		if err != nil {
			t.Fatalf("%s: parse: %v", kind, err)
		}
		if parsed.Sequence != 42 || parsed.Kind != kind || parsed.UncompressedLen != 9 {
			t.Fatalf("%s: unexpected header %+v", kind, parsed)
		}
		if !bytes.Equal(parsed.Payload, f.Payload) {
			t.Fatalf("%s: payload mismatch", kind)
		}
		data[HeaderSize] = 'X'
		if parsed.Payload[0] != 'p' {
			t.Fatalf("%s: parsed payload aliases input buffer", kind)
		}
	}
}

func TestParseEmptyPayload(t *testing.T) {
	parsed, err := Parse(New(KindAck, 1, 0, nil).Marshal())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(parsed.Payload))
	}
}

func TestParseRejectsInconsistentFrames(t *testing.T) {
	valid := New(KindFull, 7, 3, []byte{1, 2, 3}).Marshal()

	longer := append(append([]byte(nil), valid...), 0xFF)
	shorter := valid[:len(valid)-1]
	badKind := append([]byte(nil), valid...)
	badKind[8] = 3
	hugeLen := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(hugeLen[13:17], 0xFFFFFFFF)

	cases := map[string][]byte{
		"empty":          nil,
		"short header":   valid[:HeaderSize-1],
		"extra trailing": longer,
		"missing bytes":  shorter,
		"unknown kind":   badKind,
		"huge length":    hugeLen,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			if !errors.Is(err, syncerr.ErrFrame) {
				t.Fatalf("expected frame error, got %v", err)
			}
		})
	}
}
