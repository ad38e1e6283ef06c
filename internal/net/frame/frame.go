// Package frame implements the wire envelope carried over the socket: a
// fixed little-endian header followed by the compressed payload.
package frame

import (
	"encoding/binary"
	"fmt"

	"arenasync/internal/syncerr"
)

// HeaderSize is the fixed header length in bytes.
const HeaderSize = 8 + 1 + 4 + 4

// Kind identifies what a frame payload carries.
type Kind uint8

const (
	KindFull  Kind = 0
	KindDelta Kind = 1
	KindAck   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindDelta:
		return "delta"
	case KindAck:
		return "ack"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k <= KindAck
}

// Frame is one sequenced, typed, compressed unit.
type Frame struct {
	Sequence        uint64
	Kind            Kind
	UncompressedLen uint32
	Payload         []byte
}

// New assembles a frame around an already compressed payload.
func New(kind Kind, seq uint64, uncompressedLen int, payload []byte) Frame {
	return Frame{
		Sequence:        seq,
		Kind:            kind,
		UncompressedLen: uint32(uncompressedLen),
		Payload:         payload,
	}
}

// Size is the encoded length of f.
func (f Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// Marshal encodes f into a fresh buffer.
func (f Frame) Marshal() []byte {
	buf := make([]byte, HeaderSize, f.Size())
	binary.LittleEndian.PutUint64(buf[0:8], f.Sequence)
	buf[8] = byte(f.Kind)
	binary.LittleEndian.PutUint32(buf[9:13], f.UncompressedLen)
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

// Parse decodes one frame occupying all of data. The returned payload does
// not alias data. Sequence ordering is left to the caller.
func Parse(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, syncerr.Newf(syncerr.CodeFrame, "short header: %d bytes", len(data))
	}
	f := Frame{
		Sequence:        binary.LittleEndian.Uint64(data[0:8]),
		Kind:            Kind(data[8]),
		UncompressedLen: binary.LittleEndian.Uint32(data[9:13]),
	}
	if !f.Kind.Valid() {
		return Frame{}, syncerr.Newf(syncerr.CodeFrame, "unknown kind %d", data[8])
	}
	payloadLen := binary.LittleEndian.Uint32(data[13:17])
	if remaining := len(data) - HeaderSize; uint64(payloadLen) != uint64(remaining) {
		return Frame{}, syncerr.Newf(syncerr.CodeFrame,
			"payload length %d disagrees with %d trailing bytes", payloadLen, remaining)
	}
	f.Payload = append([]byte(nil), data[HeaderSize:]...)
	return f, nil
}
