package codec

import (
	"encoding/binary"
	"math"

	"arenasync/internal/syncerr"
	"arenasync/internal/world"
)

// Writer appends little-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with capacity preallocated.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
		return
	}
	w.U8(0)
}

func (w *Writer) String(v string) {
	w.Uvarint(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) ID(id world.EntityID) {
	w.buf = append(w.buf, id[:]...)
}

// Value writes v without a type tag; readers recover the type from the
// entity schema.
func (w *Writer) Value(v world.Value) {
	switch v.Type {
	case world.ValueF32:
		w.F32(v.F32)
	case world.ValueVec2:
		w.F32(v.Vec2.X)
		w.F32(v.Vec2.Y)
	case world.ValueU8:
		w.U8(v.U8)
	case world.ValueU32:
		w.U32(v.U32)
	case world.ValueBool:
		w.Bool(v.Bool)
	case world.ValueString:
		w.String(v.Str)
	case world.ValueID:
		w.ID(v.ID)
	}
}

// Entity writes the kind tag followed by every field in schema order.
func (w *Writer) Entity(entity world.Entity) {
	w.U8(uint8(entity.Kind()))
	for _, value := range entity.Fields() {
		w.Value(value)
	}
}

// Reader consumes primitives from a buffer. The first failure sticks: later
// reads return zero values and Err reports the original problem.
type Reader struct {
	buf  []byte
	off  int
	err  error
	what string
}

// NewReader reads from buf; what names the structure in error messages.
func NewReader(buf []byte, what string) *Reader {
	return &Reader{buf: buf, what: what}
}

func (r *Reader) Err() error { return r.err }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Fail records a corruption error unless one is already recorded.
func (r *Reader) Fail(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = syncerr.Newf(syncerr.CodeCorruptData, "decode "+r.what+": "+format, args...)
}

// Finish reports trailing bytes as corruption and returns the sticky error.
func (r *Reader) Finish() error {
	if r.err == nil && r.Remaining() != 0 {
		r.Fail("%d trailing bytes", r.Remaining())
	}
	return r.err
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.Fail("truncated at offset %d: need %d bytes, have %d", r.off, n, r.Remaining())
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.Fail("malformed varint at offset %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

func (r *Reader) Bool() bool {
	switch v := r.U8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Fail("invalid bool byte %d", v)
		return false
	}
}

// String reads a length-prefixed string, rejecting lengths beyond the
// remaining buffer before allocating.
func (r *Reader) String() string {
	n := r.Uvarint()
	if r.err != nil {
		return ""
	}
	if n > uint64(r.Remaining()) {
		r.Fail("string length %d exceeds remaining %d bytes", n, r.Remaining())
		return ""
	}
	return string(r.take(int(n)))
}

func (r *Reader) ID() world.EntityID {
	var id world.EntityID
	copy(id[:], r.take(len(id)))
	return id
}

// Value reads a field of type t.
func (r *Reader) Value(t world.ValueType) world.Value {
	switch t {
	case world.ValueF32:
		return world.F32Value(r.F32())
	case world.ValueVec2:
		x := r.F32()
		y := r.F32()
		return world.Vec2Value(world.Vec2{X: x, Y: y})
	case world.ValueU8:
		return world.U8Value(r.U8())
	case world.ValueU32:
		return world.U32Value(r.U32())
	case world.ValueBool:
		return world.BoolValue(r.Bool())
	case world.ValueString:
		return world.StringValue(r.String())
	case world.ValueID:
		return world.IDValue(r.ID())
	default:
		r.Fail("unknown value type %d", uint8(t))
		return world.Value{}
	}
}

// Entity reads a tagged entity.
func (r *Reader) Entity() world.Entity {
	kind := world.Kind(r.U8())
	if r.err != nil {
		return nil
	}
	schema, ok := world.Schema(kind)
	if !ok {
		r.Fail("unknown entity tag %d", uint8(kind))
		return nil
	}
	values := make([]world.Value, len(schema))
	for i, t := range schema {
		values[i] = r.Value(t)
	}
	if r.err != nil {
		return nil
	}
	entity, err := world.FromFields(kind, values)
	if err != nil {
		r.Fail("%v", err)
		return nil
	}
	return entity
}
