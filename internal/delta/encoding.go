package delta

import (
	"arenasync/internal/codec"
	"arenasync/internal/world"
)

const (
	deltaMagic   = 0xD7
	deltaVersion = 1

	// minOpSize is a kind byte plus an identifier (a remove).
	minOpSize = 17
)

// Encode renders d in canonical form: header, then each op in stored order.
func Encode(d Delta) []byte {
	w := codec.NewWriter(16 + len(d.Ops)*24)
	w.U8(deltaMagic)
	w.U8(deltaVersion)
	w.U64(d.BaseFingerprint)
	w.Uvarint(uint64(len(d.Ops)))
	for _, op := range d.Ops {
		w.U8(uint8(op.Kind))
		w.ID(op.ID)
		switch op.Kind {
		case OpInsert:
			w.Entity(op.State)
		case OpUpdate:
			w.U8(uint8(op.Patch.EntityKind))
			w.U8(uint8(len(op.Patch.Fields)))
			for _, field := range op.Patch.Fields {
				w.U8(field.Index)
				w.Value(field.Value)
			}
		}
	}
	return w.Bytes()
}

// Decode parses bytes produced by Encode. Ops must be in identifier order and
// patch fields in ascending index order; anything else is corrupt.
func Decode(data []byte) (Delta, error) {
	r := codec.NewReader(data, "delta")
	if magic := r.U8(); r.Err() == nil && magic != deltaMagic {
		r.Fail("bad magic 0x%02x", magic)
	}
	if version := r.U8(); r.Err() == nil && version != deltaVersion {
		r.Fail("unsupported version %d", version)
	}
	out := Delta{BaseFingerprint: r.U64()}
	count := r.Uvarint()
	if r.Err() != nil {
		return Delta{}, r.Err()
	}
	if count > uint64(r.Remaining()/minOpSize) {
		r.Fail("op count %d exceeds remaining %d bytes", count, r.Remaining())
		return Delta{}, r.Err()
	}

	out.Ops = make([]Op, 0, count)
	for i := uint64(0); i < count; i++ {
		op := decodeOp(r)
		if r.Err() != nil {
			return Delta{}, r.Err()
		}
		if i > 0 {
			checkOrder(r, out.Ops[len(out.Ops)-1], op)
		}
		out.Ops = append(out.Ops, op)
	}
	if err := r.Finish(); err != nil {
		return Delta{}, err
	}
	return out, nil
}

func decodeOp(r *codec.Reader) Op {
	op := Op{Kind: OpKind(r.U8())}
	op.ID = r.ID()
	if r.Err() != nil {
		return op
	}
	switch op.Kind {
	case OpInsert:
		op.State = r.Entity()
	case OpRemove:
	case OpUpdate:
		op.Patch = decodePatch(r)
	default:
		r.Fail("unknown op kind %d", uint8(op.Kind))
	}
	return op
}

func decodePatch(r *codec.Reader) FieldPatch {
	patch := FieldPatch{EntityKind: world.Kind(r.U8())}
	n := int(r.U8())
	if r.Err() != nil {
		return patch
	}
	schema, ok := world.Schema(patch.EntityKind)
	if !ok {
		r.Fail("unknown entity tag %d", uint8(patch.EntityKind))
		return patch
	}
	if n == 0 || n > len(schema) {
		r.Fail("patch for %s has %d fields", patch.EntityKind, n)
		return patch
	}
	patch.Fields = make([]FieldValue, 0, n)
	for k := 0; k < n; k++ {
		index := r.U8()
		if r.Err() != nil {
			return patch
		}
		if int(index) >= len(schema) {
			r.Fail("%s field index %d out of range", patch.EntityKind, index)
			return patch
		}
		if k > 0 && index <= patch.Fields[k-1].Index {
			r.Fail("%s field index %d not ascending", patch.EntityKind, index)
			return patch
		}
		patch.Fields = append(patch.Fields, FieldValue{Index: index, Value: r.Value(schema[index])})
	}
	return patch
}

// checkOrder enforces ascending identifiers. The only repeat allowed is a
// remove immediately followed by an insert, which encodes a kind change.
func checkOrder(r *codec.Reader, prev, op Op) {
	switch {
	case prev.ID.Less(op.ID):
	case prev.ID == op.ID && prev.Kind == OpRemove && op.Kind == OpInsert:
	default:
		r.Fail("op %s %s out of order after %s %s", op.Kind, op.ID, prev.Kind, prev.ID)
	}
}
