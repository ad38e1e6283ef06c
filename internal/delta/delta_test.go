package delta

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"arenasync/internal/syncerr"
	"arenasync/internal/world"
)

func body(x, y float32) world.RigidBody {
	return world.RigidBody{Position: world.Vec2{X: x, Y: y}, Owner: "p1"}
}

func twoBodies() world.Snapshot {
	snap := world.NewSnapshot(2)
	snap.Set(world.EntityIDFromUint64(1), body(0, 0))
	snap.Set(world.EntityIDFromUint64(2), body(5, 5))
	return snap
}

func randomEntity(rng *rand.Rand) world.Entity {
	switch rng.Intn(3) {
	case 0:
		return world.RigidBody{
			Position: world.Vec2{X: float32(rng.Intn(100)), Y: float32(rng.Intn(100))},
			Velocity: world.Vec2{X: float32(rng.Intn(3))},
			Rotation: float32(rng.Intn(4)),
			BodyType: world.BodyType(rng.Intn(2)),
			Owner:    []string{"a", "b"}[rng.Intn(2)],
		}
	case 1:
		return world.Collider{HalfX: float32(rng.Intn(3)), Mass: float32(rng.Intn(3)), CollisionGroups: uint32(rng.Intn(3))}
	default:
		return world.Sound{Volume: float32(rng.Intn(3)), Playing: rng.Intn(2) == 0, FilePath: "x.wav"}
	}
}

// randomPair returns two snapshots drawn from a small ID space so that
// inserts, removes, updates and kind changes all occur.
func randomPair(rng *rand.Rand) (world.Snapshot, world.Snapshot) {
	a, b := world.NewSnapshot(0), world.NewSnapshot(0)
	for n := uint64(0); n < 24; n++ {
		id := world.EntityIDFromUint64(n)
		if rng.Intn(3) > 0 {
			a.Set(id, randomEntity(rng))
		}
		if rng.Intn(3) > 0 {
			if prev, ok := a.Get(id); ok && rng.Intn(2) == 0 {
				b.Set(id, prev)
			} else {
				b.Set(id, randomEntity(rng))
			}
		}
	}
	return a, b
}

func TestSingleFieldUpdate(t *testing.T) {
	prev := twoBodies()
	next := prev.Clone()
	next.Set(world.EntityIDFromUint64(1), body(1, 0))

	d := Diff(prev, next, DefaultOptions())
	if len(d.Ops) != 1 {
		t.Fatalf("expected exactly one op, got %d: %+v", len(d.Ops), d.Ops)
	}
	op := d.Ops[0]
	if op.Kind != OpUpdate || op.ID != world.EntityIDFromUint64(1) {
		t.Fatalf("expected update for id 1, got %s %s", op.Kind, op.ID)
	}
	if len(op.Patch.Fields) != 1 || op.Patch.Fields[0].Index != world.RigidBodyPosition {
		t.Fatalf("expected only the position field, got %+v", op.Patch.Fields)
	}
	if op.Patch.Fields[0].Value.Vec2 != (world.Vec2{X: 1, Y: 0}) {
		t.Fatalf("unexpected position %+v", op.Patch.Fields[0].Value.Vec2)
	}
}

func TestDiffOfIdenticalSnapshotsIsEmpty(t *testing.T) {
	snap := twoBodies()
	if d := Diff(snap, snap.Clone(), DefaultOptions()); !d.Empty() {
		t.Fatalf("expected empty delta, got %+v", d.Ops)
	}
}

func TestDiffIgnoresChangesWithinEpsilon(t *testing.T) {
	prev := twoBodies()
	next := prev.Clone()
	next.Set(world.EntityIDFromUint64(1), body(0+1e-7, 0))

	if d := Diff(prev, next, DefaultOptions()); !d.Empty() {
		t.Fatalf("expected jitter below epsilon to be ignored, got %+v", d.Ops)
	}
	if d := Diff(prev, next, Options{Epsilon: -1}); d.Empty() {
		t.Fatalf("expected exact comparison to report the change")
	}
}

func TestDiffOrdersOpsByID(t *testing.T) {
	prev := world.NewSnapshot(0)
	prev.Set(world.EntityIDFromUint64(9), body(0, 0))
	prev.Set(world.EntityIDFromUint64(4), body(0, 0))

	next := world.NewSnapshot(0)
	next.Set(world.EntityIDFromUint64(7), body(1, 1))
	next.Set(world.EntityIDFromUint64(4), body(2, 0))
	next.Set(world.EntityIDFromUint64(1), world.Sound{Volume: 1})

	d := Diff(prev, next, DefaultOptions())
	want := []struct {
		kind OpKind
		id   uint64
	}{{OpInsert, 1}, {OpUpdate, 4}, {OpInsert, 7}, {OpRemove, 9}}
	if len(d.Ops) != len(want) {
		t.Fatalf("expected %d ops, got %d", len(want), len(d.Ops))
	}
	for i, w := range want {
		if d.Ops[i].Kind != w.kind || d.Ops[i].ID != world.EntityIDFromUint64(w.id) {
			t.Fatalf("op %d: expected %s %d, got %s %s", i, w.kind, w.id, d.Ops[i].Kind, d.Ops[i].ID)
		}
	}
	if ins, rem, upd := d.Counts(); ins != 2 || rem != 1 || upd != 1 {
		t.Fatalf("unexpected counts %d/%d/%d", ins, rem, upd)
	}
}

func TestKindChangeIsRemoveThenInsert(t *testing.T) {
	id := world.EntityIDFromUint64(3)
	prev := world.NewSnapshot(1)
	prev.Set(id, body(0, 0))
	next := world.NewSnapshot(1)
	next.Set(id, world.Collider{HalfX: 2})

	d := Diff(prev, next, DefaultOptions())
	if len(d.Ops) != 2 || d.Ops[0].Kind != OpRemove || d.Ops[1].Kind != OpInsert {
		t.Fatalf("expected remove+insert, got %+v", d.Ops)
	}

	decoded, err := Decode(Encode(d))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	applied, err := Apply(prev, decoded)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied.Equal(next) {
		t.Fatalf("kind change did not reproduce target")
	}
}

func TestApplyInvertsDiff(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a, b := randomPair(rng)
		d := Diff(a, b, DefaultOptions())

		decoded, err := Decode(Encode(d))
		if err != nil {
			t.Fatalf("iteration %d: decode: %v", i, err)
		}
		got, err := Apply(a, decoded)
		if err != nil {
			t.Fatalf("iteration %d: apply: %v", i, err)
		}
		if !got.Equal(b) {
			t.Fatalf("iteration %d: apply(a, diff(a, b)) != b", i)
		}
	}
}

func TestApplyRejectsForeignBase(t *testing.T) {
	a := twoBodies()
	b := a.Clone()
	b.Set(world.EntityIDFromUint64(1), body(1, 0))
	c := a.Clone()
	c.Set(world.EntityIDFromUint64(2), body(5, 6))

	_, err := Apply(c, Diff(a, b, DefaultOptions()))
	if !errors.Is(err, syncerr.ErrDeltaMismatch) {
		t.Fatalf("expected delta mismatch, got %v", err)
	}
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	a := twoBodies()
	b := world.NewSnapshot(0)
	b.Set(world.EntityIDFromUint64(3), world.Sound{})

	before := a.Clone()
	if _, err := Apply(a, Diff(a, b, DefaultOptions())); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !a.Equal(before) {
		t.Fatalf("base snapshot was modified")
	}
}

func TestApplyRejectsStructuralConflicts(t *testing.T) {
	base := twoBodies()
	fp := base.Fingerprint()
	existing := world.EntityIDFromUint64(1)
	missing := world.EntityIDFromUint64(99)

	cases := map[string]Delta{
		"insert existing": {BaseFingerprint: fp, Ops: []Op{{Kind: OpInsert, ID: existing, State: body(0, 0)}}},
		"remove missing":  {BaseFingerprint: fp, Ops: []Op{{Kind: OpRemove, ID: missing}}},
		"update missing": {BaseFingerprint: fp, Ops: []Op{{Kind: OpUpdate, ID: missing, Patch: FieldPatch{
			EntityKind: world.KindRigidBody,
			Fields:     []FieldValue{{Index: world.RigidBodyRotation, Value: world.F32Value(1)}},
		}}}},
		"update wrong kind": {BaseFingerprint: fp, Ops: []Op{{Kind: OpUpdate, ID: existing, Patch: FieldPatch{
			EntityKind: world.KindSound,
			Fields:     []FieldValue{{Index: world.SoundVolume, Value: world.F32Value(1)}},
		}}}},
		"update wrong type": {BaseFingerprint: fp, Ops: []Op{{Kind: OpUpdate, ID: existing, Patch: FieldPatch{
			EntityKind: world.KindRigidBody,
			Fields:     []FieldValue{{Index: world.RigidBodyRotation, Value: world.BoolValue(true)}},
		}}}},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Apply(base, d); !errors.Is(err, syncerr.ErrDeltaMismatch) {
				t.Fatalf("expected delta mismatch, got %v", err)
			}
		})
	}
}

func TestEncodingIsByteStable(t *testing.T) {
	prev := twoBodies()
	next := prev.Clone()
	next.Set(world.EntityIDFromUint64(1), body(1, 0))
	next.Set(world.EntityIDFromUint64(5), world.Sound{FilePath: "hit.wav"})

	reordered := world.NewSnapshot(0)
	for _, n := range []uint64{5, 2, 1} {
		entity, _ := next.Get(world.EntityIDFromUint64(n))
		reordered.Set(world.EntityIDFromUint64(n), entity)
	}

	first := Encode(Diff(prev, next, DefaultOptions()))
	second := Encode(Diff(prev, reordered, DefaultOptions()))
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical delta bytes")
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	prev := twoBodies()
	next := prev.Clone()
	next.Set(world.EntityIDFromUint64(1), body(1, 0))
	valid := Encode(Diff(prev, next, DefaultOptions()))

	// header(2) + fingerprint(8) + count(1) + op kind(1) + id(16) + entity kind(1) + field count(1)
	const fieldCountOffset = 2 + 8 + 1 + 1 + 16 + 1
	zeroFields := append([]byte(nil), valid...)
	zeroFields[fieldCountOffset] = 0
	badIndex := append([]byte(nil), valid...)
	badIndex[fieldCountOffset+1] = 40
	badOp := append([]byte(nil), valid...)
	badOp[11] = 9

	cases := map[string][]byte{
		"empty":         nil,
		"bad magic":     append([]byte{0}, valid[1:]...),
		"truncated":     valid[:len(valid)-1],
		"trailing":      append(append([]byte(nil), valid...), 0),
		"zero fields":   zeroFields,
		"bad index":     badIndex,
		"unknown op":    badOp,
		"huge op count": {deltaMagic, deltaVersion, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 0x03},
		"duplicate ids": duplicateRemoves(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(data); !errors.Is(err, syncerr.ErrCorruptData) {
				t.Fatalf("expected corrupt data, got %v", err)
			}
		})
	}
}

func duplicateRemoves() []byte {
	id := world.EntityIDFromUint64(1)
	return Encode(Delta{Ops: []Op{{Kind: OpRemove, ID: id}, {Kind: OpRemove, ID: id}}})
}
