package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"arenasync/internal/syncerr"
	"arenasync/internal/world"
)

func fixtureSnapshot() world.Snapshot {
	snap := world.NewSnapshot(3)
	snap.Set(world.EntityIDFromUint64(1), world.RigidBody{
		Position:        world.Vec2{X: 1.5, Y: -2},
		Velocity:        world.Vec2{X: 0.25, Y: 9.81},
		Rotation:        3.14,
		AngularVelocity: -0.5,
		BodyType:        world.BodyKinematicVelocity,
		Owner:           "player-1",
		Collider:        world.EntityIDFromUint64(2),
	})
	snap.Set(world.EntityIDFromUint64(2), world.Collider{
		HalfX: 16, HalfY: 8, Restitution: 0.2, Mass: 70,
		Owner: "player-1", CollisionGroups: 0b0011, CollisionFilter: 0xFFFF,
	})
	snap.Set(world.EntityIDFromUint64(3), world.Sound{
		Position: world.Vec2{X: 4}, Volume: 0.75, Playing: true,
		FilePath: "sfx/jump.wav", Owner: "player-1",
	})
	return snap
}

func randomSnapshot(rng *rand.Rand, n int) world.Snapshot {
	snap := world.NewSnapshot(n)
	for i := 0; i < n; i++ {
		id := world.EntityIDFromUint64(rng.Uint64())
		switch rng.Intn(3) {
		case 0:
			snap.Set(id, world.RigidBody{
				Position: world.Vec2{X: rng.Float32() * 800, Y: rng.Float32() * 600},
				Velocity: world.Vec2{X: rng.Float32(), Y: rng.Float32()},
				Rotation: rng.Float32(),
				BodyType: world.BodyType(rng.Intn(4)),
				Owner:    "owner",
			})
		case 1:
			snap.Set(id, world.Collider{HalfX: rng.Float32(), Mass: rng.Float32(), CollisionGroups: rng.Uint32()})
		default:
			snap.Set(id, world.Sound{Volume: rng.Float32(), Playing: rng.Intn(2) == 0, FilePath: "a.wav"})
		}
	}
	return snap
}

func TestRoundTrip(t *testing.T) {
	snap := fixtureSnapshot()
	decoded, err := Decode(Encode(snap))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(snap) {
		t.Fatalf("round trip mismatch")
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		snap := randomSnapshot(rng, rng.Intn(40))
		decoded, err := Decode(Encode(snap))
		if err != nil {
			t.Fatalf("iteration %d: decode: %v", i, err)
		}
		if !decoded.Equal(snap) {
			t.Fatalf("iteration %d: round trip mismatch", i)
		}
	}
}

func TestEmptySnapshotRoundTrip(t *testing.T) {
	decoded, err := Decode(Encode(world.Snapshot{}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Len() != 0 {
		t.Fatalf("expected empty snapshot, got %d entities", decoded.Len())
	}
}

func TestEncodingIsIndependentOfInsertionOrder(t *testing.T) {
	reference := fixtureSnapshot()

	reordered := world.NewSnapshot(0)
	ids := reference.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		entity, _ := reference.Get(ids[i])
		reordered.Set(ids[i], entity)
	}

	if !bytes.Equal(Encode(reference), Encode(reordered)) {
		t.Fatalf("expected byte-identical encodings")
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	valid := Encode(fixtureSnapshot())

	unknownTag := append([]byte(nil), valid...)
	unknownTag[3+16] = 0x7F

	outOfOrder := NewWriter(64)
	outOfOrder.U8(snapshotMagic)
	outOfOrder.U8(snapshotVersion)
	outOfOrder.Uvarint(2)
	outOfOrder.ID(world.EntityIDFromUint64(5))
	outOfOrder.Entity(world.Sound{})
	outOfOrder.ID(world.EntityIDFromUint64(5))
	outOfOrder.Entity(world.Sound{})

	hugeString := NewWriter(64)
	hugeString.U8(snapshotMagic)
	hugeString.U8(snapshotVersion)
	hugeString.Uvarint(1)
	hugeString.ID(world.EntityIDFromUint64(1))
	hugeString.U8(uint8(world.KindSound))
	hugeString.F32(0)
	hugeString.F32(0)
	hugeString.F32(1)
	hugeString.Bool(true)
	hugeString.Uvarint(1 << 40)

	badBody := world.NewSnapshot(1)
	badBody.Set(world.EntityIDFromUint64(1), world.RigidBody{BodyType: world.BodyType(9)})

	cases := map[string][]byte{
		"empty":          nil,
		"bad magic":      {0x00, snapshotVersion, 0},
		"bad version":    {snapshotMagic, 9, 0},
		"truncated":      valid[:len(valid)-3],
		"trailing bytes": append(append([]byte(nil), valid...), 0x01),
		"huge count":     {snapshotMagic, snapshotVersion, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F},
		"unknown tag":    unknownTag,
		"duplicate id":   outOfOrder.Bytes(),
		"huge string":    hugeString.Bytes(),
		"bad body type":  Encode(badBody),
		"bad varint":     {snapshotMagic, snapshotVersion, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01},
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, syncerr.ErrCorruptData) {
				t.Fatalf("expected corrupt data, got %v", err)
			}
		})
	}
}

func TestDecodeNeverPanicsOnTruncation(t *testing.T) {
	valid := Encode(fixtureSnapshot())
	for i := 0; i < len(valid); i++ {
		if _, err := Decode(valid[:i]); err == nil {
			t.Fatalf("prefix of length %d decoded without error", i)
		}
	}
}
