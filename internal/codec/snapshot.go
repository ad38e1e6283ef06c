// Package codec serializes world snapshots to a canonical binary layout.
// Entities are written in ascending identifier order, so two copies of the
// same logical state always encode to identical bytes.
package codec

import (
	"arenasync/internal/world"
)

const (
	snapshotMagic   = 0xA5
	snapshotVersion = 1

	// minEntitySize is an ID plus a kind tag; the smallest possible record.
	minEntitySize = 17
)

// Encode renders snap in canonical form.
func Encode(snap world.Snapshot) []byte {
	w := NewWriter(8 + snap.Len()*48)
	w.U8(snapshotMagic)
	w.U8(snapshotVersion)
	w.Uvarint(uint64(snap.Len()))
	for _, id := range snap.IDs() {
		entity, _ := snap.Get(id)
		w.ID(id)
		w.Entity(entity)
	}
	return w.Bytes()
}

// Decode parses bytes produced by Encode. Malformed input fails with
// syncerr.CodeCorruptData; identifiers must be strictly ascending.
func Decode(data []byte) (world.Snapshot, error) {
	r := NewReader(data, "snapshot")
	if magic := r.U8(); r.Err() == nil && magic != snapshotMagic {
		r.Fail("bad magic 0x%02x", magic)
	}
	if version := r.U8(); r.Err() == nil && version != snapshotVersion {
		r.Fail("unsupported version %d", version)
	}
	count := r.Uvarint()
	if r.Err() != nil {
		return world.Snapshot{}, r.Err()
	}
	if count > uint64(r.Remaining()/minEntitySize) {
		r.Fail("entity count %d exceeds remaining %d bytes", count, r.Remaining())
		return world.Snapshot{}, r.Err()
	}

	snap := world.NewSnapshot(int(count))
	var prev world.EntityID
	for i := uint64(0); i < count; i++ {
		id := r.ID()
		if r.Err() == nil && i > 0 && !prev.Less(id) {
			r.Fail("entity %s out of order after %s", id, prev)
		}
		entity := r.Entity()
		if r.Err() != nil {
			return world.Snapshot{}, r.Err()
		}
		snap.Set(id, entity)
		prev = id
	}
	if err := r.Finish(); err != nil {
		return world.Snapshot{}, err
	}
	return snap, nil
}
