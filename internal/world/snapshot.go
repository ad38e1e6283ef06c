// Package world models the synchronized game state: an arena of entities
// keyed by stable identifiers, with cross-entity relations expressed only as
// identifier references.
package world

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is the complete entity state at one tick. Snapshots handed between
// components are treated as immutable; mutate a Clone instead.
type Snapshot struct {
	entities map[EntityID]Entity
}

// NewSnapshot returns an empty snapshot with room for capacity entities.
func NewSnapshot(capacity int) Snapshot {
	if capacity < 0 {
		capacity = 0
	}
	return Snapshot{entities: make(map[EntityID]Entity, capacity)}
}

// Set stores the state for id. A nil entity deletes id.
func (s *Snapshot) Set(id EntityID, entity Entity) {
	if entity == nil {
		s.Delete(id)
		return
	}
	if s.entities == nil {
		s.entities = make(map[EntityID]Entity)
	}
	s.entities[id] = entity
}

// Delete removes id when present.
func (s *Snapshot) Delete(id EntityID) {
	delete(s.entities, id)
}

// Get returns the state for id.
func (s Snapshot) Get(id EntityID) (Entity, bool) {
	entity, ok := s.entities[id]
	return entity, ok
}

// Has reports whether id exists at this tick.
func (s Snapshot) Has(id EntityID) bool {
	_, ok := s.entities[id]
	return ok
}

// Len returns the number of entities.
func (s Snapshot) Len() int {
	return len(s.entities)
}

// IDs returns every identifier in ascending order.
func (s Snapshot) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, EntityID.Compare)
	return ids
}

// Clone returns an independent copy. Entities are value types, so copying the
// map is enough.
func (s Snapshot) Clone() Snapshot {
	cloned := NewSnapshot(len(s.entities))
	for id, entity := range s.entities {
		cloned.entities[id] = entity
	}
	return cloned
}

// Equal reports whether both snapshots hold exactly the same entities.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.entities) != len(other.entities) {
		return false
	}
	for id, entity := range s.entities {
		theirs, ok := other.entities[id]
		if !ok || !EntitiesEqual(entity, theirs, 0) {
			return false
		}
	}
	return true
}

// EntitiesEqual compares two entity states field by field.
func EntitiesEqual(a, b Entity, epsilon float64) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	left, right := a.Fields(), b.Fields()
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if !left[i].Equal(right[i], epsilon) {
			return false
		}
	}
	return true
}

// Fingerprint hashes the snapshot in identifier order over the raw field
// bits, so it does not depend on the order entities were inserted.
func (s Snapshot) Fingerprint() uint64 {
	digest := xxhash.New()
	var scratch [16]byte
	binary.LittleEndian.PutUint64(scratch[:8], uint64(len(s.entities)))
	digest.Write(scratch[:8])
	for _, id := range s.IDs() {
		entity := s.entities[id]
		digest.Write(id[:])
		digest.Write([]byte{byte(entity.Kind())})
		for _, value := range entity.Fields() {
			hashValue(digest, value, scratch[:])
		}
	}
	return digest.Sum64()
}

func hashValue(digest *xxhash.Digest, value Value, scratch []byte) {
	switch value.Type {
	case ValueF32:
		binary.LittleEndian.PutUint32(scratch, math.Float32bits(value.F32))
		digest.Write(scratch[:4])
	case ValueVec2:
		binary.LittleEndian.PutUint32(scratch, math.Float32bits(value.Vec2.X))
		binary.LittleEndian.PutUint32(scratch[4:], math.Float32bits(value.Vec2.Y))
		digest.Write(scratch[:8])
	case ValueU8:
		digest.Write([]byte{value.U8})
	case ValueU32:
		binary.LittleEndian.PutUint32(scratch, value.U32)
		digest.Write(scratch[:4])
	case ValueBool:
		if value.Bool {
			digest.Write([]byte{1})
		} else {
			digest.Write([]byte{0})
		}
	case ValueString:
		binary.LittleEndian.PutUint32(scratch, uint32(len(value.Str)))
		digest.Write(scratch[:4])
		digest.WriteString(value.Str)
	case ValueID:
		digest.Write(value.ID[:])
	}
}
