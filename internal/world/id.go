package world

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// EntityID is the stable 128-bit identity assigned when an entity is created.
// IDs are never reused and order numerically by their big-endian bytes.
type EntityID [16]byte

// NewEntityID allocates a random identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.New())
}

// EntityIDFromUint64 builds a small deterministic identifier whose numeric
// order matches n. Fixtures and replay tooling rely on it.
func EntityIDFromUint64(n uint64) EntityID {
	var id EntityID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}

// ParseEntityID parses the canonical textual form produced by String.
func ParseEntityID(s string) (EntityID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EntityID{}, fmt.Errorf("parse entity id: %w", err)
	}
	return EntityID(parsed), nil
}

func (id EntityID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero identifier, used for "no reference".
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// Compare orders identifiers numerically.
func (id EntityID) Compare(other EntityID) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts before other.
func (id EntityID) Less(other EntityID) bool {
	return id.Compare(other) < 0
}
