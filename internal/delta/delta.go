// Package delta computes and applies field-level differences between two
// world snapshots.
package delta

import (
	"fmt"

	"arenasync/internal/syncerr"
	"arenasync/internal/world"
)

// DefaultEpsilon is the float tolerance used when Options leaves it unset.
const DefaultEpsilon = 1e-6

// OpKind identifies a delta operation. The values are written on the wire.
type OpKind uint8

const (
	OpInsert OpKind = 1
	OpRemove OpKind = 2
	OpUpdate OpKind = 3
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// FieldValue replaces a single field of an entity.
type FieldValue struct {
	Index uint8
	Value world.Value
}

// FieldPatch lists the changed fields of one entity in ascending index order.
type FieldPatch struct {
	EntityKind world.Kind
	Fields     []FieldValue
}

// Op is one operation over an identifier. State is set for inserts and Patch
// for updates.
type Op struct {
	Kind  OpKind
	ID    world.EntityID
	State world.Entity
	Patch FieldPatch
}

// Delta transforms the snapshot whose fingerprint is BaseFingerprint into the
// next one. Ops are sorted by identifier.
type Delta struct {
	BaseFingerprint uint64
	Ops             []Op
}

// Empty reports whether the delta carries no operations.
func (d Delta) Empty() bool {
	return len(d.Ops) == 0
}

// Counts tallies the operations by kind.
func (d Delta) Counts() (inserts, removes, updates int) {
	for _, op := range d.Ops {
		switch op.Kind {
		case OpInsert:
			inserts++
		case OpRemove:
			removes++
		case OpUpdate:
			updates++
		}
	}
	return inserts, removes, updates
}

// Options tunes Diff.
type Options struct {
	// Epsilon is the tolerance for float fields. Negative values mean exact
	// comparison; zero selects DefaultEpsilon.
	Epsilon float64
}

// DefaultOptions returns the standard diff options.
func DefaultOptions() Options {
	return Options{Epsilon: DefaultEpsilon}
}

func (o Options) epsilon() float64 {
	switch {
	case o.Epsilon < 0:
		return 0
	case o.Epsilon == 0:
		return DefaultEpsilon
	default:
		return o.Epsilon
	}
}

// Diff computes the operations that turn prev into next. Entities whose kind
// changed are removed and re-inserted under the same identifier.
func Diff(prev, next world.Snapshot, opts Options) Delta {
	eps := opts.epsilon()
	out := Delta{BaseFingerprint: prev.Fingerprint()}

	oldIDs, newIDs := prev.IDs(), next.IDs()
	i, j := 0, 0
	for i < len(oldIDs) || j < len(newIDs) {
		switch {
		case j == len(newIDs) || (i < len(oldIDs) && oldIDs[i].Less(newIDs[j])):
			out.Ops = append(out.Ops, Op{Kind: OpRemove, ID: oldIDs[i]})
			i++
		case i == len(oldIDs) || newIDs[j].Less(oldIDs[i]):
			state, _ := next.Get(newIDs[j])
			out.Ops = append(out.Ops, Op{Kind: OpInsert, ID: newIDs[j], State: state})
			j++
		default:
			id := oldIDs[i]
			before, _ := prev.Get(id)
			after, _ := next.Get(id)
			out.Ops = appendChange(out.Ops, id, before, after, eps)
			i++
			j++
		}
	}
	return out
}

func appendChange(ops []Op, id world.EntityID, before, after world.Entity, eps float64) []Op {
	if before.Kind() != after.Kind() {
		return append(ops,
			Op{Kind: OpRemove, ID: id},
			Op{Kind: OpInsert, ID: id, State: after},
		)
	}
	oldFields, newFields := before.Fields(), after.Fields()
	var changed []FieldValue
	for idx := range newFields {
		if !oldFields[idx].Equal(newFields[idx], eps) {
			changed = append(changed, FieldValue{Index: uint8(idx), Value: newFields[idx]})
		}
	}
	if len(changed) == 0 {
		return ops
	}
	return append(ops, Op{
		Kind:  OpUpdate,
		ID:    id,
		Patch: FieldPatch{EntityKind: after.Kind(), Fields: changed},
	})
}

// Apply returns base transformed by d. The base fingerprint is checked before
// anything else; base itself is never modified.
func Apply(base world.Snapshot, d Delta) (world.Snapshot, error) {
	if got := base.Fingerprint(); got != d.BaseFingerprint {
		return world.Snapshot{}, syncerr.Newf(syncerr.CodeDeltaMismatch,
			"base fingerprint %016x does not match delta base %016x", got, d.BaseFingerprint)
	}

	next := base.Clone()
	for n, op := range d.Ops {
		if err := applyOp(&next, op); err != nil {
			return world.Snapshot{}, syncerr.Wrap(syncerr.CodeDeltaMismatch,
				fmt.Sprintf("apply op %d (%s %s)", n, op.Kind, op.ID), err)
		}
	}
	return next, nil
}

func applyOp(snap *world.Snapshot, op Op) error {
	switch op.Kind {
	case OpInsert:
		if op.State == nil {
			return fmt.Errorf("insert without state")
		}
		if snap.Has(op.ID) {
			return fmt.Errorf("entity already exists")
		}
		snap.Set(op.ID, op.State)
	case OpRemove:
		if !snap.Has(op.ID) {
			return fmt.Errorf("entity does not exist")
		}
		snap.Delete(op.ID)
	case OpUpdate:
		current, ok := snap.Get(op.ID)
		if !ok {
			return fmt.Errorf("entity does not exist")
		}
		if current.Kind() != op.Patch.EntityKind {
			return fmt.Errorf("patch for %s applied to %s", op.Patch.EntityKind, current.Kind())
		}
		var err error
		for _, field := range op.Patch.Fields {
			current, err = current.WithField(int(field.Index), field.Value)
			if err != nil {
				return err
			}
		}
		snap.Set(op.ID, current)
	default:
		return fmt.Errorf("unknown op kind %d", uint8(op.Kind))
	}
	return nil
}
