package session

import (
	"context"
	"errors"

	"arenasync/internal/codec"
	"arenasync/internal/delta"
	"arenasync/internal/net/frame"
	"arenasync/internal/syncerr"
	"arenasync/internal/world"
)

type applied struct {
	tick     uint64
	snapshot world.Snapshot
}

type replicaState struct {
	current     world.Snapshot
	currentTick uint64
	hasCurrent  bool
	// history holds applied snapshots in tick order; deltas name their base
	// by tick.
	history []applied

	ackTick    uint64
	ackPending bool
	// lastResyncAck is the local tick the last resync request went out.
	lastResyncAck uint64
	resyncSent    bool
}

// NewReplica creates the receiving side of a peer stream.
func NewReplica(peer string, cfg Config, deps Deps) *Session {
	return newSession(RoleReplica, peer, cfg, deps)
}

// World returns the most recently reconstructed snapshot and its tick. The
// snapshot must not be mutated.
func (s *Session) World() (world.Snapshot, uint64, bool) {
	r := &s.replica
	return r.current, r.currentTick, r.hasCurrent
}

// replicaTick emits at most one ack: a resync request while desynced,
// otherwise an ack for the newest applied tick.
func (s *Session) replicaTick(ctx context.Context, tick uint64) (frame.Frame, bool) {
	r := &s.replica
	if s.state == StateDesynced {
		if r.resyncSent && tick-r.lastResyncAck < uint64(s.cfg.AckMissThreshold) {
			return frame.Frame{}, false
		}
		if !r.resyncSent {
			s.consumeResync(ctx, 0, r.currentTick)
		}
		r.resyncSent = true
		r.lastResyncAck = tick
		r.ackPending = false
		return s.emit(frame.KindAck, encodeAck(ack{Tick: r.currentTick, Resync: true})), true
	}
	if !r.ackPending {
		return frame.Frame{}, false
	}
	r.ackPending = false
	return s.emit(frame.KindAck, encodeAck(ack{Tick: r.ackTick})), true
}

func (s *Session) replicaReceive(ctx context.Context, f frame.Frame, payload []byte) error {
	if f.Kind == frame.KindFull {
		return s.applyFull(ctx, f, payload)
	}
	return s.applyDelta(ctx, f, payload)
}

func (s *Session) applyFull(ctx context.Context, f frame.Frame, payload []byte) error {
	tick, body, err := decodeFull(payload)
	var snap world.Snapshot
	if err == nil {
		snap, err = codec.Decode(body)
	}
	if err != nil {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropCorrupt, err)
		return err
	}

	r := &s.replica
	if r.hasCurrent && tick < r.currentTick {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropStale, nil)
		return nil
	}
	r.history = r.history[:0]
	r.resyncSent = false
	s.accept(tick, snap)
	s.setState(ctx, StateSynced)
	return nil
}

func (s *Session) applyDelta(ctx context.Context, f frame.Frame, payload []byte) error {
	if s.state != StateSynced {
		err := syncerr.Newf(syncerr.CodeDeltaMismatch, "delta received while %s", s.state)
		s.drop(ctx, f.Sequence, f.Kind.String(), DropNotSynced, err)
		return err
	}
	tick, baseTick, body, err := decodeDelta(payload)
	var d delta.Delta
	if err == nil {
		d, err = delta.Decode(body)
	}
	if err != nil {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropCorrupt, err)
		return err
	}

	r := &s.replica
	if tick <= r.currentTick {
		// An older delta than the state already applied; acking it would
		// move the authority's baseline backwards.
		s.drop(ctx, f.Sequence, f.Kind.String(), DropStale, nil)
		return nil
	}
	base, ok := s.historyAt(baseTick)
	if !ok {
		err := syncerr.Newf(syncerr.CodeDeltaMismatch, "base tick %d not in history", baseTick)
		s.drop(ctx, f.Sequence, f.Kind.String(), DropMismatch, err)
		s.desync(ctx, ReasonMissingBase, tick)
		return err
	}
	next, err := delta.Apply(base, d)
	if err != nil {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropMismatch, err)
		if errors.Is(err, syncerr.ErrDeltaMismatch) {
			s.desync(ctx, ReasonDeltaMismatch, tick)
		}
		return err
	}

	s.pruneBefore(baseTick)
	s.accept(tick, next)
	return nil
}

// accept installs snap as the current state and queues its ack.
func (s *Session) accept(tick uint64, snap world.Snapshot) {
	r := &s.replica
	r.current = snap
	r.currentTick = tick
	r.hasCurrent = true
	r.ackTick = tick
	r.ackPending = true
	if len(r.history) >= s.cfg.HistoryCapacity {
		copy(r.history, r.history[1:])
		r.history = r.history[:len(r.history)-1]
	}
	r.history = append(r.history, applied{tick: tick, snapshot: snap})
}

func (s *Session) historyAt(tick uint64) (world.Snapshot, bool) {
	for _, entry := range s.replica.history {
		if entry.tick == tick {
			return entry.snapshot, true
		}
	}
	return world.Snapshot{}, false
}

// pruneBefore discards history older than tick. The authority only diffs
// against acknowledged snapshots and its baseline never moves backwards.
func (s *Session) pruneBefore(tick uint64) {
	r := &s.replica
	keep := 0
	for keep < len(r.history) && r.history[keep].tick < tick {
		keep++
	}
	r.history = append(r.history[:0], r.history[keep:]...)
}
