package session

import (
	"context"

	"arenasync/internal/codec"
	"arenasync/internal/delta"
	"arenasync/internal/net/frame"
	"arenasync/internal/syncerr"
	"arenasync/internal/world"
	"arenasync/logging/network"
)

// sent is a snapshot the peer has been sent but not yet acknowledged.
type sent struct {
	tick     uint64
	snapshot world.Snapshot
}

type authorityState struct {
	source      Source
	baseline    sent
	hasBaseline bool
	pending     []sent
	// sinceAck counts ticks since the peer's ack last advanced.
	sinceAck int
	// lastFull is the tick of the most recent full snapshot.
	lastFull    uint64
	fullPending bool
}

// NewAuthority creates the sending side of a peer stream. src is sampled once
// per tick that produces a frame.
func NewAuthority(peer string, src Source, cfg Config, deps Deps) *Session {
	s := newSession(RoleAuthority, peer, cfg, deps)
	s.authority.source = src
	return s
}

// Baseline returns the last snapshot the peer acknowledged.
func (s *Session) Baseline() (uint64, world.Snapshot, bool) {
	a := &s.authority
	return a.baseline.tick, a.baseline.snapshot, a.hasBaseline
}

// Pending returns the number of unacknowledged snapshots.
func (s *Session) Pending() int {
	return len(s.authority.pending)
}

func (s *Session) authorityTick(ctx context.Context, tick uint64) (frame.Frame, bool) {
	a := &s.authority
	switch s.state {
	case StateDesynced:
		s.consumeResync(ctx, len(a.pending), a.baseline.tick)
		a.pending = a.pending[:0]
		a.hasBaseline = false
		a.baseline = sent{}
		return s.sendFull(ctx, tick), true
	case StateAwaitingFull:
		if a.fullPending && tick-a.lastFull < uint64(s.cfg.AckMissThreshold) {
			return frame.Frame{}, false
		}
		return s.sendFull(ctx, tick), true
	default:
		return s.sendDelta(ctx, tick), true
	}
}

func (s *Session) sendFull(ctx context.Context, tick uint64) frame.Frame {
	a := &s.authority
	snap := a.source.Snapshot()
	f := s.emit(frame.KindFull, encodeFull(tick, codec.Encode(snap)))
	s.enqueue(sent{tick: tick, snapshot: snap})
	a.lastFull = tick
	a.fullPending = true
	a.sinceAck = 0
	s.setState(ctx, StateAwaitingFull)
	return f
}

// sendDelta diffs against the acknowledged baseline, never the last frame
// sent, so a lost delta does not invalidate later ones. The pending entry is
// the baseline with the delta applied, which is what the replica will hold:
// fields that moved by less than epsilon keep their baseline value.
func (s *Session) sendDelta(ctx context.Context, tick uint64) frame.Frame {
	a := &s.authority
	snap := a.source.Snapshot()
	d := delta.Diff(a.baseline.snapshot, snap, s.cfg.diffOptions())
	f := s.emit(frame.KindDelta, encodeDelta(tick, a.baseline.tick, delta.Encode(d)))
	next, err := delta.Apply(a.baseline.snapshot, d)
	if err != nil {
		// The replica will fail on this delta too; resync on the next tick.
		s.enqueue(sent{tick: tick, snapshot: snap})
		s.desync(ctx, ReasonDeltaMismatch, tick)
		return f
	}
	s.enqueue(sent{tick: tick, snapshot: next})

	a.sinceAck++
	if a.sinceAck >= s.cfg.AckMissThreshold {
		s.desync(ctx, ReasonAckTimeout, tick)
	}
	return f
}

// enqueue appends to the pending queue, evicting the oldest entry when full.
func (s *Session) enqueue(entry sent) {
	a := &s.authority
	if len(a.pending) >= s.cfg.PendingCapacity {
		copy(a.pending, a.pending[1:])
		a.pending = a.pending[:len(a.pending)-1]
	}
	a.pending = append(a.pending, entry)
}

func (s *Session) authorityReceive(ctx context.Context, f frame.Frame, payload []byte) error {
	msg, err := decodeAck(payload)
	if err != nil {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropCorrupt, err)
		return err
	}
	if msg.Resync {
		if s.state != StateDesynced {
			s.desync(ctx, ReasonPeerMismatch, msg.Tick)
		}
		return syncerr.Newf(syncerr.CodeSessionDesync, "peer %s requested resync after tick %d", s.peer, msg.Tick)
	}
	if s.state == StateDesynced {
		return nil
	}

	a := &s.authority
	if a.hasBaseline && msg.Tick <= a.baseline.tick {
		if msg.Tick < a.baseline.tick {
			network.AckRegression(ctx, s.pub, s.tick, s.actor, network.AckPayload{Previous: a.baseline.tick, Ack: msg.Tick}, nil)
		}
		return nil
	}

	idx := -1
	for i, entry := range a.pending {
		if entry.tick == msg.Tick {
			idx = i
			break
		}
	}
	if idx < 0 {
		err := syncerr.Newf(syncerr.CodeFrame, "ack for unknown tick %d", msg.Tick)
		s.drop(ctx, f.Sequence, f.Kind.String(), DropUnknownAck, err)
		return err
	}

	previous := a.baseline.tick
	a.baseline = a.pending[idx]
	a.hasBaseline = true
	a.pending = append(a.pending[:0], a.pending[idx+1:]...)
	a.sinceAck = 0
	network.AckAdvanced(ctx, s.pub, s.tick, s.actor, network.AckPayload{Previous: previous, Ack: msg.Tick}, nil)

	if s.state == StateAwaitingFull {
		a.fullPending = false
		s.setState(ctx, StateSynced)
	}
	return nil
}
