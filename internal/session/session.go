// Package session implements the per-peer synchronization state machine.
//
// An authority session sends full snapshots and deltas of a Source and
// consumes acks; a replica session applies them and produces acks. A Session
// is owned by a single host loop and is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"

	"arenasync/internal/compress"
	"arenasync/internal/net/frame"
	"arenasync/internal/syncerr"
	"arenasync/internal/world"
	"arenasync/logging"
	"arenasync/logging/network"
)

// Role selects which half of the protocol a session speaks.
type Role uint8

const (
	RoleAuthority Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "replica"
}

// State is the sync state of a session.
type State uint8

const (
	// StateAwaitingFull means no baseline has been acknowledged (authority)
	// or applied (replica) yet.
	StateAwaitingFull State = iota
	// StateSynced means deltas flow against an agreed baseline.
	StateSynced
	// StateDesynced means a mismatch or ack timeout was detected and the
	// next step is a full resync.
	StateDesynced
)

func (s State) String() string {
	switch s {
	case StateAwaitingFull:
		return "awaiting_full"
	case StateSynced:
		return "synced"
	case StateDesynced:
		return "desynced"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Source provides the authoritative world each tick.
type Source interface {
	Snapshot() world.Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() world.Snapshot

func (f SourceFunc) Snapshot() world.Snapshot {
	return f()
}

// Telemetry receives traffic statistics.
type Telemetry interface {
	RecordFrameSent(kind frame.Kind, bytes int)
	RecordFrameReceived(kind frame.Kind, bytes int)
	RecordFrameDropped(reason string)
	RecordResync(reason string)
}

type nopTelemetry struct{}

func (nopTelemetry) RecordFrameSent(frame.Kind, int) {}
func (nopTelemetry) RecordFrameReceived(frame.Kind, int) {}
func (nopTelemetry) RecordFrameDropped(string) {}
func (nopTelemetry) RecordResync(string) {}

// Deps carries a session's collaborators. Nil members are replaced with
// no-op implementations.
type Deps struct {
	Publisher logging.Publisher
	Telemetry Telemetry
}

// Drop reasons reported through logging and telemetry.
const (
	DropStale          = "stale"
	DropDuplicate      = "duplicate"
	DropUnexpectedKind = "unexpected_kind"
	DropFrameError     = "frame_error"
	DropDecompress     = "decompression_error"
	DropCorrupt        = "corrupt_data"
	DropNotSynced      = "not_synced"
	DropMismatch       = "delta_mismatch"
	DropUnknownAck     = "unknown_ack"
)

// Session is the sync state for one peer stream.
type Session struct {
	role    Role
	peer    string
	cfg     Config
	pub     logging.Publisher
	metrics Telemetry
	actor   logging.EntityRef
	policy  *resyncPolicy

	state   State
	tick    uint64
	nextSeq uint64
	inbound reorderBuffer
	closed  bool

	lastResync    ResyncSignal
	resyncCount   uint64
	framesDropped uint64

	authority authorityState
	replica   replicaState
}

func newSession(role Role, peer string, cfg Config, deps Deps) *Session {
	cfg = cfg.Normalize()
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = nopTelemetry{}
	}
	return &Session{
		role:    role,
		peer:    peer,
		cfg:     cfg,
		pub:     deps.Publisher,
		metrics: deps.Telemetry,
		actor:   logging.PeerRef(peer),
		policy:  newResyncPolicy(),
		state:   StateAwaitingFull,
		inbound: newReorderBuffer(cfg.ReorderWindow),
	}
}

func (s *Session) Role() Role { return s.role }
func (s *Session) Peer() string { return s.peer }
func (s *Session) State() State { return s.state }
func (s *Session) Config() Config { return s.cfg }

// Tick returns the next local tick number; it starts at zero and advances
// once per OnTick.
func (s *Session) Tick() uint64 { return s.tick }

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed }

// LastResync returns the signal that caused the most recent resync.
func (s *Session) LastResync() (ResyncSignal, bool) {
	return s.lastResync, s.resyncCount > 0
}

// Close stops all further frame production. Inbound frames are ignored.
func (s *Session) Close() {
	s.closed = true
	s.inbound.reset()
}

// OnTick advances the local tick and returns the frame to send, if any.
func (s *Session) OnTick(ctx context.Context) (frame.Frame, bool) {
	if s.closed {
		return frame.Frame{}, false
	}
	tick := s.tick
	s.tick++
	if s.role == RoleAuthority {
		return s.authorityTick(ctx, tick)
	}
	return s.replicaTick(ctx, tick)
}

// OnBytesReceived parses raw socket bytes and forwards the frame. A parse
// failure drops the bytes without touching session state.
func (s *Session) OnBytesReceived(ctx context.Context, data []byte) error {
	f, err := frame.Parse(data)
	if err != nil {
		s.drop(ctx, 0, "", DropFrameError, err)
		return err
	}
	return s.OnFrameReceived(ctx, f)
}

// OnFrameReceived processes f in sequence order. Stale and duplicate frames
// are dropped, near-future frames are buffered, and a frame beyond the
// reorder window declares the gap lost. The returned error describes a
// dropped frame; the session has already recovered from it.
func (s *Session) OnFrameReceived(ctx context.Context, f frame.Frame) error {
	if s.closed {
		return nil
	}
	next := s.inbound.expected()
	switch {
	case f.Sequence < next:
		s.drop(ctx, f.Sequence, f.Kind.String(), DropStale, nil)
		return nil
	case f.Sequence == next:
		err := s.process(ctx, f)
		s.inbound.advance(f.Sequence)
		return errors.Join(err, s.drainReady(ctx))
	case s.inbound.fits(f.Sequence):
		if !s.inbound.push(f) {
			s.drop(ctx, f.Sequence, f.Kind.String(), DropDuplicate, nil)
		}
		return nil
	default:
		return s.skipGap(ctx, f)
	}
}

// skipGap handles a frame beyond the reorder window: buffered frames are
// processed in order, then f itself, and everything missing in between is
// treated as lost.
func (s *Session) skipGap(ctx context.Context, f frame.Frame) error {
	var errs []error
	for _, buffered := range s.inbound.flush() {
		errs = append(errs, s.resume(ctx, buffered))
	}
	errs = append(errs, s.resume(ctx, f))
	return errors.Join(errs...)
}

func (s *Session) resume(ctx context.Context, f frame.Frame) error {
	if expected := s.inbound.expected(); f.Sequence > expected {
		network.SequenceGap(ctx, s.pub, s.tick, s.actor, network.GapPayload{Expected: expected, Resumed: f.Sequence}, nil)
	}
	err := s.process(ctx, f)
	s.inbound.advance(f.Sequence)
	return err
}

func (s *Session) drainReady(ctx context.Context) error {
	var errs []error
	for {
		f, ok := s.inbound.popReady()
		if !ok {
			return errors.Join(errs...)
		}
		errs = append(errs, s.process(ctx, f))
		s.inbound.advance(f.Sequence)
	}
}

// process decodes one in-order frame and dispatches it to the role.
func (s *Session) process(ctx context.Context, f frame.Frame) error {
	s.metrics.RecordFrameReceived(f.Kind, f.Size())
	s.policy.noteFrame()

	if !s.accepts(f.Kind) {
		err := syncerr.Newf(syncerr.CodeFrame, "%s session cannot accept %s frames", s.role, f.Kind)
		s.drop(ctx, f.Sequence, f.Kind.String(), DropUnexpectedKind, err)
		return err
	}
	payload, err := compress.Decompress(f.Payload, int(f.UncompressedLen))
	if err != nil {
		s.drop(ctx, f.Sequence, f.Kind.String(), DropDecompress, err)
		return err
	}
	if s.role == RoleAuthority {
		return s.authorityReceive(ctx, f, payload)
	}
	return s.replicaReceive(ctx, f, payload)
}

func (s *Session) accepts(kind frame.Kind) bool {
	if s.role == RoleAuthority {
		return kind == frame.KindAck
	}
	return kind == frame.KindFull || kind == frame.KindDelta
}

// emit compresses payload into the next outbound frame.
func (s *Session) emit(kind frame.Kind, payload []byte) frame.Frame {
	f := frame.New(kind, s.nextSeq, len(payload), compress.Compress(payload))
	s.nextSeq++
	s.metrics.RecordFrameSent(kind, f.Size())
	return f
}

func (s *Session) setState(ctx context.Context, next State) {
	if s.state == next {
		return
	}
	network.StateChanged(ctx, s.pub, s.tick, s.actor, network.StatePayload{From: s.state.String(), To: next.String()}, nil)
	s.state = next
}

// desync records a failure with the resync policy and moves to Desynced.
func (s *Session) desync(ctx context.Context, reason string, tick uint64) {
	s.policy.noteFailure(reason, tick)
	s.setState(ctx, StateDesynced)
}

// consumeResync reports and clears an armed resync.
func (s *Session) consumeResync(ctx context.Context, pending int, baseline uint64) (ResyncSignal, bool) {
	signal, ok := s.policy.consume()
	if !ok {
		return signal, false
	}
	reason := ReasonAckTimeout
	if len(signal.Reasons) > 0 {
		reason = signal.Reasons[0].Kind
	}
	s.lastResync = signal
	s.resyncCount++
	s.metrics.RecordResync(reason)
	network.ResyncScheduled(ctx, s.pub, s.tick, s.actor, network.ResyncPayload{
		Reason:   reason,
		Pending:  pending,
		Baseline: baseline,
	}, map[string]any{"summary": signal.Summary()})
	return signal, true
}

func (s *Session) drop(ctx context.Context, seq uint64, kind, reason string, err error) {
	s.framesDropped++
	s.metrics.RecordFrameDropped(reason)
	payload := network.DropPayload{Sequence: seq, Kind: kind, Reason: reason}
	if err != nil {
		payload.Error = err.Error()
	}
	network.FrameDropped(ctx, s.pub, s.tick, s.actor, payload, nil)
}

// Stats is a point-in-time view of a session for diagnostics.
type Stats struct {
	Peer          string `json:"peer"`
	Role          string `json:"role"`
	State         string `json:"state"`
	Tick          uint64 `json:"tick"`
	NextSequence  uint64 `json:"nextSequence"`
	Expected      uint64 `json:"expectedSequence"`
	Buffered      int    `json:"buffered"`
	Pending       int    `json:"pending"`
	Baseline      uint64 `json:"baseline"`
	HasBaseline   bool   `json:"hasBaseline"`
	Entities      int    `json:"entities"`
	Resyncs       uint64 `json:"resyncs"`
	FramesDropped uint64 `json:"framesDropped"`
}

func (s *Session) Stats() Stats {
	stats := Stats{
		Peer:          s.peer,
		Role:          s.role.String(),
		State:         s.state.String(),
		Tick:          s.tick,
		NextSequence:  s.nextSeq,
		Expected:      s.inbound.expected(),
		Buffered:      s.inbound.len(),
		Resyncs:       s.resyncCount,
		FramesDropped: s.framesDropped,
	}
	if s.role == RoleAuthority {
		stats.Pending = len(s.authority.pending)
		stats.Baseline, stats.HasBaseline = s.authority.baseline.tick, s.authority.hasBaseline
		if s.authority.hasBaseline {
			stats.Entities = s.authority.baseline.snapshot.Len()
		}
	} else {
		stats.Baseline, stats.HasBaseline = s.replica.currentTick, s.replica.hasCurrent
		stats.Entities = s.replica.current.Len()
	}
	return stats
}
