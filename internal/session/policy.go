package session

import (
	"fmt"
	"strings"

	"arenasync/internal/syncerr"
)

// Resync reasons recorded by the policy.
const (
	ReasonAckTimeout    = "ack_timeout"
	ReasonPeerMismatch  = "peer_mismatch"
	ReasonDeltaMismatch = "delta_mismatch"
	ReasonMissingBase   = "missing_base"
)

const resyncReasonLimit = 8

// ResyncReason is one failure that contributed to a resync.
type ResyncReason struct {
	Kind string `json:"kind"`
	Tick uint64 `json:"tick"`
}

// ResyncSignal summarizes the failures collected since the previous resync.
type ResyncSignal struct {
	Failures uint64         `json:"failures"`
	Frames   uint64         `json:"frames"`
	Reasons  []ResyncReason `json:"reasons"`
}

// Summary renders the signal for log lines.
func (s ResyncSignal) Summary() string {
	if s.Failures == 0 {
		return ""
	}
	kinds := make([]string, 0, len(s.Reasons))
	for _, reason := range s.Reasons {
		kinds = append(kinds, fmt.Sprintf("%s@%d", reason.Kind, reason.Tick))
	}
	return fmt.Sprintf("failures=%d frames=%d reasons=[%s]", s.Failures, s.Frames, strings.Join(kinds, " "))
}

// Err reports the signal as a session desync.
func (s ResyncSignal) Err() error {
	return syncerr.New(syncerr.CodeSessionDesync, "session desync: "+s.Summary())
}

// resyncPolicy accumulates sync failures between resyncs. Any failure arms
// the policy; the session consumes it on its next tick and sends a full
// snapshot instead of retrying deltas.
type resyncPolicy struct {
	frames   uint64
	failures uint64
	pending  bool
	reasons  []ResyncReason
}

func newResyncPolicy() *resyncPolicy {
	return &resyncPolicy{reasons: make([]ResyncReason, 0, resyncReasonLimit)}
}

func (p *resyncPolicy) noteFrame() {
	if p.frames == ^uint64(0) {
		p.frames /= 2
	}
	p.frames++
}

func (p *resyncPolicy) noteFailure(kind string, tick uint64) {
	p.failures++
	if len(p.reasons) < resyncReasonLimit {
		p.reasons = append(p.reasons, ResyncReason{Kind: kind, Tick: tick})
	}
	p.pending = true
}

func (p *resyncPolicy) consume() (ResyncSignal, bool) {
	if !p.pending {
		return ResyncSignal{}, false
	}
	signal := ResyncSignal{
		Failures: p.failures,
		Frames:   p.frames,
		Reasons:  append([]ResyncReason(nil), p.reasons...),
	}
	p.pending = false
	p.frames = 0
	p.failures = 0
	p.reasons = p.reasons[:0]
	return signal, true
}
