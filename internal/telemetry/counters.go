// Package telemetry holds the process-wide counters surfaced on the
// diagnostics endpoint.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"arenasync/internal/net/frame"
)

const kindCount = int(frame.KindAck) + 1

// Counters aggregates traffic statistics across every session. All methods
// are safe for concurrent use.
type Counters struct {
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	framesSent     [kindCount]atomic.Uint64
	framesReceived [kindCount]atomic.Uint64
	framesDropped  atomic.Uint64
	resyncs        atomic.Uint64
	tickMicros     atomic.Int64
	lastTickBytes  atomic.Uint64
	tickBytes      atomic.Uint64
	sessions       atomic.Int64

	mu          sync.Mutex
	dropReasons map[string]uint64

	debug  bool
	logger Logger
}

// Snapshot is the JSON form of Counters.
type Snapshot struct {
	BytesSent      uint64            `json:"bytesSent"`
	BytesReceived  uint64            `json:"bytesReceived"`
	FullSent       uint64            `json:"fullSent"`
	DeltaSent      uint64            `json:"deltaSent"`
	AckSent        uint64            `json:"ackSent"`
	FullReceived   uint64            `json:"fullReceived"`
	DeltaReceived  uint64            `json:"deltaReceived"`
	AckReceived    uint64            `json:"ackReceived"`
	FramesDropped  uint64            `json:"framesDropped"`
	DropReasons    map[string]uint64 `json:"dropReasons,omitempty"`
	Resyncs        uint64            `json:"resyncs"`
	TickMicros     int64             `json:"tickMicros"`
	LastTickBytes  uint64            `json:"lastTickBytes"`
	ActiveSessions int64             `json:"activeSessions"`
}

// NewCounters returns zeroed counters. When debug is set, every recorded tick
// prints a one-line summary to logger.
func NewCounters(debug bool, logger Logger) *Counters {
	if logger == nil {
		logger = LoggerFunc(nil)
	}
	return &Counters{debug: debug, logger: logger, dropReasons: make(map[string]uint64)}
}

func (c *Counters) RecordFrameSent(kind frame.Kind, bytes int) {
	if !kind.Valid() || bytes < 0 {
		return
	}
	c.framesSent[kind].Add(1)
	c.bytesSent.Add(uint64(bytes))
	c.tickBytes.Add(uint64(bytes))
}

func (c *Counters) RecordFrameReceived(kind frame.Kind, bytes int) {
	if !kind.Valid() || bytes < 0 {
		return
	}
	c.framesReceived[kind].Add(1)
	c.bytesReceived.Add(uint64(bytes))
}

func (c *Counters) RecordFrameDropped(reason string) {
	c.framesDropped.Add(1)
	c.mu.Lock()
	c.dropReasons[reason]++
	c.mu.Unlock()
}

func (c *Counters) RecordResync(string) {
	c.resyncs.Add(1)
}

// SetSessions records the number of live sessions.
func (c *Counters) SetSessions(n int) {
	c.sessions.Store(int64(n))
}

// RecordTick closes out one host tick.
func (c *Counters) RecordTick(duration time.Duration) {
	micros := max(duration.Microseconds(), 0)
	c.tickMicros.Store(micros)
	bytes := c.tickBytes.Swap(0)
	c.lastTickBytes.Store(bytes)
	if c.debug {
		c.logger.Printf("[telemetry] tick=%dµs sent=%s total=%s sessions=%d drops=%d resyncs=%d",
			micros,
			humanize.Bytes(bytes),
			humanize.Bytes(c.bytesSent.Load()),
			c.sessions.Load(),
			c.framesDropped.Load(),
			c.resyncs.Load(),
		)
	}
}

func (c *Counters) Snapshot() Snapshot {
	snap := Snapshot{
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		FullSent:       c.framesSent[frame.KindFull].Load(),
		DeltaSent:      c.framesSent[frame.KindDelta].Load(),
		AckSent:        c.framesSent[frame.KindAck].Load(),
		FullReceived:   c.framesReceived[frame.KindFull].Load(),
		DeltaReceived:  c.framesReceived[frame.KindDelta].Load(),
		AckReceived:    c.framesReceived[frame.KindAck].Load(),
		FramesDropped:  c.framesDropped.Load(),
		Resyncs:        c.resyncs.Load(),
		TickMicros:     c.tickMicros.Load(),
		LastTickBytes:  c.lastTickBytes.Load(),
		ActiveSessions: c.sessions.Load(),
	}
	c.mu.Lock()
	if len(c.dropReasons) > 0 {
		snap.DropReasons = make(map[string]uint64, len(c.dropReasons))
		for reason, n := range c.dropReasons {
			snap.DropReasons[reason] = n
		}
	}
	c.mu.Unlock()
	return snap
}

// Summary renders the headline numbers for humans.
func (s Snapshot) Summary() string {
	return humanize.Bytes(s.BytesSent) + " sent, " +
		humanize.Comma(int64(s.FullSent)) + " full, " +
		humanize.Comma(int64(s.DeltaSent)) + " deltas, " +
		humanize.Comma(int64(s.Resyncs)) + " resyncs"
}
