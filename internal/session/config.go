package session

import "arenasync/internal/delta"

// Config holds the per-session sync policy. Every value can be overridden;
// Normalize fills in defaults for zero or invalid entries.
type Config struct {
	// Epsilon is the float tolerance used when diffing snapshots. Negative
	// values request exact comparison.
	Epsilon float64
	// AckMissThreshold is how many ticks may pass without the peer's ack
	// advancing before the authority forces a full resync. It also paces
	// repeated full snapshots while waiting for the first ack.
	AckMissThreshold int
	// PendingCapacity bounds the unacknowledged snapshot queue.
	PendingCapacity int
	// ReorderWindow is how far ahead of the expected sequence an inbound
	// frame may be buffered before the gap is declared lost.
	ReorderWindow int
	// HistoryCapacity bounds the replica's applied snapshots kept as delta bases.
	HistoryCapacity int
}

func DefaultConfig() Config {
	return Config{
		Epsilon:          delta.DefaultEpsilon,
		AckMissThreshold: 3,
		PendingCapacity:  32,
		ReorderWindow:    4,
		HistoryCapacity:  32,
	}
}

// Normalize replaces out-of-range values with defaults. ReorderWindow may be
// zero, which disables buffering.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.Epsilon == 0 {
		c.Epsilon = def.Epsilon
	}
	if c.AckMissThreshold <= 0 {
		c.AckMissThreshold = def.AckMissThreshold
	}
	if c.PendingCapacity <= 0 {
		c.PendingCapacity = def.PendingCapacity
	}
	if c.ReorderWindow < 0 {
		c.ReorderWindow = def.ReorderWindow
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = def.HistoryCapacity
	}
	return c
}

func (c Config) diffOptions() delta.Options {
	return delta.Options{Epsilon: c.Epsilon}
}
