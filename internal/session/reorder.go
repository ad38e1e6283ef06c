package session

import (
	"maps"
	"slices"

	"arenasync/internal/net/frame"
)

// reorderBuffer tracks the next expected inbound sequence and holds frames
// that arrived at most window sequences early.
type reorderBuffer struct {
	window int
	next   uint64
	frames map[uint64]frame.Frame
}

func newReorderBuffer(window int) reorderBuffer {
	return reorderBuffer{window: window, frames: make(map[uint64]frame.Frame, window)}
}

func (b *reorderBuffer) expected() uint64 { return b.next }
func (b *reorderBuffer) len() int { return len(b.frames) }

func (b *reorderBuffer) fits(seq uint64) bool {
	return seq > b.next && seq-b.next <= uint64(b.window)
}

// push stores f and reports false when its sequence is already buffered.
func (b *reorderBuffer) push(f frame.Frame) bool {
	if _, exists := b.frames[f.Sequence]; exists {
		return false
	}
	b.frames[f.Sequence] = f
	return true
}

// advance marks seq as consumed.
func (b *reorderBuffer) advance(seq uint64) {
	if seq < b.next {
		return
	}
	b.next = seq + 1
	for buffered := range b.frames {
		if buffered < b.next {
			delete(b.frames, buffered)
		}
	}
}

func (b *reorderBuffer) popReady() (frame.Frame, bool) {
	f, ok := b.frames[b.next]
	if ok {
		delete(b.frames, b.next)
	}
	return f, ok
}

// flush empties the buffer and returns its frames in sequence order.
func (b *reorderBuffer) flush() []frame.Frame {
	seqs := slices.Sorted(maps.Keys(b.frames))
	out := make([]frame.Frame, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, b.frames[seq])
	}
	clear(b.frames)
	return out
}

func (b *reorderBuffer) reset() {
	clear(b.frames)
}
