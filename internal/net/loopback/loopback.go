// Package loopback provides an in-memory socket pair with the same
// non-blocking contract as the websocket adapter. Frames can be held back,
// dropped, or reordered, which makes it the transport for protocol tests.
package loopback

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("loopback: socket closed")

type link struct {
	mu     sync.Mutex
	closed bool
}

// Socket is one end of a Pipe.
type Socket struct {
	link  *link
	peer  *Socket
	inbox [][]byte
	// Filter, when set, sees every message sent to this end and returns the
	// messages to deliver in its place.
	Filter func(data []byte) [][]byte
}

// Pipe returns two connected ends.
func Pipe() (*Socket, *Socket) {
	l := &link{}
	a := &Socket{link: l}
	b := &Socket{link: l}
	a.peer, b.peer = b, a
	return a, b
}

// Send delivers a copy of data to the other end.
func (s *Socket) Send(data []byte) error {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	if s.link.closed {
		return ErrClosed
	}
	msg := append([]byte(nil), data...)
	if s.peer.Filter != nil {
		s.peer.inbox = append(s.peer.inbox, s.peer.Filter(msg)...)
		return nil
	}
	s.peer.inbox = append(s.peer.inbox, msg)
	return nil
}

func (s *Socket) TryReceive() ([]byte, bool) {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	if len(s.inbox) == 0 {
		return nil, false
	}
	msg := s.inbox[0]
	s.inbox = s.inbox[1:]
	return msg, true
}

// Pending reports how many messages wait at this end.
func (s *Socket) Pending() int {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	return len(s.inbox)
}

// Close closes both ends. Queued messages can still be received.
func (s *Socket) Close() error {
	s.link.mu.Lock()
	s.link.closed = true
	s.link.mu.Unlock()
	return nil
}

func (s *Socket) Closed() bool {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	return s.link.closed
}
