package session

import (
	"context"
	"maps"
	"slices"

	"arenasync/logging"
	"arenasync/logging/network"
)

// Registry is the host-owned set of live sessions keyed by peer. Like
// Session it belongs to the host loop and is not safe for concurrent use.
type Registry struct {
	sessions map[string]*Session
	pub      logging.Publisher
}

func NewRegistry(pub logging.Publisher) *Registry {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Registry{sessions: make(map[string]*Session), pub: pub}
}

// Add registers s, closing any session previously held for the same peer.
func (r *Registry) Add(ctx context.Context, s *Session) {
	if old, ok := r.sessions[s.Peer()]; ok && old != s {
		r.close(ctx, old, "replaced")
	}
	r.sessions[s.Peer()] = s
	network.SessionOpened(ctx, r.pub, logging.PeerRef(s.Peer()), network.SessionPayload{Role: s.Role().String()}, nil)
}

// Remove closes and forgets the session for peer. It reports whether one
// existed.
func (r *Registry) Remove(ctx context.Context, peer, reason string) bool {
	s, ok := r.sessions[peer]
	if !ok {
		return false
	}
	delete(r.sessions, peer)
	r.close(ctx, s, reason)
	return true
}

func (r *Registry) close(ctx context.Context, s *Session, reason string) {
	s.Close()
	network.SessionClosed(ctx, r.pub, s.Tick(), logging.PeerRef(s.Peer()), network.SessionPayload{Role: s.Role().String(), Reason: reason}, nil)
}

func (r *Registry) Get(peer string) (*Session, bool) {
	s, ok := r.sessions[peer]
	return s, ok
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// Peers returns the registered peers in sorted order.
func (r *Registry) Peers() []string {
	return slices.Sorted(maps.Keys(r.sessions))
}

// Each visits sessions in peer order. Returning false stops the walk.
func (r *Registry) Each(fn func(*Session) bool) {
	for _, peer := range r.Peers() {
		if !fn(r.sessions[peer]) {
			return
		}
	}
}

// CloseAll closes every session and empties the registry.
func (r *Registry) CloseAll(ctx context.Context, reason string) {
	for _, peer := range r.Peers() {
		r.Remove(ctx, peer, reason)
	}
}
