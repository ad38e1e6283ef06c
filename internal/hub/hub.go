// Package hub runs the server side of the sync protocol: one authority
// session per connected peer, all fed from the same frozen snapshot each tick.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"arenasync/internal/archive"
	"arenasync/internal/net/ws"
	"arenasync/internal/session"
	"arenasync/internal/sim"
	"arenasync/internal/telemetry"
	"arenasync/internal/tracing"
	"arenasync/internal/world"
	"arenasync/logging"
)

// Socket is the transport a session writes to and polls from.
type Socket interface {
	Send(data []byte) error
	TryReceive() ([]byte, bool)
	Close() error
}

// Recorder persists outbound frames.
type Recorder interface {
	Record(rec archive.Record) bool
}

type Config struct {
	Session   session.Config
	TickRate  int
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Telemetry *telemetry.Counters
	// Recorder is optional.
	Recorder Recorder
	Tracer   trace.Tracer
	Clock    logging.Clock
}

type join struct {
	peer   string
	socket Socket
}

// Hub owns the session registry. Tick and Close must run on a single
// goroutine; Attach and Diagnostics are safe from any goroutine.
type Hub struct {
	cfg      Config
	world    sim.Stepper
	registry *session.Registry
	sockets  map[string]Socket

	joinMu sync.Mutex
	joins  []join

	frozen world.Snapshot
	ticks  uint64
	diag   atomic.Pointer[Diagnostics]
}

func New(stepper sim.Stepper, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NewCounters(false, cfg.Logger)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.Tracer("arenasync/hub")
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.ClockFunc(time.Now)
	}
	cfg.Session = cfg.Session.Normalize()

	h := &Hub{
		cfg:      cfg,
		world:    stepper,
		registry: session.NewRegistry(cfg.Publisher),
		sockets:  make(map[string]Socket),
		frozen:   stepper.Snapshot(),
	}
	h.publishDiagnostics(0)
	return h
}

// Attach queues a socket for admission on the next tick.
func (h *Hub) Attach(peerID string, socket Socket) {
	h.joinMu.Lock()
	h.joins = append(h.joins, join{peer: peerID, socket: socket})
	h.joinMu.Unlock()
}

// Accept implements ws.Acceptor.
func (h *Hub) Accept(_ context.Context, conn *ws.Conn) {
	h.Attach(conn.Peer(), conn)
}

// AfterStep is the sim.Loop hook that broadcasts after every step.
func (h *Hub) AfterStep(ctx context.Context, _ sim.LoopStepResult) {
	h.Tick(ctx)
}

// Tick runs one broadcast round: admit new peers, drain inbound acks, then
// give every session a chance to send against this tick's snapshot.
func (h *Hub) Tick(ctx context.Context) {
	ctx, span := h.cfg.Tracer.Start(ctx, "hub.tick")
	defer span.End()
	start := h.cfg.Clock.Now()

	h.admit(ctx)
	h.frozen = h.world.Snapshot()

	var lost []string
	h.registry.Each(func(s *session.Session) bool {
		socket := h.sockets[s.Peer()]
		if !h.service(ctx, s, socket) {
			lost = append(lost, s.Peer())
		}
		return true
	})
	for _, peerID := range lost {
		h.remove(ctx, peerID, "disconnect")
	}

	h.ticks++
	h.cfg.Telemetry.SetSessions(h.registry.Len())
	h.cfg.Telemetry.RecordTick(h.cfg.Clock.Now().Sub(start))
	h.publishDiagnostics(h.frozen.Len())
	span.SetAttributes(
		attribute.Int64("hub.tick", int64(h.ticks)),
		attribute.Int("hub.sessions", h.registry.Len()),
		attribute.Int("hub.entities", h.frozen.Len()),
	)
}

// service pumps one peer. It reports false when the socket is gone.
func (h *Hub) service(ctx context.Context, s *session.Session, socket Socket) bool {
	if done, ok := socket.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-done.Done():
			return false
		default:
		}
	}
	for {
		data, ok := socket.TryReceive()
		if !ok {
			break
		}
		// Errors are reported through the session's drop events.
		_ = s.OnBytesReceived(ctx, data)
	}

	f, ok := s.OnTick(ctx)
	if !ok {
		return true
	}
	if err := socket.Send(f.Marshal()); err != nil {
		h.cfg.Logger.Printf("[hub] send to %s failed: %v", s.Peer(), err)
		return false
	}
	if h.cfg.Recorder != nil {
		h.cfg.Recorder.Record(archive.Record{Peer: s.Peer(), Tick: s.Tick() - 1, Frame: f})
	}
	return true
}

func (h *Hub) admit(ctx context.Context) {
	h.joinMu.Lock()
	joins := h.joins
	h.joins = nil
	h.joinMu.Unlock()

	for _, j := range joins {
		if old, ok := h.sockets[j.peer]; ok && old != j.socket {
			_ = old.Close()
		}
		src := session.SourceFunc(func() world.Snapshot { return h.frozen })
		s := session.NewAuthority(j.peer, src, h.cfg.Session, session.Deps{
			Publisher: h.cfg.Publisher,
			Telemetry: h.cfg.Telemetry,
		})
		h.registry.Add(ctx, s)
		h.sockets[j.peer] = j.socket
		h.cfg.Logger.Printf("[hub] peer %s joined", j.peer)
	}
}

func (h *Hub) remove(ctx context.Context, peerID, reason string) {
	h.registry.Remove(ctx, peerID, reason)
	if socket, ok := h.sockets[peerID]; ok {
		_ = socket.Close()
		delete(h.sockets, peerID)
	}
	h.cfg.Logger.Printf("[hub] peer %s left: %s", peerID, reason)
}

// Peers lists connected peers in sorted order. Loop goroutine only.
func (h *Hub) Peers() []string {
	return h.registry.Peers()
}

// Close ends every session and socket.
func (h *Hub) Close(ctx context.Context) {
	for _, peerID := range h.registry.Peers() {
		h.remove(ctx, peerID, "shutdown")
	}
	h.joinMu.Lock()
	joins := h.joins
	h.joins = nil
	h.joinMu.Unlock()
	for _, j := range joins {
		_ = j.socket.Close()
	}
}
