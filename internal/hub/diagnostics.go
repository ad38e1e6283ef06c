package hub

import (
	"arenasync/internal/archive"
	"arenasync/internal/net/ws"
	"arenasync/internal/session"
	"arenasync/internal/telemetry"
	"arenasync/logging"
)

// Diagnostics is the document served at /diagnostics.
type Diagnostics struct {
	Status     string               `json:"status"`
	ServerTime int64                `json:"serverTime"`
	Tick       uint64               `json:"tick"`
	TickRate   int                  `json:"tickRate"`
	Entities   int                  `json:"entities"`
	Sessions   []SessionDiagnostics `json:"sessions"`
	Telemetry  telemetry.Snapshot   `json:"telemetry"`
	Archive    *archive.Stats       `json:"archive,omitempty"`
	Logging    *logging.RouterStats `json:"logging,omitempty"`
}

// SessionDiagnostics describes one connected peer.
type SessionDiagnostics struct {
	session.Stats
	Socket *ws.ConnStats `json:"socket,omitempty"`
}

// Diagnostics returns the view published at the end of the last tick.
func (h *Hub) Diagnostics() Diagnostics {
	return *h.diag.Load()
}

func (h *Hub) publishDiagnostics(entities int) {
	diag := &Diagnostics{
		Status:     "ok",
		ServerTime: h.cfg.Clock.Now().UnixMilli(),
		Tick:       h.ticks,
		TickRate:   h.cfg.TickRate,
		Entities:   entities,
		Sessions:   make([]SessionDiagnostics, 0, h.registry.Len()),
		Telemetry:  h.cfg.Telemetry.Snapshot(),
	}
	h.registry.Each(func(s *session.Session) bool {
		entry := SessionDiagnostics{Stats: s.Stats()}
		if reporter, ok := h.sockets[s.Peer()].(interface{ Stats() ws.ConnStats }); ok {
			stats := reporter.Stats()
			entry.Socket = &stats
		}
		diag.Sessions = append(diag.Sessions, entry)
		return true
	})
	if reporter, ok := h.cfg.Recorder.(interface{ Stats() archive.Stats }); ok {
		stats := reporter.Stats()
		diag.Archive = &stats
	}
	if reporter, ok := h.cfg.Publisher.(interface{ Stats() logging.RouterStats }); ok {
		stats := reporter.Stats()
		diag.Logging = &stats
	}
	h.diag.Store(diag)
}
