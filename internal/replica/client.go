// Package replica runs the client side of the sync protocol over a socket.
package replica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arenasync/internal/session"
	"arenasync/internal/telemetry"
	"arenasync/internal/world"
	"arenasync/logging"
)

// Socket is the transport the client polls and acks over.
type Socket interface {
	Send(data []byte) error
	TryReceive() ([]byte, bool)
	Close() error
}

// ErrDisconnected is returned by Run when the socket shuts down.
var ErrDisconnected = errors.New("replica: disconnected")

type Config struct {
	Session   session.Config
	TickRate  int
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Telemetry *telemetry.Counters
	// ReportEvery controls the periodic status line; zero disables it.
	ReportEvery time.Duration
	Clock       logging.Clock
}

// Client reconstructs the server's world from the frames it receives.
type Client struct {
	cfg        Config
	socket     Socket
	session    *session.Session
	lastReport time.Time
}

func New(server string, socket Socket, cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NewCounters(false, cfg.Logger)
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 15
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.ClockFunc(time.Now)
	}
	return &Client{
		cfg:    cfg,
		socket: socket,
		session: session.NewReplica(server, cfg.Session, session.Deps{
			Publisher: cfg.Publisher,
			Telemetry: cfg.Telemetry,
		}),
		lastReport: cfg.Clock.Now(),
	}
}

func (c *Client) State() session.State { return c.session.State() }

// World returns the latest reconstructed snapshot and its server tick.
func (c *Client) World() (world.Snapshot, uint64, bool) {
	return c.session.World()
}

func (c *Client) Stats() session.Stats { return c.session.Stats() }

// Tick applies everything that arrived since the last call and sends at most
// one ack.
func (c *Client) Tick(ctx context.Context) error {
	for {
		data, ok := c.socket.TryReceive()
		if !ok {
			break
		}
		// Rejected frames are logged by the session and never fatal.
		_ = c.session.OnBytesReceived(ctx, data)
	}
	if f, ok := c.session.OnTick(ctx); ok {
		if err := c.socket.Send(f.Marshal()); err != nil {
			return fmt.Errorf("send ack: %w", err)
		}
	}
	c.report()
	return nil
}

func (c *Client) report() {
	if c.cfg.ReportEvery <= 0 {
		return
	}
	now := c.cfg.Clock.Now()
	if now.Sub(c.lastReport) < c.cfg.ReportEvery {
		return
	}
	c.lastReport = now
	snap, tick, _ := c.session.World()
	c.cfg.Logger.Printf("[client] state=%s tick=%d entities=%d %s",
		c.session.State(), tick, snap.Len(), c.cfg.Telemetry.Snapshot().Summary())
}

// Run ticks until ctx is cancelled or the socket fails.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.TickRate))
	defer ticker.Stop()

	var done <-chan struct{}
	if d, ok := c.socket.(interface{ Done() <-chan struct{} }); ok {
		done = d.Done()
	}
	defer c.session.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return ErrDisconnected
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				return err
			}
		}
	}
}
