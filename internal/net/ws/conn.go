// Package ws carries binary frames over gorilla websockets. A Conn never
// blocks its caller: reads land in a bounded inbox polled with TryReceive and
// writes queue into a bounded outbox drained by a writer goroutine.
package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arenasync/internal/telemetry"
	"arenasync/logging"
	"arenasync/logging/network"
)

// ErrClosed is returned by Send after the connection has shut down.
var ErrClosed = errors.New("ws: connection closed")

// Overflow reasons reported through FrameDropped events.
const (
	DropInboxOverflow  = "inbox_overflow"
	DropOutboxOverflow = "outbox_overflow"
	DropTextMessage    = "text_message"
)

// Config bounds a connection's queues.
type Config struct {
	InboxSize  int
	OutboxSize int
	WriteWait  time.Duration
	// ReadLimit caps one inbound message; larger messages close the socket.
	ReadLimit int64
	Publisher logging.Publisher
	Logger    telemetry.Logger
}

func DefaultConfig() Config {
	return Config{
		InboxSize:  64,
		OutboxSize: 64,
		WriteWait:  10 * time.Second,
		ReadLimit:  16<<20 + 64,
	}
}

func (c Config) normalize() Config {
	defaults := DefaultConfig()
	if c.InboxSize <= 0 {
		c.InboxSize = defaults.InboxSize
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = defaults.OutboxSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaults.WriteWait
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaults.ReadLimit
	}
	if c.Publisher == nil {
		c.Publisher = logging.NopPublisher()
	}
	if c.Logger == nil {
		c.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return c
}

// ConnStats reports queue depth and drop counts.
type ConnStats struct {
	Inbox         int    `json:"inbox"`
	Outbox        int    `json:"outbox"`
	InboxDropped  uint64 `json:"inboxDropped"`
	OutboxDropped uint64 `json:"outboxDropped"`
}

// Conn is a frame socket over one websocket connection.
type Conn struct {
	peer   string
	conn   *websocket.Conn
	cfg    Config
	inbox  chan []byte
	outbox chan []byte
	done   chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	inboxDropped  atomic.Uint64
	outboxDropped atomic.Uint64
}

// NewConn takes ownership of conn and starts its reader and writer.
func NewConn(peer string, conn *websocket.Conn, cfg Config) *Conn {
	cfg = cfg.normalize()
	c := &Conn{
		peer:   peer,
		conn:   conn,
		cfg:    cfg,
		inbox:  make(chan []byte, cfg.InboxSize),
		outbox: make(chan []byte, cfg.OutboxSize),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(cfg.ReadLimit)
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) Peer() string { return c.peer }

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send queues data for the writer. When the outbox is full the oldest queued
// message is discarded.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !pushDropOldest(c.outbox, data) {
		c.outboxDropped.Add(1)
		c.reportDrop(DropOutboxOverflow)
	}
	return nil
}

// TryReceive returns the next inbound message without blocking.
func (c *Conn) TryReceive() ([]byte, bool) {
	select {
	case data := <-c.inbox:
		return data, true
	default:
		return nil, false
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) Stats() ConnStats {
	return ConnStats{
		Inbox:         len(c.inbox),
		Outbox:        len(c.outbox),
		InboxDropped:  c.inboxDropped.Load(),
		OutboxDropped: c.outboxDropped.Load(),
	}
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

func (c *Conn) readLoop() {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.cfg.Logger.Printf("[ws] read from %s failed: %v", c.peer, err)
				}
			}
			c.shutdown(err)
			return
		}
		if kind != websocket.BinaryMessage {
			c.reportDrop(DropTextMessage)
			continue
		}
		if !pushDropOldest(c.inbox, data) {
			c.inboxDropped.Add(1)
			c.reportDrop(DropInboxOverflow)
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.cfg.Logger.Printf("[ws] write to %s failed: %v", c.peer, err)
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Conn) reportDrop(reason string) {
	network.FrameDropped(context.Background(), c.cfg.Publisher, 0, logging.PeerRef(c.peer), network.DropPayload{Reason: reason}, nil)
}

// pushDropOldest enqueues data, evicting the oldest entry when ch is full. It
// reports false when something was evicted.
func pushDropOldest(ch chan []byte, data []byte) bool {
	select {
	case ch <- data:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- data:
	default:
	}
	return false
}
