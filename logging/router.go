package logging

import (
	"context"
	"log"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// Printer receives the router's own diagnostics (drops, sink failures).
type Printer interface {
	Printf(format string, args ...any)
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Router moves session and transport events off the tick loop. Publish only
// enqueues; a single dispatcher stamps and filters events, then hands each one
// to every sink's worker. An event that finds the intake full is discarded and
// counted under its category, so a flood of frame drops cannot stall acks.
type Router struct {
	cfg      Config
	clock    Clock
	warn     Printer
	severity Severity
	fields   map[string]any

	intake  chan Event
	workers []*sinkWorker
	halt    context.CancelFunc
	running sync.WaitGroup
	closed  atomic.Bool

	delivered atomic.Uint64
	dropMu    sync.Mutex
	dropped   map[string]uint64
	warnAfter atomic.Int64
}

// RouterStats summarizes delivery. Drops are keyed by event category at
// intake and by sink name at the worker backlogs.
type RouterStats struct {
	Delivered         uint64            `json:"delivered"`
	DroppedByCategory map[string]uint64 `json:"droppedByCategory,omitempty"`
	DroppedBySink     map[string]uint64 `json:"droppedBySink,omitempty"`
}

// Dropped sums every intake drop.
func (s RouterStats) Dropped() uint64 {
	var total uint64
	for _, n := range s.DroppedByCategory {
		total += n
	}
	return total
}

// NewRouter starts the dispatcher and one worker per sink. A nil clock uses
// wall time; a nil fallback writes to stderr.
func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink, fallback Printer) *Router {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = DefaultConfig().DropWarnInterval
	}

	r := &Router{
		cfg:      cfg,
		clock:    clock,
		warn:     fallback,
		severity: cfg.MinimumSeverity,
		fields:   cfg.CloneFields(),
		intake:   make(chan Event, cfg.BufferSize),
		dropped:  make(map[string]uint64),
	}
	backlog := min(max(cfg.BufferSize, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink != nil {
			r.workers = append(r.workers, newSinkWorker(named.Name, named.Sink, backlog, fallback))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.halt = cancel
	for _, w := range r.workers {
		r.running.Add(1)
		go func() {
			defer r.running.Done()
			w.run()
		}()
	}
	r.running.Add(1)
	go r.dispatch(ctx)
	return r
}

// Publish enqueues event without blocking. Untyped events and events
// published after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.intake <- event:
	default:
		r.noteDrop(event)
	}
}

func (r *Router) dispatch(ctx context.Context) {
	defer r.running.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.intake:
			r.route(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-r.intake:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.severity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.delivered.Add(1)
	for _, w := range r.workers {
		w.enqueue(event)
	}
}

func (r *Router) noteDrop(event Event) {
	category := event.Category
	if category == "" {
		category = "uncategorized"
	}
	r.dropMu.Lock()
	r.dropped[category]++
	r.dropMu.Unlock()

	now := time.Now().UnixNano()
	next := r.warnAfter.Load()
	if now >= next && r.warnAfter.CompareAndSwap(next, now+r.cfg.DropWarnInterval.Nanoseconds()) {
		r.warn.Printf("intake full, dropping %s event %s at tick %d", category, event.Type, event.Tick)
	}
}

// Close stops intake, drains queued events into the sinks and closes them.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.halt()
	drained := make(chan struct{})
	go func() {
		r.running.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{Delivered: r.delivered.Load()}
	r.dropMu.Lock()
	if len(r.dropped) > 0 {
		stats.DroppedByCategory = maps.Clone(r.dropped)
	}
	r.dropMu.Unlock()
	for _, w := range r.workers {
		if n := w.dropped.Load(); n > 0 {
			if stats.DroppedBySink == nil {
				stats.DroppedBySink = make(map[string]uint64, len(r.workers))
			}
			stats.DroppedBySink[w.name] = n
		}
	}
	return stats
}

// Sink returns the sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}
