// Package archive records outbound frames into SQLite so a session can be
// replayed or inspected after the fact.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"arenasync/internal/net/frame"
	"arenasync/internal/telemetry"
)

//go:embed schema.sql
var schema string

// Record is one archived frame.
type Record struct {
	Peer       string
	Tick       uint64
	Frame      frame.Frame
	RecordedAt time.Time
}

// Options tunes the background writer.
type Options struct {
	// QueueSize bounds records waiting to be written; Record drops when full.
	QueueSize int
	// BatchSize caps the records written per transaction.
	BatchSize int
	Logger    telemetry.Logger
	Now       func() time.Time
}

func DefaultOptions() Options {
	return Options{QueueSize: 1024, BatchSize: 128}
}

// Stats counts archive activity.
type Stats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

// Archive is a SQLite frame log with an asynchronous writer. Record is safe
// for concurrent use.
type Archive struct {
	db      *sql.DB
	opts    Options
	queue   chan Record
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// Open opens or creates the archive at path and starts its writer.
func Open(path string, opts Options) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	defaults := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	a := &Archive{
		db:    db,
		opts:  opts,
		queue: make(chan Record, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// Record queues rec for writing and reports whether it was accepted. It never
// blocks; a full queue or a closed archive drops the record.
func (a *Archive) Record(rec Record) bool {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return false
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = a.opts.Now()
	}
	select {
	case a.queue <- rec:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

func (a *Archive) run() {
	defer close(a.done)
	batch := make([]Record, 0, a.opts.BatchSize)
	for rec := range a.queue {
		batch = append(batch[:0], rec)
	fill:
		for len(batch) < a.opts.BatchSize {
			select {
			case next, ok := <-a.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		if err := a.write(batch); err != nil {
			a.failed.Add(uint64(len(batch)))
			a.opts.Logger.Printf("[archive] failed to write %d frames: %v", len(batch), err)
			continue
		}
		a.recorded.Add(uint64(len(batch)))
	}
}

func (a *Archive) write(batch []Record) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO frames (
	   peer, sequence, kind, tick, uncompressed_len, payload_len, frame, recorded_at
	 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, rec := range batch {
		f := rec.Frame
		if _, err := stmt.Exec(
			rec.Peer,
			int64(f.Sequence),
			f.Kind.String(),
			int64(rec.Tick),
			int64(f.UncompressedLen),
			len(f.Payload),
			f.Marshal(),
			rec.RecordedAt.UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s seq=%d: %w", rec.Peer, f.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Frames returns every archived frame for peer in sequence order. Stored
// bytes are re-parsed, so a damaged row surfaces as an error.
func (a *Archive) Frames(ctx context.Context, peer string) ([]Record, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT tick, frame, recorded_at FROM frames WHERE peer = ? ORDER BY sequence, id`, peer)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			tick       int64
			raw        []byte
			recordedAt int64
		)
		if err := rows.Scan(&tick, &raw, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f, err := frame.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse archived frame: %w", err)
		}
		out = append(out, Record{
			Peer:       peer,
			Tick:       uint64(tick),
			Frame:      f,
			RecordedAt: time.UnixMilli(recordedAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return out, nil
}

func (a *Archive) Stats() Stats {
	return Stats{
		Recorded: a.recorded.Load(),
		Dropped:  a.dropped.Load(),
		Failed:   a.failed.Load(),
	}
}

// Close flushes queued records and closes the database.
func (a *Archive) Close() error {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.closeMu.Unlock()

	<-a.done
	return a.db.Close()
}
