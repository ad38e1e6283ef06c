package logging

import (
	"sync/atomic"
	"time"
)

const (
	retryBase    = 100 * time.Millisecond
	retryMaxStep = 5
)

// sinkWorker owns one sink. A failing sink backs off exponentially while its
// backlog keeps absorbing events; once the backlog is full new events are
// dropped and counted.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	warn     Printer
	dropped  atomic.Uint64
	failures int
	resumeAt time.Time
}

func newSinkWorker(name string, sink Sink, backlog int, warn Printer) *sinkWorker {
	return &sinkWorker{name: name, sink: sink, events: make(chan Event, backlog), warn: warn}
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- cloneEvent(event):
	default:
		if w.dropped.Add(1) == 1 {
			w.warn.Printf("sink %s backlog full, dropping %s", w.name, event.Type)
		}
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if w.failures > 0 {
			time.Sleep(time.Until(w.resumeAt))
		}
		if err := w.sink.Write(event); err != nil {
			w.failures++
			delay := retryBase << min(w.failures, retryMaxStep)
			w.resumeAt = time.Now().Add(delay)
			w.warn.Printf("sink %s write failed: %v (retry in %s)", w.name, err, delay)
			continue
		}
		w.failures = 0
	}
}
