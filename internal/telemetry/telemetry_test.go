package telemetry

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"arenasync/internal/net/frame"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		WrapLogger(nil).Printf("ignored %d", 1)
	})

	t.Run("forwards", func(t *testing.T) {
		var buf bytes.Buffer
		WrapLogger(log.New(&buf, "", 0)).Printf("hello %s", "world")
		if got := strings.TrimSpace(buf.String()); got != "hello world" {
			t.Fatalf("unexpected output %q", got)
		}
	})
}

func TestCountersAggregate(t *testing.T) {
	var lines []string
	counters := NewCounters(true, LoggerFunc(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}))

	counters.RecordFrameSent(frame.KindFull, 2048)
	counters.RecordFrameSent(frame.KindDelta, 100)
	counters.RecordFrameSent(frame.KindDelta, 50)
	counters.RecordFrameSent(frame.Kind(9), 1000)
	counters.RecordFrameReceived(frame.KindAck, 26)
	counters.RecordFrameDropped("stale")
	counters.RecordFrameDropped("stale")
	counters.RecordFrameDropped("corrupt")
	counters.RecordResync("ack_timeout")
	counters.SetSessions(2)
	counters.RecordTick(1500 * time.Microsecond)

	snap := counters.Snapshot()
	if snap.BytesSent != 2198 || snap.FullSent != 1 || snap.DeltaSent != 2 || snap.AckReceived != 1 {
		t.Fatalf("unexpected traffic counters %+v", snap)
	}
	if snap.FramesDropped != 3 || snap.DropReasons["stale"] != 2 || snap.DropReasons["corrupt"] != 1 {
		t.Fatalf("unexpected drop counters %+v", snap)
	}
	if snap.TickMicros != 1500 || snap.LastTickBytes != 2198 || snap.ActiveSessions != 2 || snap.Resyncs != 1 {
		t.Fatalf("unexpected tick counters %+v", snap)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "sent=2.2 kB") {
		t.Fatalf("expected humanized debug line, got %v", lines)
	}

	counters.RecordTick(time.Millisecond)
	if got := counters.Snapshot().LastTickBytes; got != 0 {
		t.Fatalf("expected per-tick bytes to reset, got %d", got)
	}
	if summary := snap.Summary(); !strings.Contains(summary, "2 deltas") {
		t.Fatalf("unexpected summary %q", summary)
	}
}
