package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"arenasync/logging"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "network.frame_dropped",
		Tick:     12,
		Time:     time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Actor:    logging.PeerRef("carol"),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  map[string]any{"reason": "stale"},
		Extra:    map[string]any{"b": 2, "a": 1},
	}
}

func TestConsoleFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsole(&buf).Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[network.frame_dropped] warn tick=12", "actor=peer:carol", `payload={"reason":"stale"}`, "a=1 b=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["severity"] != "warn" || decoded["type"] != "network.frame_dropped" {
		t.Fatalf("unexpected record %v", decoded)
	}
}

func TestJSONFileFlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := OpenJSONFile(path, time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"tick":12`) {
		t.Fatalf("expected flushed event, got %q", data)
	}
}
