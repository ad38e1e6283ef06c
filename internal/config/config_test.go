package config

import (
	"slices"
	"testing"
	"time"

	"arenasync/internal/session"
	"arenasync/logging"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.TickRate != 15 || cfg.ArchivePath != "" {
		t.Fatalf("unexpected top-level defaults %+v", cfg)
	}
	if got := cfg.SessionConfig(); got != session.DefaultConfig() {
		t.Fatalf("expected session defaults, got %+v", got)
	}
	logCfg := cfg.LoggingConfig()
	if !slices.Equal(logCfg.EnabledSinks, []string{logging.SinkConsole}) || logCfg.MinimumSeverity != logging.SeverityInfo {
		t.Fatalf("unexpected logging config %+v", logCfg)
	}
	if cfg.Client.Server != "ws://localhost:8080/ws" || cfg.Client.ReportEvery != 5*time.Second {
		t.Fatalf("unexpected client defaults %+v", cfg.Client)
	}
	if cfg.TracingConfig("arenasync").Endpoint != "" {
		t.Fatalf("expected tracing endpoint unset")
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ARENASYNC_ADDR":                       ":9090",
		"ARENASYNC_TICK_RATE":                  "30",
		"ARENASYNC_SESSION_EPSILON":            "-1",
		"ARENASYNC_SESSION_ACK_MISS_THRESHOLD": "5",
		"ARENASYNC_LOG_SINKS":                  "console,json",
		"ARENASYNC_LOG_LEVEL":                  "debug",
		"ARENASYNC_LOG_JSON_PATH":              "/tmp/events.jsonl",
		"ARENASYNC_DEMO_BODIES":                "4",
		"ARENASYNC_WS_OUTBOX_SIZE":             "8",
		"ARENASYNC_OTEL_ENDPOINT":              "http://collector:4318",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.TickRate != 30 || cfg.LoopConfig().TickRate != 30 {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	sessionCfg := cfg.SessionConfig()
	if sessionCfg.Epsilon != -1 || sessionCfg.AckMissThreshold != 5 {
		t.Fatalf("unexpected session config %+v", sessionCfg)
	}
	logCfg := cfg.LoggingConfig()
	if !logCfg.HasSink(logging.SinkJSON) || logCfg.JSON.FilePath != "/tmp/events.jsonl" || logCfg.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("unexpected logging config %+v", logCfg)
	}
	if cfg.DriftConfig().Bodies != 4 || cfg.ConnConfig().OutboxSize != 8 {
		t.Fatalf("unexpected demo or ws config")
	}
	if tracingCfg := cfg.TracingConfig("arenasync-server"); tracingCfg.Endpoint != "http://collector:4318" || !tracingCfg.Enabled {
		t.Fatalf("unexpected tracing config %+v", tracingCfg)
	}
}

func TestRejectsInvalidValues(t *testing.T) {
	for name, vars := range map[string]map[string]string{
		"zero tick rate":  {"ARENASYNC_TICK_RATE": "0"},
		"not a number":    {"ARENASYNC_TICK_RATE": "fast"},
		"unknown level":   {"ARENASYNC_LOG_LEVEL": "loud"},
		"unknown sink":    {"ARENASYNC_LOG_SINKS": "console,syslog"},
		"negative bodies": {"ARENASYNC_DEMO_BODIES": "-1"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFrom(vars); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
