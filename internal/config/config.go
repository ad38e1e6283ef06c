// Package config loads process configuration from ARENASYNC_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"arenasync/internal/net/ws"
	"arenasync/internal/session"
	"arenasync/internal/sim"
	"arenasync/internal/tracing"
	"arenasync/logging"
)

// Prefix is prepended to every variable name.
const Prefix = "ARENASYNC_"

type Config struct {
	Addr            string `env:"ADDR"              envDefault:":8080"`
	TickRate        int    `env:"TICK_RATE"         envDefault:"15"`
	CatchupMaxTicks int    `env:"CATCHUP_MAX_TICKS" envDefault:"3"`
	ArchivePath     string `env:"ARCHIVE_PATH"`

	Session SessionConfig `envPrefix:"SESSION_"`
	Log     LogConfig     `envPrefix:"LOG_"`
	OTEL    OTELConfig    `envPrefix:"OTEL_"`
	Demo    DemoConfig    `envPrefix:"DEMO_"`
	WS      WSConfig      `envPrefix:"WS_"`
	Client  ClientConfig  `envPrefix:"CLIENT_"`
}

type SessionConfig struct {
	Epsilon          float64 `env:"EPSILON"            envDefault:"1e-6"`
	AckMissThreshold int     `env:"ACK_MISS_THRESHOLD" envDefault:"3"`
	PendingCapacity  int     `env:"PENDING_CAPACITY"   envDefault:"32"`
	ReorderWindow    int     `env:"REORDER_WINDOW"     envDefault:"4"`
	HistoryCapacity  int     `env:"HISTORY_CAPACITY"   envDefault:"32"`
}

type LogConfig struct {
	Sinks         []string      `env:"SINKS"          envDefault:"console" envSeparator:","`
	Level         string        `env:"LEVEL"          envDefault:"info"`
	JSONPath      string        `env:"JSON_PATH"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"2s"`
	BufferSize    int           `env:"BUFFER_SIZE"    envDefault:"512"`

	// Debug enables the per-tick telemetry line.
	Debug bool `env:"DEBUG"`
}

type OTELConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"true"`
	Endpoint string `env:"ENDPOINT"`
}

type DemoConfig struct {
	Bodies     int   `env:"BODIES"      envDefault:"16"`
	Seed       int64 `env:"SEED"        envDefault:"1"`
	SoundEvery int   `env:"SOUND_EVERY" envDefault:"30"`
}

type WSConfig struct {
	InboxSize  int           `env:"INBOX_SIZE"  envDefault:"64"`
	OutboxSize int           `env:"OUTBOX_SIZE" envDefault:"64"`
	WriteWait  time.Duration `env:"WRITE_WAIT"  envDefault:"10s"`
}

type ClientConfig struct {
	Server      string        `env:"SERVER"       envDefault:"ws://localhost:8080/ws"`
	Peer        string        `env:"PEER"`
	ReportEvery time.Duration `env:"REPORT_EVERY" envDefault:"5s"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: env.ToMap(os.Environ())})
}

// LoadFrom reads values from vars, keyed by full variable name.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the loop cannot run with.
func (c Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("%sTICK_RATE must be positive, got %d", Prefix, c.TickRate)
	}
	if c.Demo.Bodies < 0 {
		return fmt.Errorf("%sDEMO_BODIES must not be negative, got %d", Prefix, c.Demo.Bodies)
	}
	if _, err := logging.ParseSeverity(c.Log.Level); err != nil {
		return fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	for _, sink := range c.Log.Sinks {
		switch strings.TrimSpace(sink) {
		case logging.SinkConsole, logging.SinkJSON:
		default:
			return fmt.Errorf("%sLOG_SINKS: unknown sink %q", Prefix, sink)
		}
	}
	return nil
}

// SessionConfig converts to the session package's config.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Epsilon:          c.Session.Epsilon,
		AckMissThreshold: c.Session.AckMissThreshold,
		PendingCapacity:  c.Session.PendingCapacity,
		ReorderWindow:    c.Session.ReorderWindow,
		HistoryCapacity:  c.Session.HistoryCapacity,
	}.Normalize()
}

// LoggingConfig converts to the router config.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = nil
	for _, sink := range c.Log.Sinks {
		cfg.EnabledSinks = append(cfg.EnabledSinks, strings.TrimSpace(sink))
	}
	if c.Log.BufferSize > 0 {
		cfg.BufferSize = c.Log.BufferSize
	}
	cfg.MinimumSeverity, _ = logging.ParseSeverity(c.Log.Level)
	cfg.JSON.FilePath = c.Log.JSONPath
	if c.Log.FlushInterval > 0 {
		cfg.JSON.FlushInterval = c.Log.FlushInterval
	}
	return cfg
}

func (c Config) TracingConfig(service string) tracing.Config {
	return tracing.Config{Enabled: c.OTEL.Enabled, Endpoint: c.OTEL.Endpoint, ServiceName: service}
}

func (c Config) DriftConfig() sim.DriftConfig {
	cfg := sim.DefaultDriftConfig()
	cfg.Bodies = c.Demo.Bodies
	cfg.Seed = c.Demo.Seed
	cfg.SoundEvery = c.Demo.SoundEvery
	return cfg
}

func (c Config) LoopConfig() sim.LoopConfig {
	return sim.LoopConfig{TickRate: c.TickRate, CatchupMaxTicks: c.CatchupMaxTicks}
}

// ConnConfig converts to the websocket adapter config. Publisher and Logger
// are left for the caller.
func (c Config) ConnConfig() ws.Config {
	cfg := ws.DefaultConfig()
	cfg.InboxSize = c.WS.InboxSize
	cfg.OutboxSize = c.WS.OutboxSize
	cfg.WriteWait = c.WS.WriteWait
	return cfg
}
