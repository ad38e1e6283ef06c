// Package app composes the server and client processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	stdnet "net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"arenasync/internal/archive"
	"arenasync/internal/config"
	"arenasync/internal/hub"
	servernet "arenasync/internal/net"
	"arenasync/internal/net/ws"
	"arenasync/internal/replica"
	"arenasync/internal/sim"
	"arenasync/internal/telemetry"
	"arenasync/internal/tracing"
	"arenasync/logging"
	loggingSinks "arenasync/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Options carries process-level collaborators. Zero values use the process
// defaults.
type Options struct {
	Logger telemetry.Logger
	// Stdout receives console log events.
	Stdout io.Writer
	// Listener overrides listening on Config.Addr.
	Listener stdnet.Listener
}

func (o Options) normalize() Options {
	if o.Logger == nil {
		o.Logger = telemetry.WrapLogger(log.Default())
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	return o
}

// Run serves the demo world until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	opts = opts.normalize()
	logger := opts.Logger

	shutdownTracing, err := tracing.Setup(ctx, cfg.TracingConfig("arenasync-server"))
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("failed to flush traces: %v", err)
		}
	}()

	router, err := newRouter(cfg, opts)
	if err != nil {
		return err
	}
	defer closeRouter(router, logger)

	counters := telemetry.NewCounters(cfg.Log.Debug, logger)

	var recorder hub.Recorder
	if cfg.ArchivePath != "" {
		frames, err := archive.Open(cfg.ArchivePath, archive.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer func() {
			if err := frames.Close(); err != nil {
				logger.Printf("failed to close archive: %v", err)
			}
		}()
		recorder = frames
	}

	drift := sim.NewDrift(cfg.DriftConfig())
	h := hub.New(drift, hub.Config{
		Session:   cfg.SessionConfig(),
		TickRate:  cfg.TickRate,
		Logger:    logger,
		Publisher: router,
		Telemetry: counters,
		Recorder:  recorder,
	})

	connCfg := cfg.ConnConfig()
	connCfg.Publisher = router
	connCfg.Logger = logger
	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		Logger:    logger,
		WebSocket: ws.NewHandler(h, connCfg),
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	listener := opts.Listener
	if listener == nil {
		listener, err = stdnet.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
		}
	}

	loop := sim.NewLoop(drift, cfg.LoopConfig(), sim.LoopHooks{AfterStep: h.AfterStep}, nil)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := loop.Run(groupCtx)
		h.Close(context.Background())
		return err
	})
	group.Go(func() error {
		logger.Printf("server listening on %s", listener.Addr())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// RunClient connects to the configured server and mirrors its world until
// ctx is cancelled or the connection drops.
func RunClient(ctx context.Context, cfg config.Config, opts Options) error {
	opts = opts.normalize()
	logger := opts.Logger

	shutdownTracing, err := tracing.Setup(ctx, cfg.TracingConfig("arenasync-client"))
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("failed to flush traces: %v", err)
		}
	}()

	router, err := newRouter(cfg, opts)
	if err != nil {
		return err
	}
	defer closeRouter(router, logger)

	peer := cfg.Client.Peer
	if peer == "" {
		peer = "replica-" + uuid.NewString()
	}
	connCfg := cfg.ConnConfig()
	connCfg.Publisher = router
	connCfg.Logger = logger
	conn, err := ws.Dial(ctx, cfg.Client.Server, peer, connCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Printf("connected to %s as %s", cfg.Client.Server, peer)

	client := replica.New("server", conn, replica.Config{
		Session:     cfg.SessionConfig(),
		TickRate:    cfg.TickRate,
		Logger:      logger,
		Publisher:   router,
		Telemetry:   telemetry.NewCounters(cfg.Log.Debug, logger),
		ReportEvery: cfg.Client.ReportEvery,
	})
	return client.Run(ctx)
}

func newRouter(cfg config.Config, opts Options) (*logging.Router, error) {
	logConfig := cfg.LoggingConfig()
	var named []logging.NamedSink
	if logConfig.HasSink(logging.SinkConsole) {
		named = append(named, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsole(opts.Stdout)})
	}
	if logConfig.HasSink(logging.SinkJSON) {
		var sink *loggingSinks.JSON
		if logConfig.JSON.FilePath != "" {
			opened, err := loggingSinks.OpenJSONFile(logConfig.JSON.FilePath, logConfig.JSON.FlushInterval)
			if err != nil {
				return nil, fmt.Errorf("failed to open json log: %w", err)
			}
			sink = opened
		} else {
			sink = loggingSinks.NewJSON(opts.Stdout, logConfig.JSON.FlushInterval)
		}
		named = append(named, logging.NamedSink{Name: logging.SinkJSON, Sink: sink})
	}
	return logging.NewRouter(nil, logConfig, named, opts.Logger), nil
}

func closeRouter(router *logging.Router, logger telemetry.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		logger.Printf("failed to close logging router: %v", err)
	}
}
