// Package net wires the server's HTTP surface.
package net

import (
	"encoding/json"
	nethttp "net/http"

	"arenasync/internal/hub"
	"arenasync/internal/telemetry"
)

// DiagnosticsSource provides the /diagnostics document.
type DiagnosticsSource interface {
	Diagnostics() hub.Diagnostics
}

type HTTPHandlerConfig struct {
	Logger telemetry.Logger
	// WebSocket serves /ws; nil leaves the route unregistered.
	WebSocket nethttp.Handler
}

func NewHTTPHandler(source DiagnosticsSource, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		data, err := json.Marshal(source.Diagnostics())
		if err != nil {
			logger.Printf("[http] failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.WebSocket != nil {
		mux.Handle("/ws", cfg.WebSocket)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
