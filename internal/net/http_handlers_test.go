package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arenasync/internal/hub"
	"arenasync/internal/net/frame"
	"arenasync/internal/net/ws"
	"arenasync/internal/sim"
)

func TestHealth(t *testing.T) {
	h := hub.New(sim.NewDrift(sim.DefaultDriftConfig()), hub.Config{})
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestDiagnosticsReportsSessions(t *testing.T) {
	h := hub.New(sim.NewDrift(sim.DefaultDriftConfig()), hub.Config{TickRate: 15})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{WebSocket: ws.NewHandler(h, ws.Config{})}))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?id=erin", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	// The upgrade queues the peer; wait for it to be admitted and sent a frame.
	deadline := time.Now().Add(2 * time.Second)
	for len(h.Diagnostics().Sessions) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("peer was never admitted")
		}
		h.Tick(context.Background())
		time.Sleep(5 * time.Millisecond)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	f, err := frame.Parse(data)
	if kind != websocket.BinaryMessage || err != nil || f.Kind != frame.KindFull {
		t.Fatalf("expected a binary full snapshot frame, got kind=%d err=%v", kind, err)
	}

	rec := httptest.NewRecorder()
	NewHTTPHandler(h, HTTPHandlerConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected application/json, got %q", contentType)
	}
	var payload struct {
		Status   string `json:"status"`
		TickRate int    `json:"tickRate"`
		Sessions []struct {
			Peer   string `json:"peer"`
			State  string `json:"state"`
			Socket *struct {
				Outbox int `json:"outbox"`
			} `json:"socket"`
		} `json:"sessions"`
		Telemetry struct {
			FullSent uint64 `json:"fullSent"`
		} `json:"telemetry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.Status != "ok" || payload.TickRate != 15 || len(payload.Sessions) != 1 {
		t.Fatalf("unexpected diagnostics %s", rec.Body.String())
	}
	if payload.Sessions[0].Peer != "erin" || payload.Sessions[0].Socket == nil || payload.Telemetry.FullSent != 1 {
		t.Fatalf("unexpected session entry %s", rec.Body.String())
	}
}

func TestDiagnosticsRejectsWrongMethod(t *testing.T) {
	h := hub.New(sim.NewDrift(sim.DefaultDriftConfig()), hub.Config{})
	resp := httptest.NewRecorder()
	NewHTTPHandler(h, HTTPHandlerConfig{}).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/diagnostics", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
