package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netsync/internal/observability"
	"netsync/internal/sim"
	"netsync/internal/telemetry"
)

type stubHost struct {
	resyncs  int
	commands []sim.Command
	reject   string
}

func (h *stubHost) Role() string     { return "authority" }
func (h *stubHost) Tick() uint32     { return 42 }
func (h *stubHost) Diagnostics() any { return map[string]int{"peers": 2} }
func (h *stubHost) ResyncAll()       { h.resyncs++ }

func (h *stubHost) Submit(cmd sim.Command) (bool, string) {
	if h.reject != "" {
		return false, h.reject
	}
	h.commands = append(h.commands, cmd)
	return true, ""
}

func TestHTTPHealth(t *testing.T) {
	handler := NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestHTTPDiagnostics(t *testing.T) {
	handler := NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if payload["role"] != "authority" || payload["tick"] != float64(42) {
		t.Fatalf("unexpected diagnostics payload %v", payload)
	}
	runtime, ok := payload["runtime"].(map[string]any)
	if !ok || runtime["peers"] != float64(2) {
		t.Fatalf("expected runtime diagnostics, got %v", payload["runtime"])
	}
}

func TestHTTPResyncRequiresPost(t *testing.T) {
	host := &stubHost{}
	handler := NewHTTPHandler(host, HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/resync", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/resync", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if host.resyncs != 1 {
		t.Fatalf("expected one resync, got %d", host.resyncs)
	}
}

func TestHTTPMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(registry, "netsync")
	metrics.Add("replication_envelopes_sent_total", 3)

	handler := NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(resp.Body.String(), "netsync_replication_envelopes_sent_total 3") {
		t.Fatalf("expected counter in exposition, got:\n%s", resp.Body.String())
	}
}

func TestHTTPSocketMountedOnlyWhenConfigured(t *testing.T) {
	handler := NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a socket handler, got %d", resp.Code)
	}
}

func TestHTTPCommands(t *testing.T) {
	host := &stubHost{}
	handler := NewHTTPHandler(host, HTTPHandlerConfig{})

	body := `{"entity":3,"type":"Rename","rename":{"name":"ada"}}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(body)))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(host.commands) != 1 {
		t.Fatalf("expected one submitted command, got %d", len(host.commands))
	}
	cmd := host.commands[0]
	if cmd.Entity != 3 || cmd.Type != sim.CommandRename || cmd.Rename == nil || cmd.Rename.Name != "ada" {
		t.Fatalf("unexpected command %+v", cmd)
	}

	host.reject = sim.CommandRejectQueueLimit
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(body)))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}

	host.reject = "invalid_command"
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(body)))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a rejected payload, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "invalid_command") {
		t.Fatalf("expected rejection reason in body, got %q", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{"entity":1}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing type, got %d", resp.Code)
	}
}

func TestHTTPPprofMountedWhenConfigured(t *testing.T) {
	handler := NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{
		Pprof: observability.Config{EnablePprof: true}.PprofHandler(),
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected pprof index, got %d", resp.Code)
	}

	handler = NewHTTPHandler(&stubHost{}, HTTPHandlerConfig{})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without profiling, got %d", resp.Code)
	}
}
