package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(reg, "netsync")

	metrics.Add("test_counter_total", 2)
	metrics.Add("test_counter_total", 3)
	metrics.Store("test_gauge", 7)
	metrics.Store("test_gauge", 4)

	snapshot := metrics.Snapshot()
	if got := snapshot["test_counter_total"]; got != 5 {
		t.Fatalf("unexpected counter value: %d", got)
	}
	if got := snapshot["test_gauge"]; got != 4 {
		t.Fatalf("unexpected gauge value: %d", got)
	}

	count, err := testutil.GatherAndCount(reg, "netsync_test_counter_total", "netsync_test_gauge")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 registered series, got %d", count)
	}

	// A key already used as a counter cannot become a gauge.
	metrics.Store("test_counter_total", 100)
	if got := metrics.Snapshot()["test_counter_total"]; got != 5 {
		t.Fatalf("expected counter to be untouched, got %d", got)
	}
}

func TestPrometheusMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMetrics(reg, "netsync")
	second := NewPrometheusMetrics(reg, "netsync")

	first.Add("shared_total", 1)
	second.Add("shared_total", 1)

	count, err := testutil.GatherAndCount(reg, "netsync_shared_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single shared series, got %d", count)
	}
}

func TestNilMetricsDoNotPanic(t *testing.T) {
	var metrics *PrometheusMetrics
	metrics.Add("ignored", 1)
	metrics.Store("ignored", 1)
	if snapshot := metrics.Snapshot(); snapshot != nil {
		t.Fatalf("expected nil snapshot, got %v", snapshot)
	}
}
