package telemetry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on top of a Prometheus registry.
// Collectors are created and registered the first time a key is seen.
type PrometheusMetrics struct {
	registerer prometheus.Registerer
	namespace  string

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	values   map[string]*atomic.Uint64
}

// NewPrometheusMetrics registers collectors on reg. A nil reg uses the default
// registerer.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registerer: reg,
		namespace:  namespace,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		values:     make(map[string]*atomic.Uint64),
	}
}

func (m *PrometheusMetrics) Add(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	counter, value := m.counter(key)
	if counter == nil {
		return
	}
	counter.Add(float64(delta))
	value.Add(delta)
}

func (m *PrometheusMetrics) Store(key string, v uint64) {
	if m == nil || key == "" {
		return
	}
	gauge, value := m.gauge(key)
	if gauge == nil {
		return
	}
	gauge.Set(float64(v))
	value.Store(v)
}

// Snapshot returns the current value of every key seen so far.
func (m *PrometheusMetrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]uint64, len(m.values))
	for key, value := range m.values {
		snapshot[key] = value.Load()
	}
	return snapshot
}

// Keys lists the known metric keys in sorted order.
func (m *PrometheusMetrics) Keys() []string {
	snapshot := m.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *PrometheusMetrics) counter(key string) (prometheus.Counter, *atomic.Uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[key]; ok {
		return c, m.values[key]
	}
	if _, isGauge := m.gauges[key]; isGauge {
		return nil, nil
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      key,
		Help:      "netsync counter " + key,
	})
	collector, ok := m.register(c).(prometheus.Counter)
	if !ok {
		return nil, nil
	}
	m.counters[key] = collector
	m.values[key] = new(atomic.Uint64)
	return collector, m.values[key]
}

func (m *PrometheusMetrics) gauge(key string) (prometheus.Gauge, *atomic.Uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[key]; ok {
		return g, m.values[key]
	}
	if _, isCounter := m.counters[key]; isCounter {
		return nil, nil
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      key,
		Help:      "netsync gauge " + key,
	})
	collector, ok := m.register(g).(prometheus.Gauge)
	if !ok {
		return nil, nil
	}
	m.gauges[key] = collector
	m.values[key] = new(atomic.Uint64)
	return collector, m.values[key]
}

// register returns the collector now serving the key, reusing one registered
// earlier on the same registry.
func (m *PrometheusMetrics) register(c prometheus.Collector) prometheus.Collector {
	if err := m.registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
		return nil
	}
	return c
}
