// Package telemetry provides the optional prometheus metrics and otel
// tracing wired through the cache (spec SPEC_FULL §10.6, §11). Both are
// no-ops until explicitly enabled via config.Metrics/config.Tracing.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus counters exposed by a cache instance.
type Metrics struct {
	registry *prometheus.Registry

	RecordsTotal           prometheus.Gauge
	WritesTotal            *prometheus.CounterVec
	WatchersTotal          prometheus.Gauge
	CanonicalRebuildsTotal *prometheus.CounterVec
}

var (
	mu        sync.Mutex
	instances = map[string]*Metrics{}
)

// NewMetrics creates (or returns the cached singleton for) a Metrics
// collector registered under namespace.
func NewMetrics(namespace string) *Metrics {
	mu.Lock()
	defer mu.Unlock()

	if m, ok := instances[namespace]; ok {
		return m
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RecordsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Current number of records held in the store.",
		}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Total number of record writes, labeled by origin.",
		}, []string{"origin"}),
		WatchersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchers_total",
			Help:      "Current number of registered watchers.",
		}),
		CanonicalRebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canonical_rebuilds_total",
			Help:      "Total number of canonical connection rebuilds, labeled by mode.",
		}, []string{"mode"}),
	}

	registry.MustRegister(m.RecordsTotal, m.WritesTotal, m.WatchersTotal, m.CanonicalRebuildsTotal)
	instances[namespace] = m
	return m
}

// Registry exposes the underlying prometheus registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
