package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsSingletonPerNamespace(t *testing.T) {
	a := NewMetrics("cachebay_test_metrics")
	b := NewMetrics("cachebay_test_metrics")
	assert.Same(t, a, b)
}

func TestMetricsCountersIncrement(t *testing.T) {
	m := NewMetrics("cachebay_test_metrics_increment")
	m.WritesTotal.WithLabelValues("network").Inc()
	m.CanonicalRebuildsTotal.WithLabelValues("infinite").Inc()
	m.RecordsTotal.Set(3)
	m.WatchersTotal.Set(1)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
