package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveCacheLookup(CacheMemory)
	m.ObserveCacheLookup(CacheMemory)
	m.ObserveCacheLookup(CacheMiss)
	m.ObserveCompile(5*time.Millisecond, nil)
	m.ObserveCompile(time.Millisecond, errors.New("bad"))
	m.ObserveGeneration("pdf", OutcomeSuccess, time.Second)
	m.SetActiveGenerations(3)
	m.SetCatalogSize("external", 4)
	m.ObserveScan("schedule")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheMemory)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompileErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("pdf", OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveGenerations))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CatalogSize.WithLabelValues("external")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("schedule")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCacheLookup(CacheDisk)
		m.ObserveCompile(time.Second, nil)
		m.ObserveGeneration("html", OutcomeError, time.Second)
		m.SetActiveGenerations(1)
		m.SetCatalogSize("embedded", 1)
		m.ObserveScan("manual")
	})
	assert.Nil(t, m.Registry())
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
