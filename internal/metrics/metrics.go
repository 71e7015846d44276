// Package metrics exposes Prometheus collectors for the report pipeline.
// Every Metrics value owns its registry, and all methods are safe on a nil
// receiver so components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes.
const (
	CacheMemory = "memory"
	CacheDisk   = "disk"
	CacheMiss   = "miss"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics contains the Prometheus collectors of the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups       *prometheus.CounterVec
	CompileDuration    prometheus.Histogram
	CompileErrors      prometheus.Counter
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ActiveGenerations  prometheus.Gauge
	CatalogSize        *prometheus.GaugeVec
	Scans              *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_compile_cache_lookups_total",
			Help: "Template cache lookups by outcome",
		}, []string{"result"}),

		CompileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reports_compile_duration_seconds",
			Help:    "Duration of template compilations from source",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		CompileErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "reports_compile_errors_total",
			Help: "Total number of failed template compilations",
		}),

		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_generations_total",
			Help: "Report generations by format and outcome",
		}, []string{"format", "outcome"}),

		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reports_generation_duration_seconds",
			Help:    "Duration of report generations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"format"}),

		ActiveGenerations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reports_active_generations",
			Help: "Number of generations currently holding a permit",
		}),

		CatalogSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reports_catalog_size",
			Help: "Number of catalog entries by source",
		}, []string{"source"}),

		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_discovery_scans_total",
			Help: "Discovery scans by trigger",
		}, []string{"trigger"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// ObserveCacheLookup counts one cache lookup.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveCompile records one compilation from source.
func (m *Metrics) ObserveCompile(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CompileDuration.Observe(d.Seconds())
	if err != nil {
		m.CompileErrors.Inc()
	}
}

// ObserveGeneration records one finished generation.
func (m *Metrics) ObserveGeneration(format, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(format, outcome).Inc()
	m.GenerationDuration.WithLabelValues(format).Observe(d.Seconds())
}

// SetActiveGenerations publishes the number of held permits.
func (m *Metrics) SetActiveGenerations(n int) {
	if m == nil {
		return
	}
	m.ActiveGenerations.Set(float64(n))
}

// SetCatalogSize publishes the catalog size for one source.
func (m *Metrics) SetCatalogSize(source string, n int) {
	if m == nil {
		return
	}
	m.CatalogSize.WithLabelValues(source).Set(float64(n))
}

// ObserveScan counts one discovery scan.
func (m *Metrics) ObserveScan(trigger string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(trigger).Inc()
}
