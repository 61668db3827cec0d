// Package metrics provides Prometheus metrics for the stature analysis engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors for an engine process.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	enabled   bool
	registry  prometheus.Registerer

	// Stage outcomes per analysis name.
	analysesCompleted *prometheus.CounterVec
	analysesSkipped   *prometheus.CounterVec
	analysesFailed    *prometheus.CounterVec

	// Run-level observations.
	runsTotal   prometheus.Counter
	runDuration prometheus.Histogram
	datasetRows prometheus.Gauge
	sliceFits   prometheus.Counter
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for the run duration histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithEnabled enables or disables metric recording.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Global manager. The engine is a single-run batch process, so a process-wide
// singleton mirrors the Prometheus default-registry model.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "stature",
		subsystem: "engine",
		buckets:   prometheus.DefBuckets,
		enabled:   true,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.analysesCompleted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analyses_completed_total",
		Help:      "Analyses that produced a populated result, by analysis name",
	}, []string{"analysis"})

	m.analysesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analyses_skipped_total",
		Help:      "Analyses recorded as skipped, by analysis name and reason",
	}, []string{"analysis", "reason"})

	m.analysesFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analyses_failed_total",
		Help:      "Analyses that failed with an unclassified error, by analysis name",
	}, []string{"analysis"})

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Completed engine runs",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a full engine run",
		Buckets:   m.buckets,
	})

	m.datasetRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_rows",
		Help:      "Rows in the dataset of the most recent run",
	})

	m.sliceFits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "slice_fits_total",
		Help:      "Individual per-slice model fits attempted",
	})

	return m
}

// Registry returns the registry backing the global manager, for exposition.
func Registry() *prometheus.Registry { return customRegistry }

// RecordAnalysisCompleted increments the completed counter for an analysis.
func RecordAnalysisCompleted(analysis string) {
	if globalManager.enabled {
		globalManager.analysesCompleted.WithLabelValues(analysis).Inc()
	}
}

// RecordAnalysisSkipped increments the skipped counter for an analysis.
func RecordAnalysisSkipped(analysis, reason string) {
	if globalManager.enabled {
		globalManager.analysesSkipped.WithLabelValues(analysis, reason).Inc()
	}
}

// RecordAnalysisFailed increments the failure counter for an analysis.
func RecordAnalysisFailed(analysis string) {
	if globalManager.enabled {
		globalManager.analysesFailed.WithLabelValues(analysis).Inc()
	}
}

// RecordRun records a completed run and its duration in seconds.
func RecordRun(seconds float64) {
	if globalManager.enabled {
		globalManager.runsTotal.Inc()
		globalManager.runDuration.Observe(seconds)
	}
}

// UpdateDatasetRows sets the dataset row gauge.
func UpdateDatasetRows(rows int) {
	if globalManager.enabled {
		globalManager.datasetRows.Set(float64(rows))
	}
}

// RecordSliceFit counts one attempted per-slice model fit.
func RecordSliceFit() {
	if globalManager.enabled {
		globalManager.sliceFits.Inc()
	}
}
