package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// calibration pipeline and the archive beneath it.
type Metrics struct {
	FlightsProcessed *prometheus.CounterVec // labels: disposition={archived,deferred,unresolved,failed}
	BatchRunning     prometheus.Gauge
	WorkersBusy      prometheus.Gauge

	// Batch processing metrics.
	BatchDuration     prometheus.Histogram
	AlignmentDuration prometheus.Histogram

	// Archive and notifier metrics.
	ArchiveOps     *prometheus.CounterVec // labels: op={add,reprocess,delete,search,load,scan}, outcome={success,error}
	NotifyFailures prometheus.Counter
	NotifyEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FlightsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dose_etl",
			Name:      "flights_processed_total",
			Help:      "Flights taken through calibration, by final disposition.",
		}, []string{"disposition"}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dose_etl",
			Name:      "batch_running",
			Help:      "1 while a calibration batch is in flight, 0 otherwise.",
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dose_etl",
			Name:      "workers_busy",
			Help:      "Number of workers currently calibrating a flight.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dose_etl",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete intake-calibrate-archive batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		AlignmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dose_etl",
			Name:      "alignment_duration_seconds",
			Help:      "Duration of the offset search and scaling fit per flight.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		ArchiveOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dose_etl",
			Name:      "archive_ops_total",
			Help:      "Archive operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dose_etl",
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be handed off downstream.",
		}),
		NotifyEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dose_etl",
			Name:      "notify_enabled",
			Help:      "1 when downstream notification is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.FlightsProcessed,
		m.BatchRunning,
		m.WorkersBusy,
		m.BatchDuration,
		m.AlignmentDuration,
		m.ArchiveOps,
		m.NotifyFailures,
		m.NotifyEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FlightsProcessed:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dose_etl", Name: "flights_processed_total"}, []string{"disposition"}),
		BatchRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dose_etl", Name: "batch_running"}),
		WorkersBusy:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dose_etl", Name: "workers_busy"}),
		BatchDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dose_etl", Name: "batch_duration_seconds"}),
		AlignmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dose_etl", Name: "alignment_duration_seconds"}),
		ArchiveOps:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dose_etl", Name: "archive_ops_total"}, []string{"op", "outcome"}),
		NotifyFailures:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dose_etl", Name: "notify_failures_total"}),
		NotifyEnabled:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dose_etl", Name: "notify_enabled"}),
	}
}
