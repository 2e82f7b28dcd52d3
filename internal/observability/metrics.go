package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atmo"

// Metrics holds the Prometheus counters, histograms, and gauges for alert map production.
type Metrics struct {
	BatchesTotal     *prometheus.CounterVec // labels: outcome={success,error}
	BatchDuration    prometheus.Histogram
	BatchesPublished prometheus.Counter
	CellsClassified  prometheus.Counter
	NoDataCells      prometheus.Counter
	ClassCells       *prometheus.CounterVec // labels: class
	ClassesLoaded    prometheus.Gauge
	ClassLoadErrors  *prometheus.CounterVec // labels: kind
	RenderErrors     *prometheus.CounterVec // labels: artifact={palette,legend,categorical,styled}
	ClassifyDuration prometheus.Histogram
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      help("Daily batches processed, by outcome."),
		}, []string{"outcome"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      help("Duration of a complete convert-merge-classify-style cycle for one day."),
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		BatchesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_published_total",
			Help:      help("Batch completion events written to Kafka."),
		}),
		CellsClassified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_classified_total",
			Help:      help("Grid cells assigned to a class."),
		}),
		NoDataCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodata_cells_total",
			Help:      help("Grid cells left as nodata."),
		}),
		ClassCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "class_cells_total",
			Help:      help("Grid cells per alert class label."),
		}, []string{"class"}),
		ClassesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "class_definitions_loaded",
			Help:      help("Number of class definitions in the most recent successful load."),
		}),
		ClassLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "class_load_errors_total",
			Help:      help("Class definition load failures, by error kind."),
		}, []string{"kind"}),
		RenderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      help("Artifact rendering failures, by artifact."),
		}, []string{"artifact"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      help("Time spent binning one merged grid."),
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BatchesTotal,
		m.BatchDuration,
		m.BatchesPublished,
		m.CellsClassified,
		m.NoDataCells,
		m.ClassCells,
		m.ClassesLoaded,
		m.ClassLoadErrors,
		m.RenderErrors,
		m.ClassifyDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// NewUnregisteredMetrics creates Metrics for a caller-owned registry.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(true)
}

// Register adds every metric to reg. Used by one-shot commands that export a
// private registry to a textfile.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
