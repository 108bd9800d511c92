package indexsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync worker's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	records   *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
	lastBatch prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "inkwell"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexsync",
			Name:      "records_total",
			Help:      "Dirty records handled by the index sync worker, by outcome",
		},
		[]string{"result"},
	)

	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexsync",
			Name:      "runs_total",
			Help:      "Index sync passes, by outcome (ok, error, skipped)",
		},
		[]string{"result"},
	)

	m.duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexsync",
			Name:      "run_duration_seconds",
			Help:      "Time taken by one index sync pass",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	m.lastBatch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexsync",
			Name:      "last_batch_size",
			Help:      "Number of dirty records picked up by the most recent pass",
		},
	)

	m.registry.MustRegister(m.records, m.runs, m.duration, m.lastBatch)
	return m
}

// Registry returns the registry to expose over /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordRun(report Report, duration time.Duration, err error) {
	m.duration.Observe(duration.Seconds())
	m.lastBatch.Set(float64(report.Batch))
	m.records.WithLabelValues("upserted").Add(float64(report.Upserted))
	m.records.WithLabelValues("deleted").Add(float64(report.Deleted))
	m.records.WithLabelValues("conflict").Add(float64(report.Conflicts))
	m.records.WithLabelValues("failed").Add(float64(report.Failed))

	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSkipped() {
	m.runs.WithLabelValues("skipped").Inc()
}
