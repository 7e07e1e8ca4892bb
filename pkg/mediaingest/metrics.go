package mediaingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	records         *prometheus.CounterVec
	variants        prometheus.Counter
	cleanupFailures prometheus.Counter
	duration        prometheus.Histogram
}

// NewMetrics creates and registers the ingest collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Storage notifications handled by the ingest worker, by outcome.",
		}, []string{"outcome"}),
		variants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "ingest",
			Name:      "variants_total",
			Help:      "Resized variants uploaded to the public prefix.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "ingest",
			Name:      "cleanup_failures_total",
			Help:      "Raw uploads that could not be deleted after processing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time spent processing one storage notification.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{m.records, m.variants, m.cleanupFailures, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRecord(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) incVariants() {
	if m == nil {
		return
	}
	m.variants.Inc()
}

func (m *Metrics) incCleanupFailures() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
