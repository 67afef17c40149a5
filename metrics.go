package rangeindex

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a MultiFieldIndex emits to.
// Registration is opt-in (see NewMetrics) so a test or embedded caller that
// constructs many indexes in one process doesn't hit duplicate-registration
// panics against the default registry.
type Metrics struct {
	WritesEnqueued          *prometheus.CounterVec
	WritesApplied           *prometheus.CounterVec
	WritesDropped           *prometheus.CounterVec
	ReclaimQueueLen         prometheus.Gauge
	ReclaimLatency          prometheus.Histogram
	PostingSetConversions   *prometheus.CounterVec
	QueryLatency            *prometheus.HistogramVec
	IntersectionDriverWidth prometheus.Histogram
}

// NewMetrics builds the collector set. Registration against reg happens
// only when reg is non-nil, mirroring the teacher pack's registered-by-
// default constructor but letting callers pass a fresh
// prometheus.NewRegistry() in tests instead of polluting the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WritesEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangeindex_writes_enqueued_total",
				Help: "Total write operations enqueued, by op (add, delete).",
			},
			[]string{"op"},
		),
		WritesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangeindex_writes_applied_total",
				Help: "Total write operations applied to a field index, by op.",
			},
			[]string{"op"},
		),
		WritesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangeindex_writes_dropped_total",
				Help: "Total write operations dropped, by reason.",
			},
			[]string{"reason"},
		),
		ReclaimQueueLen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rangeindex_reclaim_queue_length",
				Help: "Current number of buffers pending disposal in the reclaim queue.",
			},
		),
		ReclaimLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rangeindex_reclaim_latency_seconds",
				Help:    "Time a retired buffer spent in the reclaim queue before release.",
				Buckets: prometheus.DefBuckets,
			},
		),
		PostingSetConversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangeindex_posting_set_conversions_total",
				Help: "Total dense<->sparse PostingSet conversions, by field and direction.",
			},
			[]string{"field_id", "direction"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rangeindex_query_latency_seconds",
				Help:    "MultiFieldIndex.Search latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"filter_count"},
		),
		IntersectionDriverWidth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rangeindex_intersection_driver_width",
				Help:    "Word count of the smallest (driver) bitmap chosen for an intersection.",
				Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.WritesEnqueued,
			m.WritesApplied,
			m.WritesDropped,
			m.ReclaimQueueLen,
			m.ReclaimLatency,
			m.PostingSetConversions,
			m.QueryLatency,
			m.IntersectionDriverWidth,
		)
	}
	return m
}
