package metric

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics holds the core metric set shared across the ingestion
// pipeline. Per-component metrics live with their components; these cover
// the record path itself.
type PipelineMetrics struct {
	MessagesReceived   *prometheus.CounterVec // raw arrivals, by stream
	ValidRecords       *prometheus.CounterVec // post-validation, by stream and category
	ValidationDrops    *prometheus.CounterVec // by category and reason
	DedupSuppressed    *prometheus.CounterVec // by category
	BufferDropped      *prometheus.CounterVec // drop-oldest evictions, by category
	BufferOccupancy    *prometheus.GaugeVec   // by category
	PersistenceErrors  prometheus.Counter
	AnalyticsCalls     *prometheus.CounterVec // by operation
	AnalyticsFailures  *prometheus.CounterVec // by operation
	BatchFirings       *prometheus.CounterVec // by trigger (timer, high_water)
	Escalations        prometheus.Counter
	StreamsConnected   prometheus.Gauge
	Reconnects         *prometheus.CounterVec // by stream
	ProcessingDuration prometheus.Histogram
}

// NewPipelineMetrics creates and registers the core pipeline metrics.
// A nil registry returns nil, disabling metrics in the caller.
func NewPipelineMetrics(registry *Registry) (*PipelineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &PipelineMetrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "messages_received_total",
			Help:      "Raw payload arrivals before validation",
		}, []string{"stream"}),

		ValidRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "valid_records_total",
			Help:      "Records that passed validation and cleaning",
		}, []string{"stream", "category"}),

		ValidationDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "validation_drops_total",
			Help:      "Records dropped by validation",
		}, []string{"category", "reason"}),

		DedupSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "dedup_suppressed_total",
			Help:      "Records suppressed as duplicates",
		}, []string{"category"}),

		BufferDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "buffer_dropped_total",
			Help:      "Records evicted by drop-oldest overflow",
		}, []string{"category"}),

		BufferOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "buffer_occupancy",
			Help:      "Current ingestion buffer occupancy",
		}, []string{"category"}),

		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "persistence_failures_total",
			Help:      "Failed persistence gateway writes",
		}),

		AnalyticsCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "analytics_calls_total",
			Help:      "Analytics engine invocations",
		}, []string{"operation"}),

		AnalyticsFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "analytics_failures_total",
			Help:      "Failed analytics engine invocations",
		}, []string{"operation"}),

		BatchFirings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "batch_firings_total",
			Help:      "Batch processor firings by trigger",
		}, []string{"trigger"}),

		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Critical event escalations persisted",
		}),

		StreamsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "streams_connected",
			Help:      "Streams currently in the connected state",
		}),

		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "reconnects_total",
			Help:      "Stream reconnect attempts",
		}, []string{"stream"}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "Per-record dispatch duration",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	registrations := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"messages_received", m.MessagesReceived},
		{"valid_records", m.ValidRecords},
		{"validation_drops", m.ValidationDrops},
		{"dedup_suppressed", m.DedupSuppressed},
		{"buffer_dropped", m.BufferDropped},
		{"buffer_occupancy", m.BufferOccupancy},
		{"persistence_failures", m.PersistenceErrors},
		{"analytics_calls", m.AnalyticsCalls},
		{"analytics_failures", m.AnalyticsFailures},
		{"batch_firings", m.BatchFirings},
		{"escalations", m.Escalations},
		{"streams_connected", m.StreamsConnected},
		{"reconnects", m.Reconnects},
		{"processing_duration", m.ProcessingDuration},
	}

	for _, reg := range registrations {
		if err := registry.Register("pipeline", reg.name, reg.collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}
