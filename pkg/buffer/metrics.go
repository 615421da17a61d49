package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tidewatch/metric"
)

// ringMetrics exposes buffer occupancy and drops as Prometheus metrics.
type ringMetrics struct {
	occupancy prometheus.Gauge
	dropped   prometheus.Counter
}

func newRingMetrics(registry *metric.Registry, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "occupancy",
			Help:        "Current number of buffered items",
			ConstLabels: prometheus.Labels{"buffer": prefix},
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "dropped_total",
			Help:        "Items dropped on overflow",
			ConstLabels: prometheus.Labels{"buffer": prefix},
		}),
	}

	if err := registry.Register(prefix, "buffer_occupancy", m.occupancy); err != nil {
		return nil, err
	}
	if err := registry.Register(prefix, "buffer_dropped", m.dropped); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) updateSize(size int) {
	m.occupancy.Set(float64(size))
}

func (m *ringMetrics) recordDrop() {
	m.dropped.Inc()
}
