package buffer

import "github.com/c360/tidewatch/metric"

// Option configures a Ring at construction time.
type Option[T any] func(*options[T])

type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   func(T)
	metricsReg     *metric.Registry
	metricsPrefix  string
	metrics        *ringMetrics
}

func newOptions[T any](opts ...Option[T]) *options[T] {
	o := &options[T]{overflowPolicy: DropOldest}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithOverflowPolicy sets the behavior for appends against a full buffer.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.overflowPolicy = policy
	}
}

// WithDropCallback registers a callback invoked with each dropped item.
// The callback runs outside the buffer lock.
func WithDropCallback[T any](fn func(T)) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = fn
	}
}

// WithMetrics exposes buffer statistics as Prometheus metrics under the
// given component prefix.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(o *options[T]) {
		o.metricsReg = registry
		o.metricsPrefix = prefix
	}
}
