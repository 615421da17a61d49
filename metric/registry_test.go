package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tidewatch/errors"
)

func TestRegisterAndUnregister(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "test_counter_total",
		Help:      "test",
	})

	require.NoError(t, registry.Register("dispatcher", "test_counter", counter))

	// Same component/name pair is rejected.
	err := registry.Register("dispatcher", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.True(t, registry.Unregister("dispatcher", "test_counter"))
	assert.False(t, registry.Unregister("dispatcher", "test_counter"))

	// After unregistering, the same name registers cleanly again.
	require.NoError(t, registry.Register("dispatcher", "test_counter", counter))
}

func TestRegisterPrometheusConflict(t *testing.T) {
	registry := NewRegistry()

	make := func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conflicting_total",
			Help:      "test",
		})
	}

	require.NoError(t, registry.Register("a", "first", make()))

	// Distinct registry key but identical Prometheus descriptor.
	err := registry.Register("b", "second", make())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestHandlerServesMetrics(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "handler_test_total",
		Help:      "test",
	})
	require.NoError(t, registry.Register("test", "handler_test", counter))
	counter.Inc()

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tidewatch_handler_test_total 1")
}

func TestNewPipelineMetrics(t *testing.T) {
	m, err := NewPipelineMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m, "nil registry disables metrics")

	registry := NewRegistry()
	m, err = NewPipelineMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.MessagesReceived.WithLabelValues("ais-feed").Inc()
	m.ValidRecords.WithLabelValues("ais-feed", "vessel_position").Inc()
	m.StreamsConnected.Set(3)

	// Registering the core set twice must fail.
	_, err = NewPipelineMetrics(registry)
	require.Error(t, err)
}
