package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("supervisor", "12 streams running")
	m.UpdateUnhealthy("persistence", "sqlite locked")

	status, ok := m.Get("supervisor")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "supervisor", status.Component)
	assert.False(t, status.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.Len(t, m.GetAll(), 2)
}

func TestMonitorLatestReportWins(t *testing.T) {
	m := NewMonitor()
	m.UpdateDegraded("stream.ais", "reconnecting")
	m.UpdateHealthy("stream.ais", "connected")

	status, ok := m.Get("stream.ais")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Len(t, m.GetAll(), 1)
}

func TestAggregateUnhealthyWins(t *testing.T) {
	statuses := []Status{
		NewHealthy("a", "ok"),
		NewDegraded("b", "slow"),
		NewUnhealthy("c", "down"),
	}

	agg := Aggregate("tidewatch", statuses)
	assert.True(t, agg.IsUnhealthy())
	assert.False(t, agg.Healthy)
	assert.Contains(t, agg.Message, "c")
	assert.Len(t, agg.SubStatuses, 3)
}

func TestAggregateDegraded(t *testing.T) {
	agg := Aggregate("tidewatch", []Status{
		NewHealthy("a", "ok"),
		NewDegraded("b", "slow"),
	})
	assert.True(t, agg.IsDegraded())
}

func TestAggregateHealthOrdersSubStatuses(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("pipeline", "running")
	m.UpdateHealthy("stream.ports", "connected")
	m.UpdateHealthy("stream.ais", "connected")

	agg := m.AggregateHealth("tidewatch")
	require.Len(t, agg.SubStatuses, 3)
	assert.Equal(t, "pipeline", agg.SubStatuses[0].Component)
	assert.Equal(t, "stream.ais", agg.SubStatuses[1].Component)
	assert.Equal(t, "stream.ports", agg.SubStatuses[2].Component)
}

func TestAggregateHealthyWhenEmpty(t *testing.T) {
	m := NewMonitor()
	agg := m.AggregateHealth("tidewatch")
	assert.True(t, agg.IsHealthy())
	assert.Empty(t, agg.SubStatuses)
}
