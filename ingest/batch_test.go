package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tidewatch/pkg/buffer"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

func newTestBuffers(t *testing.T, capacity int) map[record.Category]*buffer.Ring[record.Cleaned] {
	t.Helper()
	buffers := make(map[record.Category]*buffer.Ring[record.Cleaned])
	for _, category := range record.Categories() {
		ring, err := buffer.New[record.Cleaned](capacity)
		require.NoError(t, err)
		buffers[category] = ring
	}
	return buffers
}

func vesselRecord(id string, speed float64) record.Cleaned {
	return record.Cleaned{
		Category: record.CategoryVesselPosition,
		Vessel:   &record.VesselPosition{ID: id, Lat: 1.2, Lon: 103.8, SpeedKnots: speed, Timestamp: testNow},
	}
}

func newTestBatch(t *testing.T, cfg BatchConfig, buffers map[record.Category]*buffer.Ring[record.Cleaned], engine *fakeEngine, gateway *fakeGateway, highWater <-chan struct{}) *BatchProcessor {
	t.Helper()
	return NewBatchProcessor(cfg, buffers, engine, gateway, highWater, testLogger(), clock.NewFake(testNow), nil)
}

// Every buffer is drained on a firing, regardless of analytics outcome.
func TestBatchDrainsAllBuffers(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	engine := &fakeEngine{detectErr: fmt.Errorf("model offline")}
	gateway := newFakeGateway()

	for i := 0; i < 6; i++ {
		buffers[record.CategoryVesselPosition].Append(vesselRecord(fmt.Sprintf("v%d", i), 10))
	}
	buffers[record.CategoryNewsItem].Append(record.Cleaned{
		Category: record.CategoryNewsItem,
		News:     &record.NewsItem{Title: "strike", Severity: record.SeverityHigh, Timestamp: testNow},
	})
	buffers[record.CategoryAlert].Append(record.Cleaned{
		Category: record.CategoryAlert,
		Alert:    &record.Alert{Kind: "storm", Severity: record.SeverityLow, Timestamp: testNow},
	})

	b := newTestBatch(t, BatchConfig{MinVesselCount: 5, MinNewsCount: 1}, buffers, engine, gateway, nil)
	b.process(context.Background(), "timer")

	for category, ring := range buffers {
		assert.Zero(t, ring.Size(), "buffer %s not drained", category)
	}
	// The failed engine call cost the insight, not the drain.
	assert.Equal(t, 1, engine.detections())
	assert.Equal(t, 0, gateway.disruptionCount())
}

func TestBatchSkipsDetectionBelowMinimums(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	engine := &fakeEngine{}

	// Plenty of vessels, but no news: nothing to correlate against.
	for i := 0; i < 10; i++ {
		buffers[record.CategoryVesselPosition].Append(vesselRecord(fmt.Sprintf("v%d", i), 10))
	}

	b := newTestBatch(t, BatchConfig{MinVesselCount: 5, MinNewsCount: 1}, buffers, engine, newFakeGateway(), nil)
	b.process(context.Background(), "timer")

	assert.Equal(t, 0, engine.detections())
	assert.Zero(t, buffers[record.CategoryVesselPosition].Size())
}

// Speeding and stopped vessels become anomalies for the engine.
func TestBatchBuildsAnomalies(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	engine := &fakeEngine{}

	buffers[record.CategoryVesselPosition].Append(vesselRecord("fast", 40))
	buffers[record.CategoryVesselPosition].Append(vesselRecord("stopped", 0))
	buffers[record.CategoryVesselPosition].Append(vesselRecord("cruising", 15))
	buffers[record.CategoryNewsItem].Append(record.Cleaned{
		Category: record.CategoryNewsItem,
		News:     &record.NewsItem{Title: "advisory", Severity: record.SeverityHigh, Timestamp: testNow},
	})

	b := newTestBatch(t, BatchConfig{MinVesselCount: 3, MinNewsCount: 1, SpeedThresholdKnots: 30}, buffers, engine, newFakeGateway(), nil)
	b.process(context.Background(), "timer")

	require.Equal(t, 1, engine.detections())
	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.lastAnoms, 2)
	kinds := map[string]bool{}
	for _, a := range engine.lastAnoms {
		kinds[a.Kind] = true
	}
	assert.True(t, kinds["speeding"])
	assert.True(t, kinds["stopped"])
}

// Predictions run once a vessel accumulates enough history across
// batches.
func TestBatchPredictsWithEnoughHistory(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	engine := &fakeEngine{}
	gateway := newFakeGateway()

	b := newTestBatch(t, BatchConfig{MinVesselHistory: 3, MinVesselCount: 100}, buffers, engine, gateway, nil)

	// Two batches of one position each: still below the history floor.
	for i := 0; i < 2; i++ {
		buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 12))
		b.process(context.Background(), "timer")
	}
	assert.Equal(t, 0, engine.predictions())

	buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 12))
	b.process(context.Background(), "timer")
	assert.Equal(t, 1, engine.predictions())
	assert.Equal(t, 1, gateway.metrics["prediction_confidence"])
}

func TestBatchHistoryBounded(t *testing.T) {
	buffers := newTestBuffers(t, 200)
	b := newTestBatch(t, BatchConfig{MaxVesselHistory: 5, MinVesselCount: 1000}, buffers, &fakeEngine{}, newFakeGateway(), nil)

	for i := 0; i < 50; i++ {
		buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 10))
	}
	b.process(context.Background(), "timer")

	assert.Len(t, b.history["v1"], 5)
}

func TestBatchEmptyWindowIsQuiet(t *testing.T) {
	buffers := newTestBuffers(t, 10)
	engine := &fakeEngine{}
	gateway := newFakeGateway()

	b := newTestBatch(t, BatchConfig{}, buffers, engine, gateway, nil)
	b.process(context.Background(), "timer")

	assert.Equal(t, 0, engine.detections())
	assert.Equal(t, 0, gateway.metrics["batch_drained_records"])
}

// The high-water signal fires a batch without waiting for the timer.
func TestBatchHighWaterTrigger(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	engine := &fakeEngine{}
	gateway := newFakeGateway()
	highWater := make(chan struct{}, 1)

	b := NewBatchProcessor(BatchConfig{Interval: time.Hour, MinVesselCount: 1000}, buffers, engine, gateway,
		highWater, testLogger(), clock.New(), nil)

	buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 10))
	b.Start(context.Background())
	defer b.Stop(time.Second)

	highWater <- struct{}{}
	require.Eventually(t, func() bool {
		return buffers[record.CategoryVesselPosition].Size() == 0
	}, time.Second, 5*time.Millisecond)
}

// Stop flushes whatever is buffered.
func TestBatchStopFlushes(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	gateway := newFakeGateway()

	b := NewBatchProcessor(BatchConfig{Interval: time.Hour, MinVesselCount: 1000}, buffers, &fakeEngine{}, gateway,
		nil, testLogger(), clock.New(), nil)

	buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 10))
	b.Start(context.Background())
	require.NoError(t, b.Stop(time.Second))

	assert.Zero(t, buffers[record.CategoryVesselPosition].Size())
	assert.Equal(t, 1, gateway.metrics["batch_drained_records"])
}

// Cancelling the loop context flushes too, so a signal-driven shutdown
// that cancels before Stop is called still drains the buffers.
func TestBatchContextCancelFlushes(t *testing.T) {
	buffers := newTestBuffers(t, 100)
	gateway := newFakeGateway()

	b := NewBatchProcessor(BatchConfig{Interval: time.Hour, MinVesselCount: 1000}, buffers, &fakeEngine{}, gateway,
		nil, testLogger(), clock.New(), nil)

	buffers[record.CategoryVesselPosition].Append(vesselRecord("v1", 10))

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return buffers[record.CategoryVesselPosition].Size() == 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Stop(time.Second))
	assert.Equal(t, 1, gateway.metrics["batch_drained_records"])
}
