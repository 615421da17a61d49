package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records engine calls and returns scripted results.
type fakeEngine struct {
	mu           sync.Mutex
	detectCalls  int
	lastNews     []record.NewsItem
	lastAnoms    []analytics.VesselAnomaly
	detectErr    error
	events       []analytics.DisruptionEvent
	predictCalls int
	predictErr   error
}

func (f *fakeEngine) DetectDisruptions(_ context.Context, news []record.NewsItem, anomalies []analytics.VesselAnomaly, _ []record.EconomicIndicator) ([]analytics.DisruptionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	f.lastNews = news
	f.lastAnoms = anomalies
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.events, nil
}

func (f *fakeEngine) PredictMovement(_ context.Context, history []record.VesselPosition) (analytics.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictCalls++
	if f.predictErr != nil {
		return analytics.Prediction{}, f.predictErr
	}
	return analytics.Prediction{VesselID: history[0].ID, Confidence: 0.8}, nil
}

func (f *fakeEngine) detections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detectCalls
}

func (f *fakeEngine) predictions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.predictCalls
}

// fakeGateway records persistence calls.
type fakeGateway struct {
	mu          sync.Mutex
	stored      map[record.Category]int
	disruptions []analytics.DisruptionEvent
	metrics     map[string]int
	storeErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		stored:  make(map[record.Category]int),
		metrics: make(map[string]int),
	}
}

func (f *fakeGateway) Store(_ context.Context, category record.Category, batch []record.Cleaned) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored[category] += len(batch)
	return nil
}

func (f *fakeGateway) StoreDisruption(_ context.Context, event analytics.DisruptionEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disruptions = append(f.disruptions, event)
	return event.ID, nil
}

func (f *fakeGateway) StoreMetric(_ context.Context, name string, _ float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[name]++
	return nil
}

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) storedCount(category record.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[category]
}

func (f *fakeGateway) disruptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disruptions)
}

func (f *fakeGateway) lastDisruption() analytics.DisruptionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disruptions[len(f.disruptions)-1]
}

func newsRecord(title string, severity record.Severity) *record.Cleaned {
	return &record.Cleaned{
		Category: record.CategoryNewsItem,
		News:     &record.NewsItem{Title: title, Severity: severity, Relevance: 1.0, Timestamp: testNow},
	}
}

func newTestDetector(engine *fakeEngine, gateway *fakeGateway, fake *clock.Fake) *Detector {
	return NewDetector(DetectorConfig{
		Window:     10 * time.Minute,
		MinSamples: 3,
	}, engine, gateway, testLogger(), fake, nil)
}

// Three high-severity signals inside the window trigger exactly one
// engine call.
func TestDetectorEscalatesOnThirdCandidate(t *testing.T) {
	engine := &fakeEngine{events: []analytics.DisruptionEvent{{ID: "ev-1", Severity: record.SeverityHigh}}}
	gateway := newFakeGateway()
	det := newTestDetector(engine, gateway, clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, newsRecord("canal blocked", record.SeverityHigh))
	det.Observe(ctx, newsRecord("port strike", record.SeverityHigh))
	assert.Equal(t, 0, engine.detections())

	det.Observe(ctx, newsRecord("piracy reported", record.SeverityCritical))
	assert.Equal(t, 1, engine.detections())
	require.Equal(t, 1, gateway.disruptionCount())

	ev := gateway.lastDisruption()
	assert.Equal(t, "immediate", ev.Origin)
	assert.Equal(t, record.SeverityCritical, ev.Severity)

	// The window was consumed by the escalation.
	assert.Equal(t, 0, det.PendingCandidates())
}

// Escalated events always carry the top severity tier, even when the
// burst and the engine's own assessment stayed below it.
func TestDetectorEscalationForcesCriticalSeverity(t *testing.T) {
	engine := &fakeEngine{events: []analytics.DisruptionEvent{{ID: "ev-2", Severity: record.SeverityMedium}}}
	gateway := newFakeGateway()
	det := newTestDetector(engine, gateway, clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, newsRecord("canal blocked", record.SeverityHigh))
	det.Observe(ctx, newsRecord("port strike", record.SeverityHigh))
	det.Observe(ctx, newsRecord("tug shortage", record.SeverityHigh))

	require.Equal(t, 1, gateway.disruptionCount())
	assert.Equal(t, record.SeverityCritical, gateway.lastDisruption().Severity)
}

func TestDetectorBelowMinSamplesStaysQuiet(t *testing.T) {
	engine := &fakeEngine{}
	det := newTestDetector(engine, newFakeGateway(), clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, newsRecord("canal blocked", record.SeverityHigh))
	det.Observe(ctx, newsRecord("port strike", record.SeverityCritical))
	assert.Equal(t, 0, engine.detections())
	assert.Equal(t, 2, det.PendingCandidates())
}

func TestDetectorIgnoresLowSeverity(t *testing.T) {
	engine := &fakeEngine{}
	det := newTestDetector(engine, newFakeGateway(), clock.NewFake(testNow))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		det.Observe(ctx, newsRecord(fmt.Sprintf("routine notice %d", i), record.SeverityLow))
	}
	assert.Equal(t, 0, engine.detections())
	assert.Equal(t, 0, det.PendingCandidates())
}

// Candidates age out of the window, so slow drips never escalate.
func TestDetectorWindowExpiry(t *testing.T) {
	engine := &fakeEngine{}
	fake := clock.NewFake(testNow)
	det := newTestDetector(engine, newFakeGateway(), fake)

	ctx := context.Background()
	det.Observe(ctx, newsRecord("canal blocked", record.SeverityHigh))
	det.Observe(ctx, newsRecord("port strike", record.SeverityHigh))

	fake.Advance(11 * time.Minute)
	det.Observe(ctx, newsRecord("piracy reported", record.SeverityHigh))

	assert.Equal(t, 0, engine.detections())
	assert.Equal(t, 1, det.PendingCandidates())
}

func TestDetectorClassifiesSpeedAndCongestion(t *testing.T) {
	engine := &fakeEngine{events: []analytics.DisruptionEvent{{ID: "ev-2"}}}
	gateway := newFakeGateway()
	det := newTestDetector(engine, gateway, clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, &record.Cleaned{
		Category: record.CategoryVesselPosition,
		Vessel:   &record.VesselPosition{ID: "v1", SpeedKnots: 35, Timestamp: testNow},
	})
	det.Observe(ctx, &record.Cleaned{
		Category: record.CategoryPortMetric,
		Port:     &record.PortMetric{Code: "SGSIN", CongestionLevel: 0.9, Timestamp: testNow},
	})
	det.Observe(ctx, &record.Cleaned{
		Category: record.CategoryAlert,
		Alert:    &record.Alert{Kind: "storm", Severity: record.SeverityCritical, Location: "strait", Timestamp: testNow},
	})

	require.Equal(t, 1, engine.detections())
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Len(t, engine.lastAnoms, 1)
	assert.Equal(t, "speeding", engine.lastAnoms[0].Kind)
	assert.Len(t, engine.lastNews, 2) // congestion and alert ride along as news
}

// Sub-threshold records never become candidates.
func TestDetectorThresholds(t *testing.T) {
	engine := &fakeEngine{}
	det := newTestDetector(engine, newFakeGateway(), clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, &record.Cleaned{
		Category: record.CategoryVesselPosition,
		Vessel:   &record.VesselPosition{ID: "v1", SpeedKnots: 30, Timestamp: testNow}, // at, not above
	})
	det.Observe(ctx, &record.Cleaned{
		Category: record.CategoryPortMetric,
		Port:     &record.PortMetric{Code: "SGSIN", CongestionLevel: 0.8, Timestamp: testNow},
	})
	assert.Equal(t, 0, det.PendingCandidates())
}

// An engine failure costs the escalation, nothing else.
func TestDetectorSwallowsEngineFailure(t *testing.T) {
	engine := &fakeEngine{detectErr: fmt.Errorf("model offline")}
	gateway := newFakeGateway()
	det := newTestDetector(engine, gateway, clock.NewFake(testNow))

	ctx := context.Background()
	det.Observe(ctx, newsRecord("a", record.SeverityHigh))
	det.Observe(ctx, newsRecord("b", record.SeverityHigh))
	det.Observe(ctx, newsRecord("c", record.SeverityHigh))

	assert.Equal(t, 1, engine.detections())
	assert.Equal(t, 0, gateway.disruptionCount())

	// The detector keeps working afterwards.
	engine.mu.Lock()
	engine.detectErr = nil
	engine.events = []analytics.DisruptionEvent{{ID: "ev-3"}}
	engine.mu.Unlock()

	det.Observe(ctx, newsRecord("d", record.SeverityHigh))
	det.Observe(ctx, newsRecord("e", record.SeverityHigh))
	det.Observe(ctx, newsRecord("f", record.SeverityHigh))
	assert.Equal(t, 2, engine.detections())
	assert.Equal(t, 1, gateway.disruptionCount())
}
