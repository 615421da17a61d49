// Package ingest wires the record path: dispatch from stream units
// through validation, filtering, deduplication, and buffering, plus the
// batch processor and critical event detector that consume the buffers.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/persistence"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

// Detector defaults.
const (
	DefaultDetectorWindow      = 10 * time.Minute
	DefaultDetectorMinSamples  = 3
	DefaultSpeedThresholdKnots = 30.0
	DefaultCongestionThreshold = 0.8
)

// DetectorConfig tunes the critical event detector.
type DetectorConfig struct {
	Window              time.Duration
	MinSamples          int
	SpeedThresholdKnots float64
	CongestionThreshold float64
}

func (c *DetectorConfig) applyDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultDetectorWindow
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultDetectorMinSamples
	}
	if c.SpeedThresholdKnots <= 0 {
		c.SpeedThresholdKnots = DefaultSpeedThresholdKnots
	}
	if c.CongestionThreshold <= 0 {
		c.CongestionThreshold = DefaultCongestionThreshold
	}
}

// candidate is one windowed detector observation, kept with the source
// data needed to rebuild engine input on escalation.
type candidate struct {
	severity record.Severity
	seenAt   time.Time
	news     *record.NewsItem
	anomaly  *analytics.VesselAnomaly
}

// Detector watches the live record flow for clusters of critical signals
// and escalates them immediately instead of waiting for the next batch.
// An escalation consumes the window, so a sustained burst produces one
// event per cluster rather than one per record. Safe for concurrent use.
type Detector struct {
	config  DetectorConfig
	engine  analytics.Engine
	gateway persistence.Gateway
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metric.PipelineMetrics

	mu         sync.Mutex
	candidates []candidate
}

// NewDetector builds a detector. Engine and gateway must be non-nil;
// metrics may be nil.
func NewDetector(config DetectorConfig, engine analytics.Engine, gateway persistence.Gateway, logger *slog.Logger, clk clock.Clock, metrics *metric.PipelineMetrics) *Detector {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{
		config:  config,
		engine:  engine,
		gateway: gateway,
		logger:  logger.With("component", "ingest.detector"),
		clock:   clk,
		metrics: metrics,
	}
}

// Observe feeds one cleaned record through the detector. Non-critical
// records are ignored. Called inline on the dispatch path, so the fast
// path is one lock and a severity check.
func (d *Detector) Observe(ctx context.Context, c *record.Cleaned) {
	cand, ok := d.classify(c)
	if !ok {
		return
	}

	d.mu.Lock()
	now := d.clock.Now()
	d.pruneLocked(now)
	d.candidates = append(d.candidates, cand)
	if len(d.candidates) < d.config.MinSamples {
		d.mu.Unlock()
		return
	}
	burst := d.candidates
	d.candidates = nil
	d.mu.Unlock()

	d.escalate(ctx, burst)
}

// classify decides whether a record is a critical signal.
func (d *Detector) classify(c *record.Cleaned) (candidate, bool) {
	now := d.clock.Now()

	switch c.Category {
	case record.CategoryNewsItem:
		if c.News.Severity.Rank() < record.SeverityHigh.Rank() {
			return candidate{}, false
		}
		news := *c.News
		return candidate{severity: news.Severity, seenAt: now, news: &news}, true

	case record.CategoryAlert:
		if c.Alert.Severity.Rank() < record.SeverityHigh.Rank() {
			return candidate{}, false
		}
		// Alerts ride along as synthetic news for the engine.
		news := record.NewsItem{
			Title:     fmt.Sprintf("alert: %s %s", c.Alert.Kind, c.Alert.Location),
			Severity:  c.Alert.Severity,
			Timestamp: c.Alert.Timestamp,
			Relevance: 1.0,
		}
		return candidate{severity: c.Alert.Severity, seenAt: now, news: &news}, true

	case record.CategoryVesselPosition:
		if c.Vessel.SpeedKnots <= d.config.SpeedThresholdKnots {
			return candidate{}, false
		}
		return candidate{
			severity: record.SeverityHigh,
			seenAt:   now,
			anomaly: &analytics.VesselAnomaly{
				VesselID:   c.Vessel.ID,
				Kind:       "speeding",
				SpeedKnots: c.Vessel.SpeedKnots,
				Lat:        c.Vessel.Lat,
				Lon:        c.Vessel.Lon,
				ObservedAt: c.Vessel.Timestamp,
			},
		}, true

	case record.CategoryPortMetric:
		if c.Port.CongestionLevel <= d.config.CongestionThreshold {
			return candidate{}, false
		}
		news := record.NewsItem{
			Title:     fmt.Sprintf("severe congestion at %s", c.Port.Code),
			Severity:  record.SeverityHigh,
			Timestamp: c.Port.Timestamp,
			Relevance: 1.0,
		}
		return candidate{severity: record.SeverityHigh, seenAt: now, news: &news}, true
	}

	return candidate{}, false
}

// pruneLocked drops candidates older than the window. Caller holds d.mu.
func (d *Detector) pruneLocked(now time.Time) {
	cutoff := now.Add(-d.config.Window)
	kept := d.candidates[:0]
	for _, c := range d.candidates {
		if c.seenAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	d.candidates = kept
}

// escalate runs one engine call for a burst and persists the result.
// Failures cost this escalation only; the telemetry is already stored.
func (d *Detector) escalate(ctx context.Context, burst []candidate) {
	var news []record.NewsItem
	var anomalies []analytics.VesselAnomaly
	for _, c := range burst {
		if c.news != nil {
			news = append(news, *c.news)
		}
		if c.anomaly != nil {
			anomalies = append(anomalies, *c.anomaly)
		}
	}

	if d.metrics != nil {
		d.metrics.AnalyticsCalls.WithLabelValues("detect_disruptions").Inc()
	}
	events, err := d.engine.DetectDisruptions(ctx, news, anomalies, nil)
	if err != nil {
		if d.metrics != nil {
			d.metrics.AnalyticsFailures.WithLabelValues("detect_disruptions").Inc()
		}
		d.logger.Warn("escalation analysis failed", "error", err, "candidates", len(burst))
		return
	}

	for _, ev := range events {
		ev.Origin = "immediate"
		ev.Severity = record.SeverityCritical
		id, err := d.gateway.StoreDisruption(ctx, ev)
		if err != nil {
			if d.metrics != nil {
				d.metrics.PersistenceErrors.Inc()
			}
			d.logger.Warn("failed to persist escalation", "error", err)
			continue
		}
		if d.metrics != nil {
			d.metrics.Escalations.Inc()
		}
		d.logger.Info("critical event escalated",
			"event_id", id, "severity", string(ev.Severity), "candidates", ev.Candidates)
	}
}

// PendingCandidates reports the current window occupancy.
func (d *Detector) PendingCandidates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.candidates)
}
