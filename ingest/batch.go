package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/persistence"
	"github.com/c360/tidewatch/pkg/buffer"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

// Batch processor defaults.
const (
	DefaultBatchInterval    = 5 * time.Minute
	DefaultHighWaterMark    = 50
	DefaultMinVesselHistory = 5
	DefaultMinVesselCount   = 5
	DefaultMinNewsCount     = 1
	DefaultMaxVesselHistory = 20
	DefaultFanOutLimit      = 4

	// finalFlushTimeout bounds the drain that runs when the loop exits.
	finalFlushTimeout = 30 * time.Second
)

// BatchConfig tunes the batch processor.
type BatchConfig struct {
	Interval         time.Duration
	HighWaterMark    int
	MinVesselHistory int // positions needed before predicting a vessel
	MinVesselCount   int // vessel records needed for disruption analysis
	MinNewsCount     int // news items needed for disruption analysis
	MaxVesselHistory int // retained positions per vessel across batches
	FanOutLimit      int // concurrent prediction calls

	// SpeedThresholdKnots marks a vessel as a speeding anomaly. Shares
	// the detector's threshold when built through the pipeline.
	SpeedThresholdKnots float64
}

func (c *BatchConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultBatchInterval
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	if c.MinVesselHistory <= 0 {
		c.MinVesselHistory = DefaultMinVesselHistory
	}
	if c.MinVesselCount <= 0 {
		c.MinVesselCount = DefaultMinVesselCount
	}
	if c.MinNewsCount <= 0 {
		c.MinNewsCount = DefaultMinNewsCount
	}
	if c.MaxVesselHistory <= 0 {
		c.MaxVesselHistory = DefaultMaxVesselHistory
	}
	if c.FanOutLimit <= 0 {
		c.FanOutLimit = DefaultFanOutLimit
	}
	if c.SpeedThresholdKnots <= 0 {
		c.SpeedThresholdKnots = DefaultSpeedThresholdKnots
	}
}

// BatchProcessor drains the ingestion buffers on a timer or on a
// high-water signal and runs the analytics pass over the drained window.
// Draining is unconditional: analytics failures cost the insight for that
// window, never the buffer space. Records are already persisted at
// dispatch, so nothing is lost with them.
type BatchProcessor struct {
	config    BatchConfig
	buffers   map[record.Category]*buffer.Ring[record.Cleaned]
	engine    analytics.Engine
	gateway   persistence.Gateway
	logger    *slog.Logger
	clock     clock.Clock
	metrics   *metric.PipelineMetrics
	highWater <-chan struct{}

	// history accumulates vessel positions across batches, bounded per
	// vessel. Owned by the run goroutine.
	history map[string][]record.VesselPosition

	shutdown chan struct{}
	done     chan struct{}
}

// NewBatchProcessor builds the processor. Start must be called before it
// does any work.
func NewBatchProcessor(config BatchConfig, buffers map[record.Category]*buffer.Ring[record.Cleaned], engine analytics.Engine, gateway persistence.Gateway, highWater <-chan struct{}, logger *slog.Logger, clk clock.Clock, metrics *metric.PipelineMetrics) *BatchProcessor {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &BatchProcessor{
		config:    config,
		buffers:   buffers,
		engine:    engine,
		gateway:   gateway,
		logger:    logger.With("component", "ingest.batch"),
		clock:     clk,
		metrics:   metrics,
		highWater: highWater,
		history:   make(map[string][]record.VesselPosition),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the batch loop.
func (b *BatchProcessor) Start(ctx context.Context) {
	go b.run(ctx)
}

// Stop flushes one final batch and waits for the loop to exit.
func (b *BatchProcessor) Stop(timeout time.Duration) error {
	close(b.shutdown)
	select {
	case <-b.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("batch loop still running after %s", timeout),
			"ingest", "Stop", "await batch loop")
	}
}

func (b *BatchProcessor) run(ctx context.Context) {
	defer close(b.done)

	ticker := b.clock.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			b.process(ctx, "timer")
		case <-b.highWater:
			b.process(ctx, "high_water")
		case <-b.shutdown:
			b.flushFinal()
			return
		case <-ctx.Done():
			b.flushFinal()
			return
		}
	}
}

// flushFinal drains once more on the way out. The loop context may
// already be cancelled by then, so the flush gets its own bounded one.
func (b *BatchProcessor) flushFinal() {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	b.process(ctx, "shutdown")
}

// process drains every buffer and runs the analytics pass.
func (b *BatchProcessor) process(ctx context.Context, trigger string) {
	if b.metrics != nil {
		b.metrics.BatchFirings.WithLabelValues(trigger).Inc()
	}

	batches := make(map[record.Category][]record.Cleaned, len(b.buffers))
	total := 0
	for category, ring := range b.buffers {
		drained := ring.DrainAll()
		batches[category] = drained
		total += len(drained)
		if b.metrics != nil {
			b.metrics.BufferOccupancy.WithLabelValues(string(category)).Set(0)
		}
	}
	if total == 0 {
		return
	}

	b.logger.Debug("batch fired", "trigger", trigger, "records", total)
	now := b.clock.Now()
	if err := b.gateway.StoreMetric(ctx, "batch_drained_records", float64(total), now); err != nil {
		b.logger.Warn("failed to persist batch measurement", "error", err)
	}

	vessels := batches[record.CategoryVesselPosition]
	b.extendHistory(vessels)
	b.predictMovements(ctx)
	b.detectDisruptions(ctx, batches, vessels)
}

// extendHistory appends this window's positions, bounded per vessel.
func (b *BatchProcessor) extendHistory(vessels []record.Cleaned) {
	for _, c := range vessels {
		if c.Vessel == nil {
			continue
		}
		h := append(b.history[c.Vessel.ID], *c.Vessel)
		if excess := len(h) - b.config.MaxVesselHistory; excess > 0 {
			h = h[excess:]
		}
		b.history[c.Vessel.ID] = h
	}
}

// predictMovements fans prediction calls out over vessels with enough
// history, bounded by the fan-out limit.
func (b *BatchProcessor) predictMovements(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.FanOutLimit)

	for vesselID, history := range b.history {
		if len(history) < b.config.MinVesselHistory {
			continue
		}
		if b.metrics != nil {
			b.metrics.AnalyticsCalls.WithLabelValues("predict_movement").Inc()
		}

		g.Go(func() error {
			pred, err := b.engine.PredictMovement(gctx, history)
			if err != nil {
				if b.metrics != nil {
					b.metrics.AnalyticsFailures.WithLabelValues("predict_movement").Inc()
				}
				b.logger.Warn("movement prediction failed", "vessel", vesselID, "error", err)
				return nil // best-effort: one vessel's failure never cancels the rest
			}
			b.logger.Debug("movement predicted",
				"vessel", pred.VesselID, "lat", pred.Lat, "lon", pred.Lon,
				"confidence", pred.Confidence)
			if err := b.gateway.StoreMetric(gctx, "prediction_confidence", pred.Confidence, b.clock.Now()); err != nil {
				b.logger.Warn("failed to persist prediction measurement", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// detectDisruptions runs the window-level correlation when the window
// holds enough signal to be worth an engine call.
func (b *BatchProcessor) detectDisruptions(ctx context.Context, batches map[record.Category][]record.Cleaned, vessels []record.Cleaned) {
	var news []record.NewsItem
	for _, c := range batches[record.CategoryNewsItem] {
		if c.News != nil {
			news = append(news, *c.News)
		}
	}
	if len(news) < b.config.MinNewsCount || len(vessels) < b.config.MinVesselCount {
		return
	}

	var anomalies []analytics.VesselAnomaly
	for _, c := range vessels {
		if c.Vessel == nil {
			continue
		}
		switch {
		case c.Vessel.SpeedKnots > b.config.SpeedThresholdKnots:
			anomalies = append(anomalies, vesselAnomaly(c.Vessel, "speeding"))
		case c.Vessel.SpeedKnots == 0:
			anomalies = append(anomalies, vesselAnomaly(c.Vessel, "stopped"))
		}
	}

	var economic []record.EconomicIndicator
	for _, c := range batches[record.CategoryEconomicIndicator] {
		if c.Indicator != nil {
			economic = append(economic, *c.Indicator)
		}
	}

	if b.metrics != nil {
		b.metrics.AnalyticsCalls.WithLabelValues("detect_disruptions").Inc()
	}
	events, err := b.engine.DetectDisruptions(ctx, news, anomalies, economic)
	if err != nil {
		if b.metrics != nil {
			b.metrics.AnalyticsFailures.WithLabelValues("detect_disruptions").Inc()
		}
		b.logger.Warn("disruption analysis failed", "error", err)
		return
	}

	for _, ev := range events {
		id, err := b.gateway.StoreDisruption(ctx, ev)
		if err != nil {
			if b.metrics != nil {
				b.metrics.PersistenceErrors.Inc()
			}
			b.logger.Warn("failed to persist disruption", "error", err)
			continue
		}
		b.logger.Info("disruption detected",
			"event_id", id, "severity", string(ev.Severity), "candidates", ev.Candidates)
	}
}

func vesselAnomaly(v *record.VesselPosition, kind string) analytics.VesselAnomaly {
	return analytics.VesselAnomaly{
		VesselID:   v.ID,
		Kind:       kind,
		SpeedKnots: v.SpeedKnots,
		Lat:        v.Lat,
		Lon:        v.Lon,
		ObservedAt: v.Timestamp,
	}
}
