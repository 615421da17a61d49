package ingest

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/dedup"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/persistence"
	"github.com/c360/tidewatch/pkg/buffer"
	"github.com/c360/tidewatch/record"
	"github.com/c360/tidewatch/stream"
)

// StreamStats resolves per-stream counters for the valid-record tally.
// Satisfied by *stream.Supervisor.
type StreamStats interface {
	StatsFor(name string) (*stream.Stats, bool)
}

// Dispatcher is the per-record ingest path: validate, filter, dedup,
// buffer, persist, observe. It implements stream.Sink and is called
// concurrently by every stream unit.
type Dispatcher struct {
	validator *record.Validator
	cache     *dedup.Cache
	buffers   map[record.Category]*buffer.Ring[record.Cleaned]
	gateway   persistence.Gateway
	detector  *Detector
	filters   map[string]config.FilterCriteria // by stream name
	stats     StreamStats
	logger    *slog.Logger
	metrics   *metric.PipelineMetrics

	// highWater signals the batch processor that a buffer crossed its
	// high-water mark. Capacity one; a pending signal is enough.
	highWater chan struct{}
	highMark  int
}

// DispatcherConfig collects the dispatcher collaborators.
type DispatcherConfig struct {
	Validator *record.Validator
	Cache     *dedup.Cache
	Buffers   map[record.Category]*buffer.Ring[record.Cleaned]
	Gateway   persistence.Gateway
	Detector  *Detector
	Filters   map[string]config.FilterCriteria
	Stats     StreamStats
	Logger    *slog.Logger
	Metrics   *metric.PipelineMetrics

	// HighWaterMark triggers an early batch when any buffer reaches this
	// size. Zero disables the trigger.
	HighWaterMark int
}

// NewDispatcher builds the dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		validator: cfg.Validator,
		cache:     cfg.Cache,
		buffers:   cfg.Buffers,
		gateway:   cfg.Gateway,
		detector:  cfg.Detector,
		filters:   cfg.Filters,
		stats:     cfg.Stats,
		logger:    logger.With("component", "ingest.dispatcher"),
		metrics:   cfg.Metrics,
		highWater: make(chan struct{}, 1),
		highMark:  cfg.HighWaterMark,
	}
}

// HighWater exposes the early-batch signal for the batch processor.
func (d *Dispatcher) HighWater() <-chan struct{} { return d.highWater }

// HandleRaw processes one raw record. It never blocks the stream unit
// beyond the synchronous persistence write and never returns: every
// failure mode is a counted drop.
func (d *Dispatcher) HandleRaw(raw record.Raw) {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
		}
	}()

	cleaned, err := d.validator.Process(raw)
	if err != nil {
		d.dropInvalid(raw, err)
		return
	}

	// A record is valid once it clears validation; filter and dedup
	// outcomes have their own counters and do not subtract from it.
	if stats, ok := d.stats.StatsFor(raw.Stream); ok {
		stats.RecordValid()
	}
	if d.metrics != nil {
		d.metrics.ValidRecords.WithLabelValues(raw.Stream, string(cleaned.Category)).Inc()
	}

	if !d.passesFilter(raw.Stream, cleaned) {
		return
	}

	if isNew := d.cache.CheckAndInsert(cleaned.DedupKey()); !isNew {
		if d.metrics != nil {
			d.metrics.DedupSuppressed.WithLabelValues(string(cleaned.Category)).Inc()
		}
		return
	}

	ring, ok := d.buffers[cleaned.Category]
	if !ok {
		d.logger.Error("no buffer for category", "category", string(cleaned.Category))
		return
	}
	ring.Append(*cleaned)
	if d.metrics != nil {
		d.metrics.BufferOccupancy.WithLabelValues(string(cleaned.Category)).Set(float64(ring.Size()))
	}
	d.signalHighWater(ring)

	ctx := context.Background()
	if err := d.gateway.Store(ctx, cleaned.Category, []record.Cleaned{*cleaned}); err != nil {
		if d.metrics != nil {
			d.metrics.PersistenceErrors.Inc()
		}
		d.logger.Warn("persistence write failed",
			"category", string(cleaned.Category), "error", err)
	}

	if d.detector != nil {
		d.detector.Observe(ctx, cleaned)
	}
}

// dropInvalid counts and logs one validation drop. Validation drops are
// expected at volume, so they log at debug.
func (d *Dispatcher) dropInvalid(raw record.Raw, err error) {
	reason := "unknown"
	var verr *record.ValidationError
	if stderrors.As(err, &verr) {
		reason = verr.Reason
	}
	if d.metrics != nil {
		d.metrics.ValidationDrops.WithLabelValues(string(raw.Category), reason).Inc()
	}
	d.logger.Debug("record dropped",
		"stream", raw.Stream, "category", string(raw.Category), "reason", reason, "error", err)
}

// passesFilter applies the stream's filter criteria. Filters only narrow
// severity-carrying categories; everything else passes.
func (d *Dispatcher) passesFilter(streamName string, c *record.Cleaned) bool {
	criteria, ok := d.filters[streamName]
	if !ok || criteria.MinSeverity == "" {
		return true
	}
	minRank := record.Severity(criteria.MinSeverity).Rank()

	switch c.Category {
	case record.CategoryNewsItem:
		return c.News.Severity.Rank() >= minRank
	case record.CategoryAlert:
		return c.Alert.Severity.Rank() >= minRank
	}
	return true
}

// signalHighWater nudges the batch processor when a buffer fills up. The
// signal is lossy on purpose; one pending batch covers any number of
// crossings.
func (d *Dispatcher) signalHighWater(ring *buffer.Ring[record.Cleaned]) {
	if d.highMark <= 0 || ring.Size() < d.highMark {
		return
	}
	select {
	case d.highWater <- struct{}{}:
	default:
	}
}
