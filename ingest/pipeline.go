package ingest

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/dedup"
	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/health"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/persistence"
	"github.com/c360/tidewatch/pkg/buffer"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
	"github.com/c360/tidewatch/stream"
)

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithMetrics attaches the pipeline metric set. Nil disables metrics.
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithHealth attaches a health monitor.
func WithHealth(h *health.Monitor) Option {
	return func(p *Pipeline) { p.health = h }
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clock = clk }
}

// WithConnFactory replaces the stream transport factory. Used by tests.
func WithConnFactory(f stream.ConnFactory) Option {
	return func(p *Pipeline) { p.connFactory = f }
}

// statsHandle breaks the construction cycle between the dispatcher and
// the supervisor: the dispatcher needs per-stream counters, the
// supervisor needs the dispatcher as its sink. Bound before Start.
type statsHandle struct {
	sup *stream.Supervisor
}

func (h *statsHandle) StatsFor(name string) (*stream.Stats, bool) {
	if h.sup == nil {
		return nil, false
	}
	return h.sup.StatsFor(name)
}

// Pipeline assembles and owns the full ingestion path: supervised stream
// units feeding the dispatcher, category buffers consumed by the batch
// processor, and the critical event detector on the live path.
type Pipeline struct {
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metric.PipelineMetrics
	health  *health.Monitor

	connFactory stream.ConnFactory

	validator  *record.Validator
	cache      *dedup.Cache
	buffers    map[record.Category]*buffer.Ring[record.Cleaned]
	dispatcher *Dispatcher
	detector   *Detector
	batch      *BatchProcessor
	supervisor *stream.Supervisor
	registry   *Registry
}

// NewPipeline builds the pipeline from configuration. Descriptors that
// fail validation are logged and skipped; they never block the rest.
func NewPipeline(cfg *config.Config, engine analytics.Engine, gateway persistence.Gateway, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		logger: logger.With("component", "ingest.pipeline"),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}

	descriptors, descErrs := cfg.ValidStreams()
	for _, err := range descErrs {
		p.logger.Error("stream descriptor rejected", "error", err)
	}
	if len(descriptors) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "ingest", "NewPipeline", "no valid streams")
	}

	p.validator = record.NewValidator(cfg.Pipeline.Freshness(), p.clock)

	p.cache = dedup.New(context.Background(), dedup.Config{
		TTL:           cfg.Pipeline.Dedup.TTL(),
		SweepInterval: cfg.Pipeline.Dedup.SweepInterval(),
		Capacity:      cfg.Pipeline.Dedup.Capacity,
	}, p.clock)

	p.buffers = make(map[record.Category]*buffer.Ring[record.Cleaned], len(record.Categories()))
	for _, category := range record.Categories() {
		ring, err := buffer.New(cfg.Pipeline.BufferCapacity,
			buffer.WithDropCallback[record.Cleaned](p.dropCallback(category)))
		if err != nil {
			return nil, err
		}
		p.buffers[category] = ring
	}

	detectorCfg := DetectorConfig{
		Window:              cfg.Pipeline.Detector.Window(),
		MinSamples:          cfg.Pipeline.Detector.MinSamples,
		SpeedThresholdKnots: cfg.Pipeline.Detector.SpeedThresholdKnots,
		CongestionThreshold: cfg.Pipeline.Detector.CongestionThreshold,
	}
	p.detector = NewDetector(detectorCfg, engine, gateway, logger, p.clock, p.metrics)

	filters := make(map[string]config.FilterCriteria, len(descriptors))
	for _, desc := range descriptors {
		filters[desc.Name] = desc.Filters
	}

	batchCfg := BatchConfig{
		Interval:            cfg.Pipeline.Batch.Interval(),
		HighWaterMark:       cfg.Pipeline.Batch.HighWaterMark,
		MinVesselCount:      cfg.Pipeline.Batch.MinVesselCount,
		MinNewsCount:        cfg.Pipeline.Batch.MinNewsCount,
		MinVesselHistory:    cfg.Pipeline.Batch.MinVesselHistory,
		SpeedThresholdKnots: detectorCfg.SpeedThresholdKnots,
	}
	batchCfg.applyDefaults()

	handle := &statsHandle{}
	p.dispatcher = NewDispatcher(DispatcherConfig{
		Validator:     p.validator,
		Cache:         p.cache,
		Buffers:       p.buffers,
		Gateway:       gateway,
		Detector:      p.detector,
		Filters:       filters,
		Stats:         handle,
		Logger:        logger,
		Metrics:       p.metrics,
		HighWaterMark: batchCfg.HighWaterMark,
	})

	supOpts := []stream.SupervisorOption{
		stream.WithClock(p.clock),
		stream.WithMetrics(p.metrics),
	}
	if p.health != nil {
		supOpts = append(supOpts, stream.WithHealth(p.health))
	}
	if p.connFactory != nil {
		supOpts = append(supOpts, stream.WithConnFactory(p.connFactory))
	}
	p.supervisor = stream.NewSupervisor(descriptors, p.dispatcher, logger, supOpts...)
	handle.sup = p.supervisor

	p.batch = NewBatchProcessor(batchCfg, p.buffers, engine, gateway,
		p.dispatcher.HighWater(), logger, p.clock, p.metrics)

	p.registry = NewRegistry(p.supervisor, p.buffers, p.cache, p.detector, p.clock)
	return p, nil
}

// dropCallback counts drop-oldest evictions for one category.
func (p *Pipeline) dropCallback(category record.Category) func(record.Cleaned) {
	return func(record.Cleaned) {
		if p.metrics != nil {
			p.metrics.BufferDropped.WithLabelValues(string(category)).Inc()
		}
		p.logger.Debug("buffer evicted oldest", "category", string(category))
	}
}

// Start launches the supervisor and the batch loop.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.supervisor.Start(ctx); err != nil {
		return err
	}
	p.batch.Start(ctx)
	if p.health != nil {
		p.health.UpdateHealthy("pipeline", "running")
	}
	p.logger.Info("pipeline started", "streams", p.supervisor.StreamCount())
	return nil
}

// Stop shuts the pipeline down in dependency order: stream units first so
// nothing feeds the buffers, then a final batch flush, then the cache.
func (p *Pipeline) Stop(timeout time.Duration) error {
	var errs []error

	if err := p.supervisor.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := p.batch.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := p.cache.Close(); err != nil {
		errs = append(errs, err)
	}

	if p.health != nil {
		p.health.UpdateUnhealthy("pipeline", "stopped")
	}
	p.logger.Info("pipeline stopped")
	return stderrors.Join(errs...)
}

// Restart restarts one stream by name.
func (p *Pipeline) Restart(name string) error {
	return p.supervisor.Restart(name)
}

// Stats captures a pipeline-wide snapshot.
func (p *Pipeline) Stats() Snapshot {
	return p.registry.Snapshot()
}
