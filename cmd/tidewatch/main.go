// Command tidewatch ingests maritime telemetry streams, validates and
// deduplicates the records, and runs batch analytics over the buffered
// windows. Configuration comes from a YAML file; operational endpoints
// are served over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/health"
	"github.com/c360/tidewatch/ingest"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/persistence"
)

// version is stamped at build time.
var version = "dev"

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "tidewatch: %v\n", err)
		os.Exit(1)
	}
}

func run(f *flags) error {
	logger := newLogger(f.logLevel, f.logFormat)
	logger.Info("starting", "config", f.configPath)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	if f.checkConfig {
		streams, errs := cfg.ValidStreams()
		for _, err := range errs {
			logger.Error("invalid stream descriptor", "error", err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("configuration check failed: %d invalid stream descriptor(s)", len(errs))
		}
		logger.Info("configuration ok", "streams", len(streams))
		return nil
	}

	registry := metric.NewRegistry()
	metrics, err := metric.NewPipelineMetrics(registry)
	if err != nil {
		return err
	}
	monitor := health.NewMonitor()

	gateway, err := newGateway(cfg.Persistence, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn("failed to close persistence gateway", "error", err)
		}
	}()

	engine := analytics.NewHeuristic(nil)

	pipeline, err := ingest.NewPipeline(cfg, engine, gateway, logger,
		ingest.WithMetrics(metrics),
		ingest.WithHealth(monitor))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Start(ctx); err != nil {
		return err
	}

	ops := newOpsServer(f.opsAddr, pipeline, monitor, registry, logger)
	ops.start()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := ops.stop(f.shutdownTimeout); err != nil {
		logger.Warn("ops server shutdown failed", "error", err)
	}
	if err := pipeline.Stop(f.shutdownTimeout); err != nil {
		logger.Warn("pipeline shutdown incomplete", "error", err)
		return err
	}

	logger.Info("stopped")
	return nil
}

// newGateway selects the persistence backend.
func newGateway(cfg config.PersistenceConfig, logger *slog.Logger) (persistence.Gateway, error) {
	switch cfg.Driver {
	case "sqlite":
		gw, err := persistence.NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("persistence enabled", "driver", "sqlite", "dsn", cfg.DSN)
		return gw, nil
	case "noop", "":
		logger.Info("persistence disabled")
		return persistence.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}
