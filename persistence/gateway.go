// Package persistence writes cleaned telemetry and derived events to
// durable storage. The pipeline treats every write as best-effort: a
// failed write is counted and logged but never blocks ingestion.
package persistence

import (
	"context"
	"time"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/record"
)

// Gateway is the storage boundary for the pipeline. Implementations must
// be safe for concurrent use.
type Gateway interface {
	// Store persists a batch of cleaned records of one category.
	Store(ctx context.Context, category record.Category, batch []record.Cleaned) error

	// StoreDisruption persists a disruption event and returns its id.
	StoreDisruption(ctx context.Context, event analytics.DisruptionEvent) (string, error)

	// StoreMetric persists one named pipeline measurement.
	StoreMetric(ctx context.Context, name string, value float64, at time.Time) error

	// Close releases storage resources.
	Close() error
}

// Noop discards everything. Used when no persistence is configured and
// as the fallback in tests.
type Noop struct{}

// NewNoop returns a gateway that drops all writes.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Store(context.Context, record.Category, []record.Cleaned) error { return nil }

func (*Noop) StoreDisruption(_ context.Context, event analytics.DisruptionEvent) (string, error) {
	return event.ID, nil
}

func (*Noop) StoreMetric(context.Context, string, float64, time.Time) error { return nil }

func (*Noop) Close() error { return nil }
