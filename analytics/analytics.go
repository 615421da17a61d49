// Package analytics defines the engine interface behind batch processing
// and critical event detection, plus a self-contained heuristic
// implementation. The pipeline treats the engine as best-effort: a failed
// call costs that batch's insight, never the telemetry itself.
package analytics

import (
	"context"
	"time"

	"github.com/c360/tidewatch/record"
)

// DisruptionCandidate is one input signal for disruption correlation.
type DisruptionCandidate struct {
	Kind       string          // "news", "anomaly", "economic"
	Category   record.Category // originating telemetry category
	Severity   record.Severity
	Location   string
	Summary    string
	ObservedAt time.Time
}

// VesselAnomaly is a vessel behaving outside normal bounds.
type VesselAnomaly struct {
	VesselID   string
	Kind       string // "speeding", "stopped"
	SpeedKnots float64
	Lat        float64
	Lon        float64
	ObservedAt time.Time
}

// DisruptionEvent is a correlated disruption produced by the engine.
type DisruptionEvent struct {
	ID         string
	Severity   record.Severity
	Origin     string // "batch" or "immediate"
	Summary    string
	Locations  []string
	Candidates int
	DetectedAt time.Time
}

// Prediction is a short-horizon movement estimate for one vessel.
type Prediction struct {
	VesselID   string
	Lat        float64
	Lon        float64
	SpeedKnots float64
	Heading    float64
	Horizon    time.Duration
	Confidence float64
}

// Engine correlates telemetry into disruptions and movement predictions.
// Implementations must be safe for concurrent use.
type Engine interface {
	// DetectDisruptions correlates news, vessel anomalies, and economic
	// signals into zero or more disruption events.
	DetectDisruptions(ctx context.Context, news []record.NewsItem, anomalies []VesselAnomaly, economic []record.EconomicIndicator) ([]DisruptionEvent, error)

	// PredictMovement estimates the next position for one vessel from its
	// position history, oldest first.
	PredictMovement(ctx context.Context, history []record.VesselPosition) (Prediction, error)
}
