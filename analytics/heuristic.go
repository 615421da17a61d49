package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

// Heuristic tuning.
const (
	// disruptionScoreMin is the weighted signal score at which a
	// disruption is reported.
	disruptionScoreMin = 4.0

	// economicChangeMin is the absolute day-over-day change (percent)
	// at which an indicator counts as a disruption signal.
	economicChangeMin = 5.0

	// predictionHorizon is how far ahead movement is projected.
	predictionHorizon = 15 * time.Minute

	// earthRadiusNm approximates the earth as a sphere, in nautical miles.
	earthRadiusNm = 3440.065
)

// Heuristic is a rule-based Engine. It weighs news severity, vessel
// anomalies, and sharp economic movements into a single score, and
// dead-reckons vessel movement from recent positions. Stateless between
// calls, so safe for concurrent use.
type Heuristic struct {
	clock clock.Clock
	newID func() string
}

// NewHeuristic returns a heuristic engine. A nil clock uses wall time.
func NewHeuristic(clk clock.Clock) *Heuristic {
	if clk == nil {
		clk = clock.New()
	}
	return &Heuristic{
		clock: clk,
		newID: func() string { return uuid.NewString() },
	}
}

// DetectDisruptions scores the combined signals and reports at most one
// disruption per call, carrying the highest severity seen.
func (h *Heuristic) DetectDisruptions(ctx context.Context, news []record.NewsItem, anomalies []VesselAnomaly, economic []record.EconomicIndicator) ([]DisruptionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "analytics", "DetectDisruptions", "context")
	}

	var score float64
	var candidates int
	top := record.SeverityLow
	locations := make(map[string]bool)
	var signals []string

	for _, item := range news {
		rank := item.Severity.Rank()
		if rank < 0 {
			continue
		}
		score += float64(rank) * math.Max(item.Relevance, 0.5)
		candidates++
		if rank > top.Rank() {
			top = item.Severity
		}
	}
	if len(news) > 0 {
		signals = append(signals, "news")
	}

	for _, a := range anomalies {
		score += 1.0
		candidates++
		locations[fmt.Sprintf("%.1f,%.1f", a.Lat, a.Lon)] = true
		if record.SeverityMedium.Rank() > top.Rank() {
			top = record.SeverityMedium
		}
	}
	if len(anomalies) > 0 {
		signals = append(signals, "anomalies")
	}

	for _, e := range economic {
		if math.Abs(e.ChangePct) < economicChangeMin {
			continue
		}
		score += 1.0
		candidates++
	}
	if len(economic) > 0 {
		signals = append(signals, "economic")
	}

	if score < disruptionScoreMin || candidates == 0 {
		return nil, nil
	}

	locs := make([]string, 0, len(locations))
	for loc := range locations {
		locs = append(locs, loc)
	}
	sort.Strings(locs)

	event := DisruptionEvent{
		ID:         h.newID(),
		Severity:   top,
		Origin:     "batch",
		Summary:    fmt.Sprintf("correlated %d signals (%s)", candidates, strings.Join(signals, ", ")),
		Locations:  locs,
		Candidates: candidates,
		DetectedAt: h.clock.Now(),
	}
	return []DisruptionEvent{event}, nil
}

// PredictMovement dead-reckons from the two most recent positions.
// History must hold at least two points, oldest first.
func (h *Heuristic) PredictMovement(ctx context.Context, history []record.VesselPosition) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, errors.WrapTransient(err, "analytics", "PredictMovement", "context")
	}
	if len(history) < 2 {
		return Prediction{}, errors.WrapInvalid(
			fmt.Errorf("%w: need at least 2 positions, got %d", errors.ErrAnalyticsFailed, len(history)),
			"analytics", "PredictMovement", "history length")
	}

	last := history[len(history)-1]
	prev := history[len(history)-2]

	heading := bearingDeg(prev.Lat, prev.Lon, last.Lat, last.Lon)
	speed := last.SpeedKnots
	if speed <= 0 {
		// Stopped vessels stay put.
		return Prediction{
			VesselID:   last.ID,
			Lat:        last.Lat,
			Lon:        last.Lon,
			Heading:    heading,
			Horizon:    predictionHorizon,
			Confidence: confidence(history),
		}, nil
	}

	distanceNm := speed * predictionHorizon.Hours()
	lat, lon := project(last.Lat, last.Lon, heading, distanceNm)

	return Prediction{
		VesselID:   last.ID,
		Lat:        lat,
		Lon:        lon,
		SpeedKnots: speed,
		Heading:    heading,
		Horizon:    predictionHorizon,
		Confidence: confidence(history),
	}, nil
}

// confidence grows with history depth and shrinks with speed variance.
func confidence(history []record.VesselPosition) float64 {
	depth := math.Min(float64(len(history))/10.0, 1.0)

	var mean float64
	for _, p := range history {
		mean += p.SpeedKnots
	}
	mean /= float64(len(history))

	var variance float64
	for _, p := range history {
		d := p.SpeedKnots - mean
		variance += d * d
	}
	variance /= float64(len(history))

	steadiness := 1.0 / (1.0 + variance/10.0)
	c := 0.5*depth + 0.5*steadiness
	return math.Max(0.1, math.Min(c, 1.0))
}

// bearingDeg returns the initial great-circle bearing from point 1 to
// point 2, in degrees clockwise from north.
func bearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	θ := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(θ+360, 360)
}

// project moves a point along a bearing by a great-circle distance in
// nautical miles.
func project(lat, lon, bearing, distanceNm float64) (float64, float64) {
	δ := distanceNm / earthRadiusNm
	θ := bearing * math.Pi / 180
	φ1 := lat * math.Pi / 180
	λ1 := lon * math.Pi / 180

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(
		math.Sin(θ)*math.Sin(δ)*math.Cos(φ1),
		math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2),
	)

	outLat := φ2 * 180 / math.Pi
	outLon := math.Mod(λ2*180/math.Pi+540, 360) - 180
	return outLat, outLon
}
