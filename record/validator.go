package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/pkg/clock"
)

// Validation bounds from the ingest contract.
const (
	MinLatitude   = -90.0
	MaxLatitude   = 90.0
	MinLongitude  = -180.0
	MaxLongitude  = 180.0
	MaxSpeedKnots = 50.0

	// DefaultFreshness is the maximum age of an acceptable record.
	DefaultFreshness = 30 * time.Minute
)

// Drop reasons, used as log fields and metric labels.
const (
	DropReasonParse        = "parse"
	DropReasonCategory     = "unknown_category"
	DropReasonMissingField = "missing_field"
	DropReasonRange        = "out_of_range"
	DropReasonSeverity     = "unknown_severity"
	DropReasonStale        = "stale"
)

// ValidationError reports why a record was dropped. Dropping is an
// expected, high-frequency outcome: callers log the reason and continue.
type ValidationError struct {
	Reason string
	Detail string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Detail)
}

// Unwrap ties ValidationError into the classified error taxonomy.
func (e *ValidationError) Unwrap() error {
	return errors.ErrValidationFailed
}

func dropf(reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Quality score weights: how complete the optional fields are, and how
// fresh the observation is.
const (
	presenceWeight = 0.6
	recencyWeight  = 0.4
)

// Validator validates and cleans raw payloads into Cleaned records, one
// category at a time. Safe for concurrent use.
type Validator struct {
	freshness time.Duration
	clock     clock.Clock
}

// NewValidator creates a validator. A non-positive freshness selects
// DefaultFreshness; a nil clock selects the real clock.
func NewValidator(freshness time.Duration, clk clock.Clock) *Validator {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Validator{freshness: freshness, clock: clk}
}

// Process validates and cleans one raw record. On failure it returns a
// *ValidationError; it never returns an error that should abort the stream
// unit.
func (v *Validator) Process(raw Raw) (*Cleaned, error) {
	now := v.clock.Now()

	switch raw.Category {
	case CategoryVesselPosition:
		return v.processVessel(raw.Payload, now)
	case CategoryPortMetric:
		return v.processPort(raw.Payload, now)
	case CategoryNewsItem:
		return v.processNews(raw.Payload, now)
	case CategoryEconomicIndicator:
		return v.processIndicator(raw.Payload, now)
	case CategoryAlert:
		return v.processAlert(raw.Payload, now)
	default:
		return nil, dropf(DropReasonCategory, "category %q", raw.Category)
	}
}

// checkFreshness rejects zero and stale timestamps.
func (v *Validator) checkFreshness(ts time.Time, now time.Time) error {
	if ts.IsZero() {
		return dropf(DropReasonMissingField, "timestamp missing")
	}
	if age := now.Sub(ts); age > v.freshness {
		return dropf(DropReasonStale, "record age %s exceeds freshness %s", age, v.freshness)
	}
	return nil
}

// recency maps record age onto [0,1]: 1 for a just-observed record, 0 at
// the freshness boundary.
func (v *Validator) recency(ts time.Time, now time.Time) float64 {
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	r := 1 - float64(age)/float64(v.freshness)
	return clamp01(r)
}

func (v *Validator) score(presence float64, ts time.Time, now time.Time) float64 {
	return clamp01(presenceWeight*presence + recencyWeight*v.recency(ts, now))
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

type vesselWire struct {
	ID         string    `json:"id"`
	Lat        *float64  `json:"lat"`
	Lon        *float64  `json:"lon"`
	SpeedKnots *float64  `json:"speed_knots"`
	HeadingDeg *float64  `json:"heading_deg"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

func (v *Validator) processVessel(payload []byte, now time.Time) (*Cleaned, error) {
	var w vesselWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, dropf(DropReasonParse, "vessel payload: %v", err)
	}

	w.ID = strings.TrimSpace(w.ID)
	if w.ID == "" {
		return nil, dropf(DropReasonMissingField, "vessel id missing")
	}
	if w.Lat == nil || w.Lon == nil {
		return nil, dropf(DropReasonMissingField, "vessel %s coordinates missing", w.ID)
	}
	if *w.Lat < MinLatitude || *w.Lat > MaxLatitude {
		return nil, dropf(DropReasonRange, "vessel %s lat %.4f", w.ID, *w.Lat)
	}
	if *w.Lon < MinLongitude || *w.Lon > MaxLongitude {
		return nil, dropf(DropReasonRange, "vessel %s lon %.4f", w.ID, *w.Lon)
	}
	if w.SpeedKnots == nil {
		return nil, dropf(DropReasonMissingField, "vessel %s speed missing", w.ID)
	}
	if *w.SpeedKnots < 0 || *w.SpeedKnots > MaxSpeedKnots {
		return nil, dropf(DropReasonRange, "vessel %s speed %.2f", w.ID, *w.SpeedKnots)
	}
	if err := v.checkFreshness(w.Timestamp, now); err != nil {
		return nil, err
	}

	heading := 0.0
	presence := 0.0
	if w.HeadingDeg != nil {
		heading = math.Mod(*w.HeadingDeg, 360)
		if heading < 0 {
			heading += 360
		}
		presence += 0.5
	}
	source := strings.TrimSpace(w.Source)
	if source != "" {
		presence += 0.5
	}

	return &Cleaned{
		Category:     CategoryVesselPosition,
		QualityScore: v.score(presence, w.Timestamp, now),
		ProcessedAt:  now,
		Vessel: &VesselPosition{
			ID:         w.ID,
			Lat:        *w.Lat,
			Lon:        *w.Lon,
			SpeedKnots: *w.SpeedKnots,
			HeadingDeg: heading,
			Timestamp:  w.Timestamp,
			Source:     source,
		},
	}, nil
}

type portWire struct {
	Code            string    `json:"code"`
	Arrivals        *int      `json:"arrivals"`
	Departures      *int      `json:"departures"`
	CongestionLevel *float64  `json:"congestion_level"`
	Timestamp       time.Time `json:"timestamp"`
}

func (v *Validator) processPort(payload []byte, now time.Time) (*Cleaned, error) {
	var w portWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, dropf(DropReasonParse, "port payload: %v", err)
	}

	w.Code = strings.ToUpper(strings.TrimSpace(w.Code))
	if w.Code == "" {
		return nil, dropf(DropReasonMissingField, "port code missing")
	}
	if w.CongestionLevel == nil {
		return nil, dropf(DropReasonMissingField, "port %s congestion missing", w.Code)
	}
	if *w.CongestionLevel < 0 || *w.CongestionLevel > 1 {
		return nil, dropf(DropReasonRange, "port %s congestion %.2f", w.Code, *w.CongestionLevel)
	}
	if (w.Arrivals != nil && *w.Arrivals < 0) || (w.Departures != nil && *w.Departures < 0) {
		return nil, dropf(DropReasonRange, "port %s negative movement count", w.Code)
	}
	if err := v.checkFreshness(w.Timestamp, now); err != nil {
		return nil, err
	}

	presence := 0.0
	arrivals, departures := 0, 0
	if w.Arrivals != nil {
		arrivals = *w.Arrivals
		presence += 0.5
	}
	if w.Departures != nil {
		departures = *w.Departures
		presence += 0.5
	}

	return &Cleaned{
		Category:     CategoryPortMetric,
		QualityScore: v.score(presence, w.Timestamp, now),
		ProcessedAt:  now,
		Port: &PortMetric{
			Code:            w.Code,
			Arrivals:        arrivals,
			Departures:      departures,
			CongestionLevel: *w.CongestionLevel,
			Timestamp:       w.Timestamp,
		},
	}, nil
}

type newsWire struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Relevance float64   `json:"relevance"`
}

func (v *Validator) processNews(payload []byte, now time.Time) (*Cleaned, error) {
	var w newsWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, dropf(DropReasonParse, "news payload: %v", err)
	}

	w.Title = strings.TrimSpace(w.Title)
	if w.Title == "" {
		return nil, dropf(DropReasonMissingField, "news title missing")
	}

	severity := Severity(strings.ToLower(strings.TrimSpace(w.Severity)))
	if severity == "" {
		severity = SeverityLow
	}
	if !severity.Valid() {
		return nil, dropf(DropReasonSeverity, "news severity %q", w.Severity)
	}
	if err := v.checkFreshness(w.Timestamp, now); err != nil {
		return nil, err
	}

	presence := 0.0
	body := strings.TrimSpace(w.Body)
	if body != "" {
		presence += 0.5
	}
	if w.Relevance > 0 {
		presence += 0.5
	}

	return &Cleaned{
		Category:     CategoryNewsItem,
		QualityScore: v.score(presence, w.Timestamp, now),
		ProcessedAt:  now,
		News: &NewsItem{
			Title:     w.Title,
			Body:      body,
			Severity:  severity,
			Timestamp: w.Timestamp,
			Relevance: clamp01(w.Relevance),
		},
	}, nil
}

type indicatorWire struct {
	Name      string    `json:"name"`
	Value     *float64  `json:"value"`
	ChangePct *float64  `json:"change_pct"`
	Timestamp time.Time `json:"timestamp"`
}

func (v *Validator) processIndicator(payload []byte, now time.Time) (*Cleaned, error) {
	var w indicatorWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, dropf(DropReasonParse, "indicator payload: %v", err)
	}

	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return nil, dropf(DropReasonMissingField, "indicator name missing")
	}
	if w.Value == nil {
		return nil, dropf(DropReasonMissingField, "indicator %s value missing", w.Name)
	}
	if err := v.checkFreshness(w.Timestamp, now); err != nil {
		return nil, err
	}

	presence := 0.0
	changePct := 0.0
	if w.ChangePct != nil {
		changePct = *w.ChangePct
		presence = 1
	}

	return &Cleaned{
		Category:     CategoryEconomicIndicator,
		QualityScore: v.score(presence, w.Timestamp, now),
		ProcessedAt:  now,
		Indicator: &EconomicIndicator{
			Name:      w.Name,
			Value:     *w.Value,
			ChangePct: changePct,
			Timestamp: w.Timestamp,
		},
	}, nil
}

type alertWire struct {
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

func (v *Validator) processAlert(payload []byte, now time.Time) (*Cleaned, error) {
	var w alertWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, dropf(DropReasonParse, "alert payload: %v", err)
	}

	w.Kind = strings.TrimSpace(w.Kind)
	if w.Kind == "" {
		return nil, dropf(DropReasonMissingField, "alert kind missing")
	}

	severity := Severity(strings.ToLower(strings.TrimSpace(w.Severity)))
	if !severity.Valid() {
		return nil, dropf(DropReasonSeverity, "alert severity %q", w.Severity)
	}
	if err := v.checkFreshness(w.Timestamp, now); err != nil {
		return nil, err
	}

	presence := 0.0
	location := strings.TrimSpace(w.Location)
	if location != "" {
		presence = 1
	}

	return &Cleaned{
		Category:     CategoryAlert,
		QualityScore: v.score(presence, w.Timestamp, now),
		ProcessedAt:  now,
		Alert: &Alert{
			Kind:      w.Kind,
			Severity:  severity,
			Location:  location,
			Timestamp: w.Timestamp,
		},
	}, nil
}
