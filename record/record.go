// Package record defines the telemetry data model: raw category-tagged
// payloads as they arrive from stream transports, and the cleaned,
// quality-scored records the rest of the pipeline consumes. Cleaned records
// are immutable after creation.
package record

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Category tags a record with its telemetry kind.
type Category string

// Known categories.
const (
	CategoryVesselPosition    Category = "vessel_position"
	CategoryPortMetric        Category = "port_metric"
	CategoryNewsItem          Category = "news_item"
	CategoryEconomicIndicator Category = "economic_indicator"
	CategoryAlert             Category = "alert"
)

// Categories returns all known categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryVesselPosition,
		CategoryPortMetric,
		CategoryNewsItem,
		CategoryEconomicIndicator,
		CategoryAlert,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryVesselPosition, CategoryPortMetric, CategoryNewsItem,
		CategoryEconomicIndicator, CategoryAlert:
		return true
	}
	return false
}

// Severity classifies news items and alerts.
type Severity string

// Known severities, lowest to highest.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the severity ordering (higher is more severe), or -1 for an
// unknown severity.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Raw is a category-tagged payload as received from a transport. It exists
// only until it is dispatched to the validator.
type Raw struct {
	Category  Category
	Stream    string
	Payload   []byte
	ArrivedAt time.Time
}

// VesselPosition is one AIS-style position report.
type VesselPosition struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKnots float64   `json:"speed_knots"`
	HeadingDeg float64   `json:"heading_deg"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// PortMetric is one port activity sample.
type PortMetric struct {
	Code            string    `json:"code"`
	Arrivals        int       `json:"arrivals"`
	Departures      int       `json:"departures"`
	CongestionLevel float64   `json:"congestion_level"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewsItem is one maritime news report.
type NewsItem struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Relevance float64   `json:"relevance"`
}

// EconomicIndicator is one indicator sample.
type EconomicIndicator struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	ChangePct float64   `json:"change_pct"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is one weather or security alert. Location may be empty.
type Alert struct {
	Kind      string    `json:"kind"`
	Severity  Severity  `json:"severity"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Cleaned is a validated, normalized record. Exactly one of the category
// fields is non-nil, matching Category.
type Cleaned struct {
	Category     Category  `json:"category"`
	QualityScore float64   `json:"quality_score"`
	ProcessedAt  time.Time `json:"processed_at"`

	Vessel    *VesselPosition    `json:"vessel,omitempty"`
	Port      *PortMetric        `json:"port,omitempty"`
	News      *NewsItem          `json:"news,omitempty"`
	Indicator *EconomicIndicator `json:"indicator,omitempty"`
	Alert     *Alert             `json:"alert,omitempty"`
}

// Timestamp returns the observation time of the underlying record.
func (c *Cleaned) Timestamp() time.Time {
	switch c.Category {
	case CategoryVesselPosition:
		return c.Vessel.Timestamp
	case CategoryPortMetric:
		return c.Port.Timestamp
	case CategoryNewsItem:
		return c.News.Timestamp
	case CategoryEconomicIndicator:
		return c.Indicator.Timestamp
	case CategoryAlert:
		return c.Alert.Timestamp
	}
	return time.Time{}
}

// Dedup time buckets. A vessel reporting the same position inside one
// bucket is the same observation; alerts repeat on a longer cadence.
const (
	vesselDedupBucket = time.Minute
	alertDedupBucket  = 5 * time.Minute
)

// DedupKey derives the category-specific identity used by the
// deduplication cache.
func (c *Cleaned) DedupKey() string {
	switch c.Category {
	case CategoryVesselPosition:
		bucket := c.Vessel.Timestamp.Truncate(vesselDedupBucket).Unix()
		return fmt.Sprintf("vessel:%s:%d", c.Vessel.ID, bucket)
	case CategoryPortMetric:
		return fmt.Sprintf("port:%s:%s", c.Port.Code, c.Port.Timestamp.UTC().Format("2006-01-02"))
	case CategoryNewsItem:
		h := fnv.New64a()
		_, _ = h.Write([]byte(c.News.Title))
		return fmt.Sprintf("news:%x", h.Sum64())
	case CategoryEconomicIndicator:
		return fmt.Sprintf("econ:%s:%s", c.Indicator.Name, c.Indicator.Timestamp.UTC().Format("2006-01-02"))
	case CategoryAlert:
		bucket := c.Alert.Timestamp.Truncate(alertDedupBucket).Unix()
		return fmt.Sprintf("alert:%s:%s:%d", c.Alert.Kind, c.Alert.Location, bucket)
	}
	return ""
}
