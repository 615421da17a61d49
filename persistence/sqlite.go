package persistence

import (
	"context"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/c360/tidewatch/analytics"
	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/record"
)

// Row models. One table per telemetry category plus disruptions and
// pipeline measurements.

// VesselPositionRow is a persisted vessel position.
type VesselPositionRow struct {
	ID           uint      `gorm:"primaryKey"`
	VesselID     string    `gorm:"index;size:64"`
	Lat          float64
	Lon          float64
	SpeedKnots   float64
	HeadingDeg   float64
	QualityScore float64
	ObservedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// PortMetricRow is a persisted port activity sample.
type PortMetricRow struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"index;size:16"`
	Arrivals        int
	Departures      int
	CongestionLevel float64
	QualityScore    float64
	ObservedAt      time.Time `gorm:"index"`
	CreatedAt       time.Time
}

// NewsItemRow is a persisted news report.
type NewsItemRow struct {
	ID           uint   `gorm:"primaryKey"`
	Title        string `gorm:"size:512"`
	Body         string
	Severity     string `gorm:"index;size:16"`
	Relevance    float64
	QualityScore float64
	ObservedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// EconomicIndicatorRow is a persisted indicator sample.
type EconomicIndicatorRow struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"index;size:64"`
	Value        float64
	ChangePct    float64
	QualityScore float64
	ObservedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// AlertRow is a persisted weather or security alert.
type AlertRow struct {
	ID           uint   `gorm:"primaryKey"`
	Kind         string `gorm:"index;size:32"`
	Severity     string `gorm:"index;size:16"`
	Location     string `gorm:"size:128"`
	QualityScore float64
	ObservedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// DisruptionRow is a persisted disruption event.
type DisruptionRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Severity   string `gorm:"index;size:16"`
	Origin     string `gorm:"size:16"`
	Summary    string
	Locations  string // comma separated
	Candidates int
	DetectedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// MeasurementRow is one persisted pipeline measurement.
type MeasurementRow struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"index;size:64"`
	Value      float64
	MeasuredAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// SQLite is the gorm-backed gateway.
type SQLite struct {
	db *gorm.DB
}

// NewSQLite opens (or creates) the database at dsn and migrates the
// schema.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "persistence", "NewSQLite", "open database")
	}

	if err := db.AutoMigrate(
		&VesselPositionRow{},
		&PortMetricRow{},
		&NewsItemRow{},
		&EconomicIndicatorRow{},
		&AlertRow{},
		&DisruptionRow{},
		&MeasurementRow{},
	); err != nil {
		return nil, errors.WrapFatal(err, "persistence", "NewSQLite", "migrate schema")
	}

	return &SQLite{db: db}, nil
}

// Store persists one category batch in a single insert.
func (s *SQLite) Store(ctx context.Context, category record.Category, batch []record.Cleaned) error {
	if len(batch) == 0 {
		return nil
	}

	var err error
	switch category {
	case record.CategoryVesselPosition:
		err = s.db.WithContext(ctx).Create(vesselRows(batch)).Error
	case record.CategoryPortMetric:
		err = s.db.WithContext(ctx).Create(portRows(batch)).Error
	case record.CategoryNewsItem:
		err = s.db.WithContext(ctx).Create(newsRows(batch)).Error
	case record.CategoryEconomicIndicator:
		err = s.db.WithContext(ctx).Create(indicatorRows(batch)).Error
	case record.CategoryAlert:
		err = s.db.WithContext(ctx).Create(alertRows(batch)).Error
	default:
		return errors.WrapInvalid(errors.ErrUnknownCategory, "persistence", "Store", string(category))
	}

	if err != nil {
		return errors.WrapTransient(err, "persistence", "Store", "insert batch")
	}
	return nil
}

// StoreDisruption persists one disruption event.
func (s *SQLite) StoreDisruption(ctx context.Context, event analytics.DisruptionEvent) (string, error) {
	row := DisruptionRow{
		ID:         event.ID,
		Severity:   string(event.Severity),
		Origin:     event.Origin,
		Summary:    event.Summary,
		Locations:  strings.Join(event.Locations, ","),
		Candidates: event.Candidates,
		DetectedAt: event.DetectedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", errors.WrapTransient(err, "persistence", "StoreDisruption", "insert event")
	}
	return row.ID, nil
}

// StoreMetric persists one named measurement.
func (s *SQLite) StoreMetric(ctx context.Context, name string, value float64, at time.Time) error {
	row := MeasurementRow{Name: name, Value: value, MeasuredAt: at}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.WrapTransient(err, "persistence", "StoreMetric", "insert measurement")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return errors.WrapTransient(err, "persistence", "Close", "unwrap connection")
	}
	if err := db.Close(); err != nil {
		return errors.WrapTransient(err, "persistence", "Close", "close database")
	}
	return nil
}

func vesselRows(batch []record.Cleaned) []VesselPositionRow {
	rows := make([]VesselPositionRow, 0, len(batch))
	for _, c := range batch {
		if c.Vessel == nil {
			continue
		}
		rows = append(rows, VesselPositionRow{
			VesselID:     c.Vessel.ID,
			Lat:          c.Vessel.Lat,
			Lon:          c.Vessel.Lon,
			SpeedKnots:   c.Vessel.SpeedKnots,
			HeadingDeg:   c.Vessel.HeadingDeg,
			QualityScore: c.QualityScore,
			ObservedAt:   c.Vessel.Timestamp,
		})
	}
	return rows
}

func portRows(batch []record.Cleaned) []PortMetricRow {
	rows := make([]PortMetricRow, 0, len(batch))
	for _, c := range batch {
		if c.Port == nil {
			continue
		}
		rows = append(rows, PortMetricRow{
			Code:            c.Port.Code,
			Arrivals:        c.Port.Arrivals,
			Departures:      c.Port.Departures,
			CongestionLevel: c.Port.CongestionLevel,
			QualityScore:    c.QualityScore,
			ObservedAt:      c.Port.Timestamp,
		})
	}
	return rows
}

func newsRows(batch []record.Cleaned) []NewsItemRow {
	rows := make([]NewsItemRow, 0, len(batch))
	for _, c := range batch {
		if c.News == nil {
			continue
		}
		rows = append(rows, NewsItemRow{
			Title:        c.News.Title,
			Body:         c.News.Body,
			Severity:     string(c.News.Severity),
			Relevance:    c.News.Relevance,
			QualityScore: c.QualityScore,
			ObservedAt:   c.News.Timestamp,
		})
	}
	return rows
}

func indicatorRows(batch []record.Cleaned) []EconomicIndicatorRow {
	rows := make([]EconomicIndicatorRow, 0, len(batch))
	for _, c := range batch {
		if c.Indicator == nil {
			continue
		}
		rows = append(rows, EconomicIndicatorRow{
			Name:         c.Indicator.Name,
			Value:        c.Indicator.Value,
			ChangePct:    c.Indicator.ChangePct,
			QualityScore: c.QualityScore,
			ObservedAt:   c.Indicator.Timestamp,
		})
	}
	return rows
}

func alertRows(batch []record.Cleaned) []AlertRow {
	rows := make([]AlertRow, 0, len(batch))
	for _, c := range batch {
		if c.Alert == nil {
			continue
		}
		rows = append(rows, AlertRow{
			Kind:         c.Alert.Kind,
			Severity:     string(c.Alert.Severity),
			Location:     c.Alert.Location,
			QualityScore: c.QualityScore,
			ObservedAt:   c.Alert.Timestamp,
		})
	}
	return rows
}
