// Package config loads the tidewatch configuration: the stream descriptor
// set and pipeline tuning. Configuration is loaded once at process start
// and treated as immutable; reconfiguring a stream means restarting it
// through the supervisor, never mutating its descriptor.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/record"
)

// TransportKind selects the stream connection variant.
type TransportKind string

// Supported transports. Websocket and NATS are persistent push
// connections; HTTP poll is a polled source.
const (
	TransportWebsocket TransportKind = "websocket"
	TransportNATS      TransportKind = "nats"
	TransportHTTPPoll  TransportKind = "http_poll"
)

// Polled reports whether the transport is a polled source.
func (t TransportKind) Polled() bool {
	return t == TransportHTTPPoll
}

// Valid reports whether t is a supported transport.
func (t TransportKind) Valid() bool {
	switch t {
	case TransportWebsocket, TransportNATS, TransportHTTPPoll:
		return true
	}
	return false
}

// FilterCriteria narrows which records a stream forwards into the
// pipeline. Zero values pass everything through.
type FilterCriteria struct {
	// MinSeverity drops news items and alerts below this severity.
	MinSeverity string `yaml:"min_severity"`
}

// Descriptor timing defaults, in milliseconds to match the wire format.
const (
	DefaultConnectTimeoutMs = 10_000
	DefaultReadTimeoutMs    = 30_000
	DefaultReconnectDelayMs = 5_000
	DefaultPollIntervalMs   = 60_000
	DefaultMaxRetries       = 5
)

// StreamDescriptor configures one stream connection. Immutable after load.
type StreamDescriptor struct {
	Name             string          `yaml:"name"`
	Transport        TransportKind   `yaml:"transport"`
	URI              string          `yaml:"uri"`
	Subject          string          `yaml:"subject,omitempty"` // NATS transport only
	Category         record.Category `yaml:"category"`          // handler identity
	PollIntervalMs   int64           `yaml:"poll_interval_ms,omitempty"`
	ConnectTimeoutMs int64           `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int64           `yaml:"read_timeout_ms"`
	ReconnectDelayMs int64           `yaml:"reconnect_delay_ms"`
	MaxRetries       int             `yaml:"max_retries"`
	Filters          FilterCriteria  `yaml:"filters,omitempty"`
}

// PollInterval returns the poll interval as a duration.
func (d *StreamDescriptor) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

// ConnectTimeout returns the connect timeout as a duration.
func (d *StreamDescriptor) ConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the read timeout as a duration.
func (d *StreamDescriptor) ReadTimeout() time.Duration {
	return time.Duration(d.ReadTimeoutMs) * time.Millisecond
}

// ReconnectDelay returns the fixed reconnect delay as a duration.
func (d *StreamDescriptor) ReconnectDelay() time.Duration {
	return time.Duration(d.ReconnectDelayMs) * time.Millisecond
}

// applyDefaults fills unset timing fields.
func (d *StreamDescriptor) applyDefaults() {
	if d.ConnectTimeoutMs <= 0 {
		d.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if d.ReadTimeoutMs <= 0 {
		d.ReadTimeoutMs = DefaultReadTimeoutMs
	}
	if d.ReconnectDelayMs <= 0 {
		d.ReconnectDelayMs = DefaultReconnectDelayMs
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.Transport.Polled() && d.PollIntervalMs <= 0 {
		d.PollIntervalMs = DefaultPollIntervalMs
	}
}

// Validate checks the descriptor. A failing descriptor prevents only this
// stream from starting; the error is fatal for the stream, not the process.
func (d *StreamDescriptor) Validate() error {
	if d.Name == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "stream name")
	}
	if !d.Transport.Valid() {
		return errors.WrapFatal(
			fmt.Errorf("%w: transport %q", errors.ErrInvalidConfig, d.Transport),
			"config", "Validate", fmt.Sprintf("stream %s transport", d.Name))
	}
	if !d.Category.Valid() {
		return errors.WrapFatal(
			fmt.Errorf("%w: category %q", errors.ErrInvalidConfig, d.Category),
			"config", "Validate", fmt.Sprintf("stream %s category", d.Name))
	}
	if d.URI == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate",
			fmt.Sprintf("stream %s uri", d.Name))
	}
	if _, err := url.Parse(d.URI); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: uri %q: %v", errors.ErrInvalidConfig, d.URI, err),
			"config", "Validate", fmt.Sprintf("stream %s uri", d.Name))
	}
	if d.Transport == TransportNATS && d.Subject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate",
			fmt.Sprintf("stream %s subject", d.Name))
	}
	if d.Filters.MinSeverity != "" && !record.Severity(d.Filters.MinSeverity).Valid() {
		return errors.WrapFatal(
			fmt.Errorf("%w: min_severity %q", errors.ErrInvalidConfig, d.Filters.MinSeverity),
			"config", "Validate", fmt.Sprintf("stream %s filters", d.Name))
	}
	return nil
}

// DedupConfig tunes the deduplication cache.
type DedupConfig struct {
	TTLMs           int64 `yaml:"ttl_ms"`
	SweepIntervalMs int64 `yaml:"sweep_interval_ms"`
	Capacity        int   `yaml:"capacity"`
}

// DetectorConfig tunes the critical event detector.
type DetectorConfig struct {
	WindowMs            int64   `yaml:"window_ms"`
	MinSamples          int     `yaml:"min_samples"`
	SpeedThresholdKnots float64 `yaml:"speed_threshold_knots"`
	CongestionThreshold float64 `yaml:"congestion_threshold"`
}

// BatchConfig tunes the batch processor.
type BatchConfig struct {
	IntervalMs       int64 `yaml:"interval_ms"`
	HighWaterMark    int   `yaml:"high_water_mark"`
	MinVesselCount   int   `yaml:"min_vessel_count"`
	MinNewsCount     int   `yaml:"min_news_count"`
	MinVesselHistory int   `yaml:"min_vessel_history"`
}

// PipelineConfig tunes the ingestion pipeline.
type PipelineConfig struct {
	BufferCapacity int            `yaml:"buffer_capacity"`
	FreshnessMs    int64          `yaml:"freshness_ms"`
	Dedup          DedupConfig    `yaml:"dedup"`
	Detector       DetectorConfig `yaml:"detector"`
	Batch          BatchConfig    `yaml:"batch"`
}

// PersistenceConfig selects the persistence gateway.
type PersistenceConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "noop"
	DSN    string `yaml:"dsn"`
}

// Config is the root configuration.
type Config struct {
	Streams     []StreamDescriptor `yaml:"streams"`
	Pipeline    PipelineConfig     `yaml:"pipeline"`
	Persistence PersistenceConfig  `yaml:"persistence"`
}

// Load reads and parses the configuration file. Parse failures are fatal;
// per-descriptor validation happens in ValidStreams so one malformed
// descriptor cannot block the rest.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "parse config file")
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Streams {
		c.Streams[i].applyDefaults()
	}
	if c.Pipeline.BufferCapacity <= 0 {
		c.Pipeline.BufferCapacity = 1000
	}
	if c.Persistence.Driver == "" {
		c.Persistence.Driver = "noop"
	}
}

// ValidStreams partitions the configured streams into startable
// descriptors and per-descriptor validation errors. Duplicate names are
// rejected so the supervisor holds at most one connection per descriptor.
func (c *Config) ValidStreams() ([]StreamDescriptor, []error) {
	var valid []StreamDescriptor
	var errs []error

	seen := make(map[string]bool, len(c.Streams))
	for _, desc := range c.Streams {
		if err := desc.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[desc.Name] {
			errs = append(errs, errors.WrapFatal(
				fmt.Errorf("%w: duplicate stream name %q", errors.ErrInvalidConfig, desc.Name),
				"config", "ValidStreams", "stream uniqueness"))
			continue
		}
		seen[desc.Name] = true
		valid = append(valid, desc)
	}
	return valid, errs
}

// Freshness returns the validator freshness threshold.
func (p *PipelineConfig) Freshness() time.Duration {
	return time.Duration(p.FreshnessMs) * time.Millisecond
}

// TTL returns the dedup TTL.
func (d *DedupConfig) TTL() time.Duration {
	return time.Duration(d.TTLMs) * time.Millisecond
}

// SweepInterval returns the dedup sweep interval.
func (d *DedupConfig) SweepInterval() time.Duration {
	return time.Duration(d.SweepIntervalMs) * time.Millisecond
}

// Window returns the detector window span.
func (d *DetectorConfig) Window() time.Duration {
	return time.Duration(d.WindowMs) * time.Millisecond
}

// Interval returns the batch timer interval.
func (b *BatchConfig) Interval() time.Duration {
	return time.Duration(b.IntervalMs) * time.Millisecond
}
