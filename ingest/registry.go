package ingest

import (
	"time"

	"github.com/c360/tidewatch/dedup"
	"github.com/c360/tidewatch/pkg/buffer"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
	"github.com/c360/tidewatch/stream"
)

// StreamObserver is the supervisor surface the registry reads from.
type StreamObserver interface {
	SnapshotAll() map[string]stream.StatsSnapshot
	ConnectedCount() int
	StreamCount() int
}

// DedupSnapshot is a point-in-time copy of the dedup cache counters.
type DedupSnapshot struct {
	Inserts      int64 `json:"inserts"`
	Duplicates   int64 `json:"duplicates"`
	TTLEvictions int64 `json:"ttl_evictions"`
	LRUEvictions int64 `json:"lru_evictions"`
	Size         int   `json:"size"`
}

// Snapshot is one consistent-enough view of the whole pipeline, shaped
// for the stats endpoint.
type Snapshot struct {
	TakenAt           time.Time                       `json:"taken_at"`
	ConnectedStreams  int                             `json:"connected_streams"`
	TotalStreams      int                             `json:"total_streams"`
	Streams           map[string]stream.StatsSnapshot `json:"streams"`
	BufferOccupancy   map[string]int                  `json:"buffer_occupancy"`
	Dedup             DedupSnapshot                   `json:"dedup"`
	PendingCandidates int                             `json:"pending_candidates"`
}

// Registry assembles pipeline-wide snapshots on demand. It holds no state
// of its own; every read goes to the live components.
type Registry struct {
	streams  StreamObserver
	buffers  map[record.Category]*buffer.Ring[record.Cleaned]
	cache    *dedup.Cache
	detector *Detector
	clock    clock.Clock
}

// NewRegistry builds a registry over the live pipeline components.
func NewRegistry(streams StreamObserver, buffers map[record.Category]*buffer.Ring[record.Cleaned], cache *dedup.Cache, detector *Detector, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		streams:  streams,
		buffers:  buffers,
		cache:    cache,
		detector: detector,
		clock:    clk,
	}
}

// Snapshot captures the current pipeline state.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		TakenAt:         r.clock.Now(),
		BufferOccupancy: make(map[string]int, len(r.buffers)),
	}

	if r.streams != nil {
		snap.Streams = r.streams.SnapshotAll()
		snap.ConnectedStreams = r.streams.ConnectedCount()
		snap.TotalStreams = r.streams.StreamCount()
	}
	for category, ring := range r.buffers {
		snap.BufferOccupancy[string(category)] = ring.Size()
	}
	if r.cache != nil {
		stats := r.cache.Stats()
		snap.Dedup = DedupSnapshot{
			Inserts:      stats.Inserts(),
			Duplicates:   stats.Duplicates(),
			TTLEvictions: stats.TTLEvictions(),
			LRUEvictions: stats.LRUEvictions(),
			Size:         r.cache.Size(),
		}
	}
	if r.detector != nil {
		snap.PendingCandidates = r.detector.PendingCandidates()
	}
	return snap
}
