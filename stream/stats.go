package stream

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of one stream unit.
type State int32

// Stream unit states. Failed is terminal until an explicit restart.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Stats holds per-stream counters. The stream unit updates transport
// counters and the dispatcher updates validRecords, so every field is
// atomic. Counters survive reconnects; a restart resets them.
type Stats struct {
	name string

	state            atomic.Int32
	messagesReceived atomic.Int64
	validRecords     atomic.Int64
	errorCount       atomic.Int64
	reconnects       atomic.Int64
	lastMessageAt    atomic.Int64 // unix nanos, 0 = never
	uptimeStart      atomic.Int64 // unix nanos, 0 = not connected
}

// NewStats returns zeroed stats for a stream in the Idle state.
func NewStats(name string) *Stats {
	s := &Stats{name: name}
	s.state.Store(int32(StateIdle))
	return s
}

// Name returns the stream name.
func (s *Stats) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Stats) State() State { return State(s.state.Load()) }

// Connected reports whether the stream is currently connected.
func (s *Stats) Connected() bool { return s.State() == StateConnected }

func (s *Stats) setState(st State) { s.state.Store(int32(st)) }

func (s *Stats) markConnected(now time.Time) {
	s.setState(StateConnected)
	s.uptimeStart.Store(now.UnixNano())
}

func (s *Stats) markDisconnected(st State) {
	s.setState(st)
	s.uptimeStart.Store(0)
}

// RecordMessage counts one raw payload arrival.
func (s *Stats) RecordMessage(at time.Time) {
	s.messagesReceived.Add(1)
	s.lastMessageAt.Store(at.UnixNano())
}

// RecordValid counts one record that survived validation. Incremented by
// the dispatcher, not the stream unit.
func (s *Stats) RecordValid() { s.validRecords.Add(1) }

// RecordError counts one transport error.
func (s *Stats) RecordError() { s.errorCount.Add(1) }

// RecordReconnect counts one reconnect attempt.
func (s *Stats) RecordReconnect() { s.reconnects.Add(1) }

// Reset zeroes all counters. Used on explicit restart.
func (s *Stats) Reset() {
	s.messagesReceived.Store(0)
	s.validRecords.Store(0)
	s.errorCount.Store(0)
	s.reconnects.Store(0)
	s.lastMessageAt.Store(0)
	s.uptimeStart.Store(0)
	s.setState(StateIdle)
}

// StatsSnapshot is a point-in-time copy of one stream's counters.
type StatsSnapshot struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	Connected        bool      `json:"connected"`
	MessagesReceived int64     `json:"messages_received"`
	ValidRecords     int64     `json:"valid_records"`
	Errors           int64     `json:"errors"`
	Reconnects       int64     `json:"reconnects"`
	LastMessageAt    time.Time `json:"last_message_at,omitzero"`
	Uptime           string    `json:"uptime,omitempty"`
}

// Snapshot copies the counters. The snapshot is internally consistent
// enough for reporting; it does not freeze the stream.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	snap := StatsSnapshot{
		Name:             s.name,
		State:            s.State().String(),
		Connected:        s.Connected(),
		MessagesReceived: s.messagesReceived.Load(),
		ValidRecords:     s.validRecords.Load(),
		Errors:           s.errorCount.Load(),
		Reconnects:       s.reconnects.Load(),
	}
	if last := s.lastMessageAt.Load(); last > 0 {
		snap.LastMessageAt = time.Unix(0, last)
	}
	if start := s.uptimeStart.Load(); start > 0 {
		snap.Uptime = now.Sub(time.Unix(0, start)).Round(time.Second).String()
	}
	return snap
}
