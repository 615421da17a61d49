package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/health"
	"github.com/c360/tidewatch/metric"
	"github.com/c360/tidewatch/pkg/clock"
	"github.com/c360/tidewatch/record"
)

// Sink receives raw records from stream units in per-stream arrival
// order. Implementations must be safe for concurrent use.
type Sink interface {
	HandleRaw(raw record.Raw)
}

// SupervisorOption configures optional supervisor collaborators.
type SupervisorOption func(*Supervisor)

// WithConnFactory replaces the default transport factory.
func WithConnFactory(f ConnFactory) SupervisorOption {
	return func(s *Supervisor) { s.factory = f }
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) SupervisorOption {
	return func(s *Supervisor) { s.clock = clk }
}

// WithMetrics attaches the pipeline metric set. Nil disables metrics.
func WithMetrics(m *metric.PipelineMetrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

// WithHealth attaches a health monitor updated on state transitions.
func WithHealth(h *health.Monitor) SupervisorOption {
	return func(s *Supervisor) { s.health = h }
}

// Supervisor owns one goroutine ("unit") per configured stream and keeps
// each connection alive through disconnects. Units are fully isolated: a
// panic or exhausted retry budget in one never touches the others. A
// stream that exhausts its retry budget parks in the Failed state until
// Restart is called for it.
type Supervisor struct {
	descriptors []config.StreamDescriptor
	sink        Sink
	limiter     *RateLimiter
	logger      *slog.Logger

	factory ConnFactory
	clock   clock.Clock
	metrics *metric.PipelineMetrics
	health  *health.Monitor

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	units   map[string]*unit
	stats   map[string]*Stats
	wg      sync.WaitGroup
}

// unit is the supervisor-side handle for one running stream goroutine.
type unit struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor builds a supervisor for the given descriptors. The sink
// must be non-nil; descriptors are assumed pre-validated by config.
func NewSupervisor(descriptors []config.StreamDescriptor, sink Sink, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		descriptors: descriptors,
		sink:        sink,
		limiter:     NewRateLimiter(),
		logger:      logger.With("component", "stream.supervisor"),
		factory:     NewConn,
		clock:       clock.New(),
		units:       make(map[string]*unit, len(descriptors)),
		stats:       make(map[string]*Stats, len(descriptors)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, desc := range descriptors {
		s.stats[desc.Name] = NewStats(desc.Name)
		if desc.Transport.Polled() {
			s.limiter.SetInterval(desc.Name, desc.PollInterval())
		} else {
			s.limiter.SetInterval(desc.Name, desc.ReconnectDelay())
		}
	}
	return s
}

// Start launches one unit per descriptor. Idempotent start is an error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "stream", "Start", "supervisor")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, desc := range s.descriptors {
		s.launchLocked(desc)
	}

	s.logger.Info("supervisor started", "streams", len(s.descriptors))
	return nil
}

// launchLocked starts one unit goroutine. Caller holds s.mu.
func (s *Supervisor) launchLocked(desc config.StreamDescriptor) {
	unitCtx, cancel := context.WithCancel(s.ctx)
	u := &unit{cancel: cancel, done: make(chan struct{})}
	s.units[desc.Name] = u

	stats := s.stats[desc.Name]
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(u.done)
		s.runUnit(unitCtx, desc, stats)
	}()
}

// Stop cancels every unit and waits up to timeout for them to exit. A
// clean shutdown completes within one read timeout because Next respects
// context cancellation or its deadline.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("supervisor stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("stream units still running after %s", timeout),
			"stream", "Stop", "await units")
	}
}

// Restart stops the named unit if running, resets its counters, and
// launches it fresh. This is the only way out of the Failed state.
func (s *Supervisor) Restart(name string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrStreamNotFound, "stream", "Restart", "supervisor not started")
	}

	var desc *config.StreamDescriptor
	for i := range s.descriptors {
		if s.descriptors[i].Name == name {
			desc = &s.descriptors[i]
			break
		}
	}
	if desc == nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrStreamNotFound, name),
			"stream", "Restart", "lookup stream")
	}

	u := s.units[name]
	s.mu.Unlock()

	if u != nil {
		u.cancel()
		<-u.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.WrapFatal(errors.ErrStreamNotFound, "stream", "Restart", "supervisor stopped")
	}
	// A concurrent Restart that cancelled the same unit has already
	// relaunched it; launching again would orphan that unit and open a
	// second connection for the descriptor.
	if s.units[name] != u {
		return nil
	}
	s.stats[name].Reset()
	s.launchLocked(*desc)
	s.logger.Info("stream restarted", "stream", name)
	return nil
}

// StatsFor returns the stats handle for one stream.
func (s *Supervisor) StatsFor(name string) (*Stats, bool) {
	st, ok := s.stats[name]
	return st, ok
}

// SnapshotAll returns a snapshot per stream, keyed by name.
func (s *Supervisor) SnapshotAll() map[string]StatsSnapshot {
	now := s.clock.Now()
	out := make(map[string]StatsSnapshot, len(s.stats))
	for name, st := range s.stats {
		out[name] = st.Snapshot(now)
	}
	return out
}

// ConnectedCount returns how many streams are currently connected.
func (s *Supervisor) ConnectedCount() int {
	n := 0
	for _, st := range s.stats {
		if st.Connected() {
			n++
		}
	}
	return n
}

// StreamCount returns the number of supervised streams.
func (s *Supervisor) StreamCount() int { return len(s.stats) }

// runUnit is the lifecycle loop for one stream. Connect failures and
// terminal transport faults share one consecutive-failure budget; any
// successful payload resets it.
func (s *Supervisor) runUnit(ctx context.Context, desc config.StreamDescriptor, stats *Stats) {
	logger := s.logger.With("stream", desc.Name, "transport", string(desc.Transport))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream unit panicked", "panic", r)
			s.transition(desc.Name, stats, StateFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	backoff := NewBackoff(desc.ReconnectDelay(), desc.MaxRetries, s.clock)

	for {
		if ctx.Err() != nil {
			s.transition(desc.Name, stats, StateIdle, "stopped")
			return
		}

		s.transition(desc.Name, stats, StateConnecting, "connecting")
		if err := s.limiter.Acquire(ctx, desc.Name); err != nil {
			s.transition(desc.Name, stats, StateIdle, "stopped")
			return
		}

		conn, err := s.factory(desc, s.limiter)
		if err == nil {
			err = conn.Connect(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				s.transition(desc.Name, stats, StateIdle, "stopped")
				return
			}
			stats.RecordError()
			backoff.Failure()
			logger.Warn("connect failed",
				"error", err, "consecutive_failures", backoff.Failures())

			if backoff.Exhausted() {
				s.fail(desc.Name, stats, logger, backoff.Failures())
				return
			}
			s.transition(desc.Name, stats, StateDisconnected, "reconnecting")
			stats.RecordReconnect()
			if s.metrics != nil {
				s.metrics.Reconnects.WithLabelValues(desc.Name).Inc()
			}
			if err := backoff.Wait(ctx); err != nil {
				s.transition(desc.Name, stats, StateIdle, "stopped")
				return
			}
			continue
		}

		s.markConnected(desc.Name, stats)
		logger.Info("stream connected")

		terminal := s.receive(ctx, desc, conn, stats, backoff, logger)
		_ = conn.Close()
		s.markDisconnected(desc.Name, stats, StateDisconnected)

		if ctx.Err() != nil {
			s.transition(desc.Name, stats, StateIdle, "stopped")
			return
		}
		if backoff.Exhausted() {
			s.fail(desc.Name, stats, logger, backoff.Failures())
			return
		}
		if terminal {
			stats.RecordReconnect()
			if s.metrics != nil {
				s.metrics.Reconnects.WithLabelValues(desc.Name).Inc()
			}
			logger.Warn("stream disconnected, reconnecting",
				"consecutive_failures", backoff.Failures())
			if err := backoff.Wait(ctx); err != nil {
				s.transition(desc.Name, stats, StateIdle, "stopped")
				return
			}
		}
	}
}

// receive pumps payloads until the connection dies, the failure budget is
// spent, or ctx is cancelled. Returns true when the connection must be
// reopened.
func (s *Supervisor) receive(ctx context.Context, desc config.StreamDescriptor, conn Conn, stats *Stats, backoff *Backoff, logger *slog.Logger) (terminal bool) {
	for {
		if ctx.Err() != nil {
			return false
		}

		payload, err := conn.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}

			var ce *ConnError
			if !stderrors.As(err, &ce) {
				logger.Error("unclassified transport error", "error", err)
				stats.RecordError()
				backoff.Failure()
				return true
			}

			stats.RecordError()
			backoff.Failure()
			if backoff.Exhausted() {
				return false
			}
			if ce.Terminal {
				return true
			}
			// Failed tick on a polled source; stay connected.
			logger.Warn("poll tick failed",
				"error", ce, "consecutive_failures", backoff.Failures())
			continue
		}

		backoff.Success()
		s.deliver(desc, payload, stats)
	}
}

// deliver fans a payload out to the sink. A payload holding a JSON array
// is split into one raw record per element, preserving order; anything
// else is forwarded whole.
func (s *Supervisor) deliver(desc config.StreamDescriptor, payload []byte, stats *Stats) {
	now := s.clock.Now()

	for _, item := range splitPayload(payload) {
		stats.RecordMessage(now)
		if s.metrics != nil {
			s.metrics.MessagesReceived.WithLabelValues(desc.Name).Inc()
		}
		s.sink.HandleRaw(record.Raw{
			Category:  desc.Category,
			Stream:    desc.Name,
			Payload:   item,
			ArrivedAt: now,
		})
	}
}

// splitPayload separates a top-level JSON array into its elements. Polled
// sources typically return batches; push sources send single objects.
func splitPayload(payload []byte) [][]byte {
	trimmed := 0
	for trimmed < len(payload) {
		switch payload[trimmed] {
		case ' ', '\t', '\n', '\r':
			trimmed++
			continue
		}
		break
	}
	if trimmed >= len(payload) || payload[trimmed] != '[' {
		return [][]byte{payload}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload[trimmed:], &items); err != nil {
		return [][]byte{payload}
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out
}

func (s *Supervisor) markConnected(name string, stats *Stats) {
	stats.markConnected(s.clock.Now())
	if s.metrics != nil {
		s.metrics.StreamsConnected.Inc()
	}
	if s.health != nil {
		s.health.UpdateHealthy("stream."+name, "connected")
	}
}

func (s *Supervisor) markDisconnected(name string, stats *Stats, st State) {
	wasConnected := stats.Connected()
	stats.markDisconnected(st)
	if wasConnected && s.metrics != nil {
		s.metrics.StreamsConnected.Dec()
	}
	if s.health != nil {
		s.health.UpdateDegraded("stream."+name, "disconnected")
	}
}

// transition updates state for the non-connected states. Connected and
// Disconnected go through markConnected/markDisconnected so the gauge
// stays balanced.
func (s *Supervisor) transition(name string, stats *Stats, st State, msg string) {
	if stats.Connected() {
		s.markDisconnected(name, stats, st)
		return
	}
	stats.setState(st)
	if s.health == nil {
		return
	}
	switch st {
	case StateFailed:
		s.health.UpdateUnhealthy("stream."+name, msg)
	case StateConnected:
		s.health.UpdateHealthy("stream."+name, msg)
	default:
		s.health.UpdateDegraded("stream."+name, msg)
	}
}

// fail parks the unit in the Failed state. The goroutine exits; only
// Restart brings the stream back.
func (s *Supervisor) fail(name string, stats *Stats, logger *slog.Logger, failures int) {
	s.transition(name, stats, StateFailed, "retry budget exhausted")
	logger.Error("stream failed, awaiting restart",
		"error", errors.ErrStreamFailed, "consecutive_failures", failures)
}
