// Package health provides health monitoring for pipeline components. Each
// component reports a Status into a shared Monitor; the ops endpoint serves
// the aggregate.
package health

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Well-known status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a component or of the system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// NewHealthy creates a healthy status for a component.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status for a component.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    StatusDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status for a component.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    StatusUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Aggregate combines component statuses into one system status: unhealthy
// if any component is unhealthy, degraded if any is degraded, healthy
// otherwise.
func Aggregate(systemName string, statuses []Status) Status {
	agg := NewHealthy(systemName, "all components healthy")
	agg.SubStatuses = statuses

	degraded := 0
	for _, s := range statuses {
		switch {
		case s.IsUnhealthy():
			agg.Healthy = false
			agg.Status = StatusUnhealthy
			agg.Message = s.Component + ": " + s.Message
			return agg
		case s.IsDegraded():
			degraded++
		}
	}

	if degraded > 0 {
		agg.Healthy = false
		agg.Status = StatusDegraded
		agg.Message = "degraded components present"
	}

	return agg
}

// Monitor collects status reports from pipeline components. Writers push
// their latest state through the Update helpers; the ops endpoint reads
// the rolled-up view.
type Monitor struct {
	mu      sync.RWMutex
	reports map[string]Status
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{reports: make(map[string]Status)}
}

func (m *Monitor) set(name string, s Status) {
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.reports[name] = s
	m.mu.Unlock()
}

// UpdateHealthy records a healthy report for name.
func (m *Monitor) UpdateHealthy(name, message string) {
	m.set(name, NewHealthy(name, message))
}

// UpdateDegraded records a degraded report for name.
func (m *Monitor) UpdateDegraded(name, message string) {
	m.set(name, NewDegraded(name, message))
}

// UpdateUnhealthy records an unhealthy report for name.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.set(name, NewUnhealthy(name, message))
}

// Get returns the latest report for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.reports[name]
	return s, ok
}

// GetAll returns a copy of every current report.
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.reports))
	for name, s := range m.reports {
		out[name] = s
	}
	return out
}

// AggregateHealth rolls every report into one system status. Sub-statuses
// are ordered by component name so the serialized form is stable.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	statuses := make([]Status, 0, len(m.reports))
	for _, s := range m.reports {
		statuses = append(statuses, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(statuses, func(a, b Status) int {
		return strings.Compare(a.Component, b.Component)
	})
	return Aggregate(systemName, statuses)
}
