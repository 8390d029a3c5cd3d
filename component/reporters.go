package component

import (
	"time"
)

// HealthReporter is implemented by components that can report their own
// health. The Manager aggregates these for the health endpoint.
type HealthReporter interface {
	Health() HealthStatus
}

// FlowReporter is implemented by components that can report data flow
// metrics.
type FlowReporter interface {
	DataFlow() FlowMetrics
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	EventsPerSecond float64   `json:"events_per_second"`
	BytesPerSecond  float64   `json:"bytes_per_second"`
	ErrorRate       float64   `json:"error_rate"`
	LastActivity    time.Time `json:"last_activity"`
}
