package health

import "time"

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Level:     LevelHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewWarning creates a new warning status
func NewWarning(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Level:     LevelWarning,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewCritical creates a new critical status
func NewCritical(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Level:     LevelCritical,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate creates a status by aggregating sub-statuses
// The aggregation rules are:
// - If all sub-statuses are healthy, the aggregate is healthy
// - If any sub-status is critical, the aggregate is critical
// - If no sub-status is critical but at least one is warning, the aggregate is warning
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	hasCritical := false
	hasWarning := false

	for _, sub := range subStatuses {
		if sub.IsCritical() {
			hasCritical = true
		} else if sub.IsWarning() {
			hasWarning = true
		}
	}

	var status Status
	if hasCritical {
		status = NewCritical(component, "One or more sub-components are critical")
	} else if hasWarning {
		status = NewWarning(component, "One or more sub-components are degraded")
	} else {
		status = NewHealthy(component, "All sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)

	return status
}
