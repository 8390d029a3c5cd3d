// Package health provides health monitoring functionality for feedline
// components and systems with thread-safe status tracking and aggregation.
//
// The health package tracks the health of individual components and
// aggregates system-wide health for the /healthz endpoint, alerting, and
// operational visibility.
//
// # Health Levels
//
// The package supports three health levels:
//   - healthy: component operating normally
//   - warning: component operating with reduced margin (queue filling,
//     decode success dipping)
//   - critical: component not functioning properly
//
// The three-level model enables proportionate operational responses. A
// warning from the stream collector might mean the consumer is falling
// behind and needs attention; a critical level means events are being
// lost or the transport is down.
//
// # Core Components
//
// Status: individual component health containing level, descriptive
// message, timestamp, optional metrics, and hierarchical sub-statuses.
//
// Monitor: thread-safe centralized tracking for multiple component
// health statuses with concurrent read/write access and automatic
// timestamp management.
//
// Helpers: convenience constructors and system-wide aggregation.
//
// # Basic Usage
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("consumer", "Stream connected, queue draining")
//	monitor.UpdateWarning("queue", "Fill ratio above 0.80")
//	monitor.UpdateCritical("transport", "Connection lost, retrying")
//
//	if status, exists := monitor.Get("consumer"); exists {
//	    fmt.Printf("consumer: %s (%s)\n", status.Level, status.Message)
//	}
//
// # System-Wide Aggregation
//
// AggregateHealth combines all tracked statuses into one:
//
//	system := monitor.AggregateHealth("feedline")
//	if system.IsCritical() {
//	    // page someone
//	}
//
// Aggregation rules: any critical sub-status makes the system critical;
// otherwise any warning makes it warning; otherwise healthy.
//
// # Integration with Components
//
// FromComponentHealth converts a component.HealthStatus (the boolean
// report from the component package) into a Status. The boolean maps to
// healthy or critical; warning levels come from collectors that observe
// gradual degradation, such as the stream metrics collector.
//
// # Security
//
// Error messages passing through FromComponentHealth are sanitized
// before exposure: URLs, file paths, IP addresses, ports, and credential
// patterns are replaced with placeholders ([URL], [PATH], [IP], [PORT],
// [REDACTED]). Health endpoints are often scraped by systems with wider
// audiences than logs.
//
// # Thread Safety
//
// All Monitor operations are safe for concurrent use. Status values are
// copied on read; callers can inspect them without holding references
// into the monitor.
package health
