package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/feedline/metric"
)

// queueMetrics holds Prometheus metrics for queue operations.
type queueMetrics struct {
	// Counter metrics - directly incremented without stats duplication
	enqueues prometheus.Counter
	dequeues prometheus.Counter
	rejects  prometheus.Counter

	// Gauge metrics - updated on operations
	depth prometheus.Gauge
	fill  prometheus.Gauge
}

// newQueueMetrics creates and registers queue metrics with the provided registry.
func newQueueMetrics(registry *metric.MetricsRegistry, prefix string) (*queueMetrics, error) {
	m := &queueMetrics{
		enqueues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "feedline",
			Subsystem:   "queue",
			Name:        "enqueues_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of successful enqueue operations",
		}),
		dequeues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "feedline",
			Subsystem:   "queue",
			Name:        "dequeues_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of dequeue operations",
		}),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "feedline",
			Subsystem:   "queue",
			Name:        "rejects_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of enqueues rejected at capacity",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "feedline",
			Subsystem:   "queue",
			Name:        "depth",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of pending items",
		}),
		fill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "feedline",
			Subsystem:   "queue",
			Name:        "fill",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Queue fill ratio (0.0 to 1.0)",
		}),
	}

	// Register all metrics with the registry
	if err := registry.RegisterCounter(prefix, "queue_enqueues", m.enqueues); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_dequeues", m.dequeues); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_rejects", m.rejects); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_depth", m.depth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_fill", m.fill); err != nil {
		return nil, err
	}

	return m, nil
}

// recordEnqueue increments the enqueue counter and updates depth/fill.
func (m *queueMetrics) recordEnqueue(size, capacity int) {
	m.enqueues.Inc()
	m.depth.Set(float64(size))
	m.fill.Set(float64(size) / float64(capacity))
}

// recordDequeue increments the dequeue counter and updates depth/fill.
func (m *queueMetrics) recordDequeue(size, capacity int) {
	m.dequeues.Inc()
	m.depth.Set(float64(size))
	m.fill.Set(float64(size) / float64(capacity))
}

// recordReject increments the reject counter.
func (m *queueMetrics) recordReject() {
	m.rejects.Inc()
}

// updateDepth sets the current depth and fill ratio.
func (m *queueMetrics) updateDepth(size, capacity int) {
	m.depth.Set(float64(size))
	m.fill.Set(float64(size) / float64(capacity))
}
