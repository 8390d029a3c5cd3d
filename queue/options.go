package queue

import (
	"time"

	"github.com/c360/feedline/metric"
)

// DropCallback is invoked for each item removed by Clear.
type DropCallback[T any] func(item T)

// Option configures queue behavior using the functional options pattern.
type Option[T any] func(*queueOptions[T])

// queueOptions holds internal configuration for queue instances.
// Stats are ALWAYS collected - they are not optional.
// Metrics are optional and exposed via WithMetrics().
type queueOptions[T any] struct {
	dequeueInterval time.Duration
	dropCallback    DropCallback[T]

	// metricsReg is optional - if provided, queue stats are also exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithDequeueInterval sets the minimum spacing between consecutive deliveries.
// Defaults to DefaultDequeueInterval; a non-positive value disables pacing.
func WithDequeueInterval[T any](interval time.Duration) Option[T] {
	return func(opts *queueOptions[T]) {
		if interval < 0 {
			interval = 0
		}
		opts.dequeueInterval = interval
	}
}

// WithDropCallback sets a callback invoked for each item removed by Clear.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.dropCallback = callback
	}
}

// WithMetrics enables Prometheus metrics export for queue statistics.
// If registry is nil, this option is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// applyOptions applies functional options to create final queue configuration.
func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{
		dequeueInterval: DefaultDequeueInterval,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
