package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Stream pipeline metrics
	StreamStatus       *prometheus.GaugeVec
	BytesReceived      *prometheus.CounterVec
	RecordsExtracted   *prometheus.CounterVec
	EventsDecoded      *prometheus.CounterVec
	DecodeFailures     *prometheus.CounterVec
	BufferOverflows    *prometheus.CounterVec
	EventsDelivered    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthStatus       *prometheus.GaugeVec

	// Transport metrics
	TransportState *prometheus.GaugeVec
	Reconnects     *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Stream pipeline metrics
		StreamStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "status",
				Help:      "Stream status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"stream"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "bytes_received_total",
				Help:      "Total number of raw bytes received from the transport",
			},
			[]string{"stream", "transport"},
		),

		RecordsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "records_extracted_total",
				Help:      "Total number of newline-delimited records extracted",
			},
			[]string{"stream"},
		),

		EventsDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "events_decoded_total",
				Help:      "Total number of records decoded into events",
			},
			[]string{"stream", "type"},
		),

		DecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "decode_failures_total",
				Help:      "Total number of records that failed to decode",
			},
			[]string{"stream"},
		),

		BufferOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "buffer_overflows_total",
				Help:      "Total number of line buffer overflows",
			},
			[]string{"stream"},
		),

		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "stream",
				Name:      "events_delivered_total",
				Help:      "Total number of events delivered to the consumer",
			},
			[]string{"stream"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "feedline",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Record processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stream", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"stream", "class"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health level (0=healthy, 1=warning, 2=critical)",
			},
			[]string{"stream"},
		),

		// Transport metrics
		TransportState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "transport",
				Name:      "state",
				Help:      "Transport state (0=disconnected, 1=connecting, 2=connected, 3=disconnecting, 4=failed)",
			},
			[]string{"stream", "transport"},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
			[]string{"stream", "transport"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "feedline",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "feedline",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordStreamStatus updates stream status metric
func (c *Metrics) RecordStreamStatus(stream string, status int) {
	c.StreamStatus.WithLabelValues(stream).Set(float64(status))
}

// RecordBytesReceived adds to the raw byte counter
func (c *Metrics) RecordBytesReceived(stream, transport string, n int) {
	c.BytesReceived.WithLabelValues(stream, transport).Add(float64(n))
}

// RecordRecordsExtracted adds to the extracted record counter
func (c *Metrics) RecordRecordsExtracted(stream string, n int) {
	c.RecordsExtracted.WithLabelValues(stream).Add(float64(n))
}

// RecordEventDecoded increments the decoded event counter
func (c *Metrics) RecordEventDecoded(stream, eventType string) {
	c.EventsDecoded.WithLabelValues(stream, eventType).Inc()
}

// RecordDecodeFailure increments the decode failure counter
func (c *Metrics) RecordDecodeFailure(stream string) {
	c.DecodeFailures.WithLabelValues(stream).Inc()
}

// RecordBufferOverflow increments the buffer overflow counter
func (c *Metrics) RecordBufferOverflow(stream string) {
	c.BufferOverflows.WithLabelValues(stream).Inc()
}

// RecordEventDelivered increments the delivered event counter
func (c *Metrics) RecordEventDelivered(stream string) {
	c.EventsDelivered.WithLabelValues(stream).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(stream, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(stream, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(stream, class string) {
	c.ErrorsTotal.WithLabelValues(stream, class).Inc()
}

// RecordHealthLevel updates the health level gauge
func (c *Metrics) RecordHealthLevel(stream string, level int) {
	c.HealthStatus.WithLabelValues(stream).Set(float64(level))
}

// RecordTransportState updates the transport state gauge
func (c *Metrics) RecordTransportState(stream, transport string, state int) {
	c.TransportState.WithLabelValues(stream, transport).Set(float64(state))
}

// RecordReconnect increments the transport reconnection counter
func (c *Metrics) RecordReconnect(stream, transport string) {
	c.Reconnects.WithLabelValues(stream, transport).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
