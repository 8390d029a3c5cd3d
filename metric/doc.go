// Package metric provides Prometheus-based metrics collection and HTTP server
// for feedline pipeline monitoring and observability.
//
// The package offers a centralized metrics registry managing both core platform
// metrics (stream status, pipeline throughput, transport and NATS health) and
// custom component-specific metrics. It includes an HTTP server exposing
// metrics in Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// component concerns (queue depth, ring evictions, monitor gauges) while
// providing a unified metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{} // Platform security config
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordStreamStatus("telemetry", 2)
//	coreMetrics.RecordEventDecoded("telemetry", "feed.record.v1")
//	coreMetrics.RecordNATSStatus(true)
//
// The metrics server will expose Prometheus-formatted metrics at http://localhost:9090/metrics
// and a health check at http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Stream lifecycle: stream_status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)
//   - Pipeline throughput: bytes_received_total, records_extracted_total,
//     events_decoded_total, events_delivered_total
//   - Pipeline faults: decode_failures_total, buffer_overflows_total, errors_total
//   - Processing performance: processing_duration_seconds
//   - Health: health_status (0=healthy, 1=warning, 2=critical)
//   - Transport: transport_state, transport_reconnects_total
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds,
//     nats_reconnects_total, nats_circuit_breaker
//
// Access core metrics through the registry:
//
//	coreMetrics := registry.CoreMetrics()
//
//	// Stream lifecycle tracking
//	coreMetrics.RecordStreamStatus("telemetry", 2) // 2 = running
//
//	// Pipeline metrics
//	coreMetrics.RecordBytesReceived("telemetry", "sse", 4096)
//	coreMetrics.RecordRecordsExtracted("telemetry", 12)
//	coreMetrics.RecordEventDecoded("telemetry", "feed.record.v1")
//	coreMetrics.RecordDecodeFailure("telemetry")
//	coreMetrics.RecordEventDelivered("telemetry")
//	coreMetrics.RecordProcessingDuration("telemetry", "decode", 150*time.Microsecond)
//
//	// Transport connectivity
//	coreMetrics.RecordTransportState("telemetry", "websocket", 2) // 2 = connected
//	coreMetrics.RecordReconnect("telemetry", "websocket")
//
//	// Error tracking
//	coreMetrics.RecordError("telemetry", "transient")
//	coreMetrics.RecordHealthLevel("telemetry", 1) // 1 = warning
//
// # Component-Specific Metrics
//
// Components can register custom metrics through the registry:
//
//	// Register a counter
//	rejectedCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "queue_rejected_total",
//	    Help: "Total number of events rejected at capacity",
//	})
//	err := registry.RegisterCounter("queue", "queue_rejected_total", rejectedCounter)
//
//	// Register a gauge
//	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "queue_depth",
//	    Help: "Current number of pending events",
//	})
//	err = registry.RegisterGauge("queue", "queue_depth", queueDepth)
//
//	// Register a histogram
//	waitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
//	    Name:    "dequeue_wait_seconds",
//	    Help:    "Time consumers spent waiting for an event",
//	    Buckets: prometheus.DefBuckets,
//	})
//	err = registry.RegisterHistogram("queue", "dequeue_wait_seconds", waitDuration)
//
// # Vector Metrics with Labels
//
// Register metrics with labels for multi-dimensional data:
//
//	// Counter with labels
//	framesVec := prometheus.NewCounterVec(
//	    prometheus.CounterOpts{
//	        Name: "transport_frames_total",
//	        Help: "Total frames by transport and kind",
//	    },
//	    []string{"transport", "kind"},
//	)
//	err := registry.RegisterCounterVec("transport", "transport_frames_total", framesVec)
//
//	// Use the metric with specific label values
//	framesVec.WithLabelValues("websocket", "text").Inc()
//	framesVec.WithLabelValues("sse", "event").Inc()
//
// # HTTP Server
//
// The Server type exposes metrics over HTTP with optional TLS:
//
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//	go server.Start()
//	defer server.Stop()
//
// Endpoints:
//
//   - /metrics: Prometheus exposition format (OpenMetrics enabled)
//   - /health: returns 200 OK while the server is up
//   - /: HTML index linking the above
//
// When securityCfg.TLS.Server.Enabled is true the server loads certificates
// through pkg/tlsutil and serves HTTPS instead.
//
// # MetricsRegistrar Interface
//
// Components accept the MetricsRegistrar interface rather than the concrete
// registry, which keeps them testable and decoupled:
//
//	func (q *Queue[T]) RegisterMetrics(registrar metric.MetricsRegistrar) error {
//	    return registrar.RegisterGauge("queue", "queue_depth", q.depthGauge)
//	}
//
// # Duplicate Registration
//
// The registry tracks metrics under "component.metric" keys and rejects
// duplicates before they reach Prometheus. A conflicting registration at the
// Prometheus level (same fully-qualified metric name registered by a
// different component) is also rejected with an invalid-classified error, so
// callers can distinguish misconfiguration from registry failure.
//
// # Thread Safety
//
// All registry operations are safe for concurrent use. Registration and
// unregistration take an exclusive lock; the underlying Prometheus registry
// handles concurrent metric updates itself.
package metric
