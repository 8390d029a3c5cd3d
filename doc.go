// Package feedline ingests line-delimited JSON event feeds over SSE or
// WebSocket and turns them into a supervised, bounded, observable
// stream of decoded events.
//
// # Architecture
//
// One consumer owns one feed end to end:
//
//	┌─────────────────────────────────────┐
//	│           Transport Client          │  SSE or WebSocket session,
//	│      (connect, read, keepalive)     │  state machine, failure report
//	└─────────────────────────────────────┘
//	           ↓ raw bytes
//	┌─────────────────────────────────────┐
//	│              Pipeline               │  Line accumulation with an
//	│     (accumulate, decode, stamp)     │  overflow policy, JSONL decode
//	└─────────────────────────────────────┘
//	           ↓ decoded events
//	┌─────────────────────────────────────┐
//	│              Consumer               │  Bounded queue, paced dispatch,
//	│   (queue, shed, reconnect, stats)   │  reconnect policy, recent windows
//	└─────────────────────────────────────┘
//	           ↓ Events() channel
//	┌─────────────────────────────────────┐
//	│            Application              │  NATS bridge, bench harness,
//	│                                     │  or any single reader
//	└─────────────────────────────────────┘
//
// The transport reports a dead session; the consumer alone decides
// whether and when to dial again. Backpressure is reject-on-full at the
// queue: a slow reader sheds the newest events, never blocks the wire.
//
// # Packages
//
// Ingestion:
//   - jsonl: line accumulator and JSONL decoder
//   - message: decoded event and decode-failure types
//   - transport: client contract, session pipeline, keepalive policy
//   - transport/sse: Server-Sent Events client
//   - transport/websocket: WebSocket client
//
// Flow control:
//   - queue: bounded reject-on-full queue with paced dequeue
//   - stream: consumer supervising transport, queue, and reconnection
//   - pkg/ring: lossy ring buffer for recent-event windows
//   - pkg/retry: backoff policies
//
// Operations:
//   - monitor: periodic flow sampling and threshold health
//   - metric: Prometheus registry and metrics server
//   - health: health status model and aggregation
//   - component: lifecycle contract and start/stop manager
//   - config: layered configuration with schema validation and watch
//   - natsclient: NATS connection management
//   - output/nats: bridge publishing consumed events to NATS subjects
//
// # Usage
//
// Basic consumption:
//
//	factory := func(state transport.StateHandler, failure transport.FailureHandler, overflow transport.OverflowHandler) (transport.Client, error) {
//	    return sse.New(sse.Config{URL: "https://feed.example.com/v1/stream"},
//	        sse.WithStateHandler(state),
//	        sse.WithPipelineOptions(
//	            transport.WithFailureHandler(failure),
//	            transport.WithOverflowHandler(overflow),
//	        ))
//	}
//
//	consumer := stream.NewConsumer(stream.Config{Name: "orders"}, stream.Deps{NewClient: factory})
//	consumer.Initialize()
//	consumer.Start(ctx)
//
//	for evt := range consumer.Events() {
//	    handle(evt)
//	}
//	if err := consumer.Err(); err != nil {
//	    // the stream died; a clean Stop leaves Err nil
//	}
//
// Multiple feeds are multiple consumers. Nothing is shared between
// instances, so replication is instantiation.
//
// # Binary
//
// The feedline daemon wires a consumer to the NATS bridge, the flow
// monitor, the metrics server, and the config watcher:
//
//	./bin/feedline --config configs/example.json
//
// feedbench runs N concurrent consumers against one endpoint and
// reports throughput:
//
//	./bin/feedbench -url https://feed.example.com/v1/stream -clients 8 -duration 30s
package feedline
