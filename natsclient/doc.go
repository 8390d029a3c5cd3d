// Package natsclient manages the outbound NATS connection decoded
// events are republished on.
//
// Client wraps a single nats.Conn with a circuit breaker in front of
// dialing: repeated dial failures open the circuit, further Connect
// calls return ErrCircuitOpen immediately, and a timer half-opens the
// circuit after an exponential backoff so the next dial can probe the
// server. Once a connection is established, reconnection is the nats
// client's own job (MaxReconnects, ReconnectWait); the circuit only
// guards the dial path.
//
// The client reports connection status, RTT, reconnect count, and circuit
// state through metric.Metrics when constructed WithMetrics, and runs
// an optional RTT health check loop that flips status and fires the
// health change callback when the server stops answering.
//
// NewTestClient starts a disposable NATS server in a container for
// integration tests.
package natsclient
