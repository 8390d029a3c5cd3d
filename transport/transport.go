package transport

import (
	"context"
	"time"

	"github.com/c360/feedline/message"
)

// Default connection behavior shared by all transports.
const (
	// DefaultConnectTimeout bounds how long Connect may block before the
	// client moves to StateFailed with a timeout error.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds outbound writes when the caller's context
	// carries no deadline of its own.
	DefaultWriteTimeout = 5 * time.Second
)

// State is the connection state of a transport client. The integer
// values feed the transport state gauge directly, so their order is
// part of the contract: 0=disconnected, 1=connecting, 2=connected,
// 3=disconnecting, 4=failed.
type State int32

const (
	// StateDisconnected indicates no connection. A fresh Connect is
	// accepted from this state.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt in progress.
	StateConnecting

	// StateConnected indicates an active stream.
	StateConnected

	// StateDisconnecting indicates a graceful shutdown in progress.
	StateDisconnecting

	// StateFailed indicates the connection was lost or never established.
	// The reason is available through the client's Err method. A fresh
	// Connect is accepted from this state.
	StateFailed
)

// String returns the state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client is the surface shared by all feed transports. Implementations
// deliver decoded events on the channel returned by Receive and report
// parse problems through the pipeline's failure handlers, so the caller
// sees identical semantics whether the bytes arrived over SSE or
// WebSocket.
//
// Clients never reconnect on their own. When the stream drops they move
// to StateFailed and close the receive channel; the owner decides
// whether to call Connect again.
type Client interface {
	// Connect establishes the stream. It blocks until the transport is
	// ready or the connect timeout elapses, in which case the client is
	// left in StateFailed with a classified timeout error. Connect is
	// accepted from StateDisconnected and StateFailed only.
	Connect(ctx context.Context) error

	// Send publishes a payload upstream. The payload is JSON-encoded
	// once, with time values rendered as RFC 3339. Send fails with a
	// classified not-connected error unless the client is in
	// StateConnected.
	Send(ctx context.Context, payload any) error

	// Receive returns the delivery channel for the current connect
	// session. The channel closes when the session ends, whether by
	// Disconnect or by failure; a later Connect starts a fresh session
	// with a fresh channel. Receive returns nil before the first
	// Connect.
	Receive() <-chan message.Event

	// State returns the current connection state.
	State() State

	// Err returns the reason the client is in StateFailed, or nil.
	Err() error

	// Disconnect tears the stream down. It is idempotent and always
	// leaves the client in StateDisconnected.
	Disconnect() error
}

// StateHandler observes state transitions. Handlers run on the
// client's own goroutines and must return quickly; they must not call
// back into the client.
type StateHandler func(from, to State)

// FailureHandler receives per-record decode failures. The stream keeps
// running after each failure.
type FailureHandler func(message.DecodeFailure)

// OverflowHandler receives accumulator overflow diagnostics. Under the
// reset policy the stream keeps running; under the fail policy the
// client moves to StateFailed immediately after the handler returns.
type OverflowHandler func(error)
