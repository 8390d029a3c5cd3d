package testutil

import (
	"context"
	"sync"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/transport"
)

// MockTransport is a scriptable transport.Client for tests. It runs the
// real state machine, so state transitions and failure reasons behave
// exactly like the wire transports: tests drive the server side by
// emitting events and ending sessions.
type MockTransport struct {
	mu sync.Mutex

	// ConnectFunc, when set, replaces the default connect behavior.
	ConnectFunc func(ctx context.Context) error

	// SendFunc, when set, replaces the default send behavior.
	SendFunc func(ctx context.Context, payload any) error

	tracker *transport.Tracker
	events  chan message.Event

	// Scripted connect failures, consumed one per attempt.
	connectErrs []error

	connectCalls    int
	disconnectCalls int

	sent []any
}

// NewMockTransport creates a mock in StateDisconnected. The optional
// handler observes state transitions like the real clients' option.
func NewMockTransport(handler transport.StateHandler) *MockTransport {
	return &MockTransport{tracker: transport.NewTracker(handler)}
}

var _ transport.Client = (*MockTransport)(nil)

// FailConnects scripts the next len(errs) Connect calls to fail with
// the given errors, in order. Later calls succeed again.
func (m *MockTransport) FailConnects(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErrs = append(m.connectErrs, errs...)
}

// Connect opens a fresh session with a new event channel, honoring any
// scripted failures first.
func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connectCalls++
	var scripted error
	if len(m.connectErrs) > 0 {
		scripted = m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
	}
	fn := m.ConnectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	if err := m.tracker.BeginConnect(); err != nil {
		return errors.WrapInvalid(err, "mocktransport", "Connect", "begin session")
	}
	if scripted != nil {
		m.tracker.Fail(scripted)
		return scripted
	}

	m.mu.Lock()
	m.events = make(chan message.Event, 64)
	m.mu.Unlock()

	m.tracker.Connected()
	return nil
}

// Emit delivers events to the current session. It panics when no
// session is open, which in a test means Connect was never called.
func (m *MockTransport) Emit(events ...message.Event) {
	m.mu.Lock()
	ch := m.events
	m.mu.Unlock()

	if ch == nil {
		panic("testutil: Emit without an open session")
	}
	for _, evt := range events {
		ch <- evt
	}
}

// EndSession closes the current session the way a dead upstream would:
// the event channel closes and, when err is non-nil, the client lands
// in StateFailed with that reason.
func (m *MockTransport) EndSession(err error) {
	m.mu.Lock()
	ch := m.events
	m.events = nil
	m.mu.Unlock()

	if err != nil {
		m.tracker.Fail(err)
	}
	if ch != nil {
		close(ch)
	}
}

// Send records the payload for later inspection.
func (m *MockTransport) Send(ctx context.Context, payload any) error {
	m.mu.Lock()
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, payload)
	}

	if m.tracker.State() != transport.StateConnected {
		return errors.WrapInvalid(errors.ErrNotConnected, "mocktransport", "Send", "check connection")
	}

	m.mu.Lock()
	m.sent = append(m.sent, payload)
	m.mu.Unlock()
	return nil
}

// Receive returns the current session's channel, or nil before the
// first Connect.
func (m *MockTransport) Receive() <-chan message.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// State returns the current connection state.
func (m *MockTransport) State() transport.State {
	return m.tracker.State()
}

// Err returns the recorded failure reason, or nil.
func (m *MockTransport) Err() error {
	return m.tracker.Err()
}

// Disconnect ends any open session and returns to StateDisconnected.
func (m *MockTransport) Disconnect() error {
	m.mu.Lock()
	m.disconnectCalls++
	ch := m.events
	m.events = nil
	m.mu.Unlock()

	if m.tracker.State() == transport.StateDisconnected {
		return nil
	}
	m.tracker.Disconnecting()
	if ch != nil {
		close(ch)
	}
	m.tracker.Disconnected()
	return nil
}

// Connects returns how many times Connect was called.
func (m *MockTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

// Disconnects returns how many times Disconnect was called.
func (m *MockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectCalls
}

// Sent returns a copy of everything passed to Send.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}
