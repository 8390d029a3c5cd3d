package transport

import (
	"sync"
	"sync/atomic"

	"github.com/c360/feedline/errors"
)

// Tracker implements the transport state machine. The owning client is
// the single writer: every transition happens on one of its goroutines
// (the Connect caller, the read loop, or the keepalive monitor), and
// the mutex keeps the state, the failure reason, and the handler
// notification order consistent between them. Observers read State and
// Err concurrently without coordination.
type Tracker struct {
	state   atomic.Int32
	mu      sync.Mutex
	err     error
	handler StateHandler
}

// NewTracker creates a tracker in StateDisconnected. The handler may
// be nil.
func NewTracker(handler StateHandler) *Tracker {
	return &Tracker{handler: handler}
}

// State returns the current state.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Err returns the recorded failure reason, or nil outside StateFailed.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// BeginConnect moves to StateConnecting and clears any previous
// failure. Only StateDisconnected and StateFailed accept a fresh
// connect; from any other state the sentinel ErrAlreadyConnected is
// returned and nothing changes.
func (t *Tracker) BeginConnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := State(t.state.Load())
	if from != StateDisconnected && from != StateFailed {
		return errors.ErrAlreadyConnected
	}

	t.err = nil
	t.transition(from, StateConnecting)
	return nil
}

// Connected moves to StateConnected.
func (t *Tracker) Connected() {
	t.to(StateConnected)
}

// Disconnecting moves to StateDisconnecting.
func (t *Tracker) Disconnecting() {
	t.to(StateDisconnecting)
}

// Disconnected moves to StateDisconnected and clears any failure
// reason, so a torn-down client always reads as cleanly idle.
func (t *Tracker) Disconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.err = nil
	if from := State(t.state.Load()); from != StateDisconnected {
		t.transition(from, StateDisconnected)
	}
}

// Fail records the reason and moves to StateFailed. The first failure
// of a session wins; later calls keep the original reason so the root
// cause is not overwritten by teardown noise.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := State(t.state.Load())
	if from == StateFailed {
		return
	}
	t.err = err
	t.transition(from, StateFailed)
}

func (t *Tracker) to(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if from := State(t.state.Load()); from != next {
		t.transition(from, next)
	}
}

// transition stores the new state and notifies the handler. Callers
// hold t.mu, which is what serializes notifications into transition
// order.
func (t *Tracker) transition(from, to State) {
	t.state.Store(int32(to))
	if t.handler != nil {
		t.handler(from, to)
	}
}
