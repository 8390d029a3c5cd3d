package component

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cerrors "github.com/c360/feedline/errors"
)

// managed tracks a registered component and its lifecycle state.
// The Manager stores the named child context cancel here; the component
// itself only ever receives the context as a Start parameter.
type managed struct {
	component Lifecycle
	state     State
	cancel    context.CancelFunc
	lastError error
}

// Manager starts registered components in registration order and stops
// them in reverse. A component that fails to start rolls back the ones
// already running.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	order   []*managed
	byName  map[string]*managed
	started bool
}

// NewManager creates a component manager. A nil logger falls back to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		byName: make(map[string]*managed),
	}
}

// Register adds a component. Registration order determines start order.
func (m *Manager) Register(c Lifecycle) error {
	if c == nil {
		return cerrors.WrapInvalid(
			errors.New("nil component"), "manager", "Register", "add component")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return cerrors.WrapInvalid(
			cerrors.ErrAlreadyStarted, "manager", "Register", "add component")
	}

	name := c.Name()
	if _, exists := m.byName[name]; exists {
		return cerrors.WrapInvalid(
			fmt.Errorf("component %q already registered", name),
			"manager", "Register", "add component")
	}

	mc := &managed{component: c, state: StateCreated}
	m.byName[name] = mc
	m.order = append(m.order, mc)
	return nil
}

// Initialize initializes all components in registration order. The first
// failure aborts: components are interdependent and a half-initialized
// set is not startable.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range m.order {
		name := mc.component.Name()
		if err := mc.component.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			return cerrors.WrapFatal(err, "manager", "Initialize",
				fmt.Sprintf("initialize component %q", name))
		}
		mc.state = StateInitialized
		m.logger.Debug("Component initialized", "name", name)
	}
	return nil
}

// Start starts all components in registration order, each under its own
// child context. If one fails, components already started are stopped in
// reverse before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return cerrors.WrapInvalid(cerrors.ErrAlreadyStarted, "manager", "Start", "start components")
	}

	startedSoFar := make([]*managed, 0, len(m.order))
	for _, mc := range m.order {
		name := mc.component.Name()
		childCtx, cancel := context.WithCancel(ctx)
		mc.cancel = cancel

		m.logger.Info("Starting component", "name", name)
		if err := mc.component.Start(childCtx); err != nil {
			cancel()
			mc.cancel = nil
			mc.state = StateFailed
			mc.lastError = err
			m.logger.Error("Component failed to start", "name", name, "error", err)

			m.rollback(startedSoFar)
			return cerrors.WrapFatal(err, "manager", "Start",
				fmt.Sprintf("start component %q", name))
		}

		mc.state = StateStarted
		startedSoFar = append(startedSoFar, mc)
		m.logger.Info("Component started", "name", name)
	}

	m.started = true
	return nil
}

// rollback stops already-started components in reverse order after a
// start failure. Requires m.mu held.
func (m *Manager) rollback(started []*managed) {
	for i := len(started) - 1; i >= 0; i-- {
		mc := started[i]
		name := mc.component.Name()
		m.cancelComponent(mc)
		if err := mc.component.Stop(5 * time.Second); err != nil {
			m.logger.Warn("Component stop during rollback failed", "name", name, "error", err)
		}
		mc.state = StateStopped
	}
}

// Stop stops all components in reverse registration order. Contexts are
// cancelled first to signal shutdown intent, then each component gets
// the remainder of the shared timeout budget.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	// Cancel all component contexts first
	for i := len(m.order) - 1; i >= 0; i-- {
		m.cancelComponent(m.order[i])
	}

	deadline := time.Now().Add(timeout)
	var stopErrs []error

	for i := len(m.order) - 1; i >= 0; i-- {
		mc := m.order[i]
		if mc.state != StateStarted {
			continue
		}
		name := mc.component.Name()

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		m.logger.Info("Stopping component", "name", name)
		if err := mc.component.Stop(remaining); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			m.logger.Error("Component failed to stop", "name", name, "error", err)
			stopErrs = append(stopErrs, fmt.Errorf("stop %q: %w", name, err))
			continue
		}
		mc.state = StateStopped
	}

	m.started = false

	if len(stopErrs) > 0 {
		return cerrors.WrapTransient(errors.Join(stopErrs...),
			"manager", "Stop", fmt.Sprintf("stop %d components", len(stopErrs)))
	}
	return nil
}

// cancelComponent cancels the component's child context if present.
// Requires m.mu held.
func (m *Manager) cancelComponent(mc *managed) {
	if mc.cancel != nil {
		mc.cancel()
		mc.cancel = nil
	}
}

// States returns a snapshot of every component's lifecycle state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.order))
	for name, mc := range m.byName {
		states[name] = mc.state
	}
	return states
}

// Health returns health reports from every component implementing
// HealthReporter. Components without a reporter are omitted.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	reporters := make(map[string]HealthReporter, len(m.order))
	for name, mc := range m.byName {
		if hr, ok := mc.component.(HealthReporter); ok {
			reporters[name] = hr
		}
	}
	m.mu.Unlock()

	// Health calls run outside the lock; a slow reporter must not block
	// lifecycle operations
	reports := make(map[string]HealthStatus, len(reporters))
	for name, hr := range reporters {
		reports[name] = hr.Health()
	}
	return reports
}

// Count returns the number of registered components.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
