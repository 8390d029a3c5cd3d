package component

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/feedline/errors"
)

// callLog records lifecycle calls across components so ordering can be
// asserted.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type fakeComponent struct {
	name     string
	log      *callLog
	initErr  error
	startErr error
	stopErr  error

	mu       sync.Mutex
	startCtx context.Context
	healthy  bool
}

func newFakeComponent(name string, log *callLog) *fakeComponent {
	return &fakeComponent{name: name, log: log, healthy: true}
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Initialize() error {
	f.log.add("init:" + f.name)
	return f.initErr
}

func (f *fakeComponent) Start(ctx context.Context) error {
	f.log.add("start:" + f.name)
	f.mu.Lock()
	f.startCtx = ctx
	f.mu.Unlock()
	return f.startErr
}

func (f *fakeComponent) Stop(_ time.Duration) error {
	f.log.add("stop:" + f.name)
	return f.stopErr
}

func (f *fakeComponent) Health() HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return HealthStatus{
		Healthy:   f.healthy,
		LastCheck: time.Now(),
	}
}

func (f *fakeComponent) contextCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startCtx == nil {
		return false
	}
	select {
	case <-f.startCtx.Done():
		return true
	default:
		return false
	}
}

func TestManagerStartStopOrder(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	b := newFakeComponent("b", log)
	c := newFakeComponent("c", log)

	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Register(b))
	require.NoError(t, mgr.Register(c))

	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Stop(time.Second))

	expected := []string{
		"init:a", "init:b", "init:c",
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}
	assert.Equal(t, expected, log.snapshot())
}

func TestManagerRegisterDuplicate(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	require.NoError(t, mgr.Register(newFakeComponent("dup", log)))

	err := mgr.Register(newFakeComponent("dup", log))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, mgr.Count())
}

func TestManagerRegisterNil(t *testing.T) {
	mgr := NewManager(nil)
	err := mgr.Register(nil)
	require.Error(t, err)
}

func TestManagerRegisterAfterStart(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	require.NoError(t, mgr.Register(newFakeComponent("a", log)))
	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.Start(context.Background()))
	defer mgr.Stop(time.Second)

	err := mgr.Register(newFakeComponent("late", log))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cerrors.ErrAlreadyStarted))
}

func TestManagerInitializeFailureAborts(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	b := newFakeComponent("b", log)
	b.initErr = errors.New("no socket")
	c := newFakeComponent("c", log)

	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Register(b))
	require.NoError(t, mgr.Register(c))

	err := mgr.Initialize()
	require.Error(t, err)
	assert.True(t, cerrors.IsFatal(err))
	assert.Contains(t, err.Error(), `component "b"`)

	// c was never reached
	assert.Equal(t, []string{"init:a", "init:b"}, log.snapshot())

	states := mgr.States()
	assert.Equal(t, StateInitialized, states["a"])
	assert.Equal(t, StateFailed, states["b"])
	assert.Equal(t, StateCreated, states["c"])
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	b := newFakeComponent("b", log)
	c := newFakeComponent("c", log)
	c.startErr = errors.New("bind failed")

	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Register(b))
	require.NoError(t, mgr.Register(c))
	require.NoError(t, mgr.Initialize())

	err := mgr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, cerrors.IsFatal(err))

	// a and b were rolled back in reverse order
	expected := []string{
		"init:a", "init:b", "init:c",
		"start:a", "start:b", "start:c",
		"stop:b", "stop:a",
	}
	assert.Equal(t, expected, log.snapshot())

	states := mgr.States()
	assert.Equal(t, StateStopped, states["a"])
	assert.Equal(t, StateStopped, states["b"])
	assert.Equal(t, StateFailed, states["c"])

	// A failed start leaves the manager restartable
	c.startErr = nil
	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Stop(time.Second))
}

func TestManagerStopCancelsContexts(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.Start(context.Background()))

	assert.False(t, a.contextCancelled())

	require.NoError(t, mgr.Stop(time.Second))
	assert.True(t, a.contextCancelled(), "component context should be cancelled before Stop")
}

func TestManagerStopCollectsErrors(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	a.stopErr = errors.New("drain timed out")
	b := newFakeComponent("b", log)

	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Register(b))
	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.Start(context.Background()))

	err := mgr.Stop(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stop "a"`)

	// b still stopped despite a failing
	states := mgr.States()
	assert.Equal(t, StateStopped, states["b"])
	assert.Equal(t, StateFailed, states["a"])
}

func TestManagerStopWithoutStart(t *testing.T) {
	mgr := NewManager(nil)
	assert.NoError(t, mgr.Stop(time.Second))
}

func TestManagerHealthReports(t *testing.T) {
	log := &callLog{}
	mgr := NewManager(nil)

	a := newFakeComponent("a", log)
	a.healthy = false
	b := newFakeComponent("b", log)

	require.NoError(t, mgr.Register(a))
	require.NoError(t, mgr.Register(b))

	reports := mgr.Health()
	require.Len(t, reports, 2)
	assert.False(t, reports["a"].Healthy)
	assert.True(t, reports["b"].Healthy)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateInitialized, "initialized"},
		{StateStarted, "started"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
