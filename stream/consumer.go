package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/pkg/retry"
	"github.com/c360/feedline/pkg/ring"
	"github.com/c360/feedline/queue"
	"github.com/c360/feedline/transport"
)

const (
	// DefaultName labels the stream in logs and metrics when the
	// config leaves it empty.
	DefaultName = "feedline"

	// DefaultRecentWindow is how many recent events the rolling
	// inspection window keeps.
	DefaultRecentWindow = 256

	// DefaultFailureWindow is how many recent decode failures are kept
	// for inspection.
	DefaultFailureWindow = 32

	// DefaultLatencyWindow is how many latency observations feed the
	// trailing mean.
	DefaultLatencyWindow = 512
)

// ShedPolicy defines what happens when the queue rejects an event at
// capacity.
type ShedPolicy int

const (
	// ShedDrop counts and drops the rejected event. The stream keeps
	// running; this is the default.
	ShedDrop ShedPolicy = iota

	// ShedFail treats a rejection as fatal and stops the stream, for
	// deployments where silently losing events is worse than halting.
	ShedFail
)

// String returns the policy name.
func (p ShedPolicy) String() string {
	switch p {
	case ShedDrop:
		return "drop"
	case ShedFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseShedPolicy converts a policy name to a ShedPolicy.
func ParseShedPolicy(s string) (ShedPolicy, error) {
	switch s {
	case "", "drop":
		return ShedDrop, nil
	case "fail":
		return ShedFail, nil
	default:
		return ShedDrop, fmt.Errorf("unknown shed policy %q", s)
	}
}

// MarshalJSON encodes the policy as its name.
func (p ShedPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a policy name or a bare integer.
func (p *ShedPolicy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseShedPolicy(name)
		if perr != nil {
			return perr
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid shed policy %s", data)
	}
	*p = ShedPolicy(n)
	return nil
}

// Config configures a Consumer.
type Config struct {
	// Name identifies the stream in logs, metrics, and health reports.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Transport names the transport kind for metric labels ("sse",
	// "websocket"). Informational only; the client arrives built.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	// QueueCapacity caps pending deliveries between the pump and the
	// dispatch loop. Defaults to queue.DefaultMaxPending.
	QueueCapacity int `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`

	// DequeueInterval is the minimum spacing between deliveries. Zero
	// takes queue.DefaultDequeueInterval; negative disables pacing.
	DequeueInterval time.Duration `json:"dequeue_interval,omitempty" yaml:"dequeue_interval,omitempty"`

	// RecentWindow sizes the rolling window of recent events. Defaults
	// to DefaultRecentWindow.
	RecentWindow int `json:"recent_window,omitempty" yaml:"recent_window,omitempty"`

	// ShedPolicy selects the reaction to queue rejections.
	ShedPolicy ShedPolicy `json:"shed_policy,omitempty" yaml:"shed_policy,omitempty"`

	// Reconnect bounds the reconnection loop. The zero value takes the
	// retry.Dial preset.
	Reconnect retry.Config `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// ClientFactory builds the transport client with the consumer's
// observers wired in. Transports accept handlers only at construction,
// so the consumer hands its own callbacks to whoever builds the client.
type ClientFactory func(state transport.StateHandler, failure transport.FailureHandler, overflow transport.OverflowHandler) (transport.Client, error)

// Deps carries the consumer's collaborators.
type Deps struct {
	// NewClient is required.
	NewClient ClientFactory

	// Registry enables Prometheus metrics when set.
	Registry *metric.MetricsRegistry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of consumer activity. Counters are
// cumulative since Start.
type Stats struct {
	Received       uint64    `json:"received"`
	Delivered      uint64    `json:"delivered"`
	Shed           uint64    `json:"shed"`
	DecodeFailures uint64    `json:"decode_failures"`
	Overflows      uint64    `json:"overflows"`
	Reconnects     uint64    `json:"reconnects"`
	QueueDepth     int       `json:"queue_depth"`
	QueueCapacity  int       `json:"queue_capacity"`
	LastEventAt    time.Time `json:"last_event_at,omitempty"`
}

// Consumer supervises one feed end to end: it owns the transport,
// pumps decoded events into the bounded queue, runs the paced dispatch
// loop, and applies the reconnection policy. The application reads
// Events() until the channel closes, then checks Err() for the reason,
// scanner style: nil after a deliberate Stop, the terminal error when
// the stream died.
//
// Reconnection lives here and only here. The transport clients report
// a dead session by failing; the consumer decides whether and when to
// dial again.
type Consumer struct {
	config   Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry

	newClient ClientFactory
	client    transport.Client

	queue     *queue.Queue[message.Event]
	recent    *ring.Ring[message.Event]
	failures  *ring.Ring[message.DecodeFailure]
	latencies *ring.Ring[time.Duration]
	out       chan message.Event

	received       atomic.Uint64
	delivered      atomic.Uint64
	shed           atomic.Uint64
	decodeFailures atomic.Uint64
	overflows      atomic.Uint64
	reconnects     atomic.Uint64
	bytes          atomic.Uint64
	lastEventNs    atomic.Int64

	mu          sync.Mutex
	state       component.State
	startedAt   time.Time
	terminalErr error
	cancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewConsumer creates a consumer. Zero config fields take their
// defaults; the transport is not built until Initialize.
func NewConsumer(cfg Config, deps Deps) *Consumer {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Transport == "" {
		cfg.Transport = "unknown"
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if cfg.Reconnect == (retry.Config{}) {
		cfg.Reconnect = retry.Dial()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *metric.Metrics
	if deps.Registry != nil {
		metrics = deps.Registry.CoreMetrics()
	}

	return &Consumer{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		registry:  deps.Registry,
		newClient: deps.NewClient,
		recent:    ring.New[message.Event](cfg.RecentWindow),
		failures:  ring.New[message.DecodeFailure](DefaultFailureWindow),
		latencies: ring.New[time.Duration](DefaultLatencyWindow),
		out:       make(chan message.Event),
		state:     component.StateCreated,
	}
}

// Name identifies the component in logs and health reports.
func (c *Consumer) Name() string {
	return c.config.Name + "-consumer"
}

// Initialize builds the transport client and the queue.
func (c *Consumer) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("cannot initialize from state %s", c.state),
			"consumer", "Initialize", "check lifecycle state")
	}
	if c.newClient == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "consumer", "Initialize",
			"transport factory required")
	}

	client, err := c.newClient(c.transportStateChanged, c.decodeFailed, c.bufferOverflowed)
	if err != nil {
		return errors.WrapInvalid(err, "consumer", "Initialize", "build transport client")
	}
	c.client = client

	var qopts []queue.Option[message.Event]
	if c.config.DequeueInterval > 0 {
		qopts = append(qopts, queue.WithDequeueInterval[message.Event](c.config.DequeueInterval))
	} else if c.config.DequeueInterval < 0 {
		qopts = append(qopts, queue.WithDequeueInterval[message.Event](0))
	}
	if c.registry != nil {
		qopts = append(qopts, queue.WithMetrics[message.Event](c.registry, c.config.Name))
	}
	q, err := queue.New[message.Event](c.config.QueueCapacity, qopts...)
	if err != nil {
		return errors.WrapInvalid(err, "consumer", "Initialize", "build delivery queue")
	}
	c.queue = q

	c.state = component.StateInitialized
	return nil
}

// Start connects and begins pumping. The context governs the whole run:
// cancelling it stops the stream the same way Stop does.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == component.StateStarted {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "consumer", "Start", "check lifecycle state")
	}
	if c.state != component.StateInitialized {
		c.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("cannot start from state %s", c.state),
			"consumer", "Start", "check lifecycle state")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.startedAt = time.Now()
	c.state = component.StateStarted
	c.mu.Unlock()

	c.setStreamStatus(1)

	c.wg.Add(2)
	go c.run(runCtx)
	go c.dispatch(runCtx)

	c.logger.Info("Consumer started",
		"stream", c.config.Name,
		"transport", c.config.Transport,
		"queue_capacity", c.queue.Cap())
	return nil
}

// Events returns the delivery channel. It closes when the stream ends;
// Err then reports why.
func (c *Consumer) Events() <-chan message.Event {
	return c.out
}

// Err returns the terminal error after Events closes, or nil when the
// stream ended by Stop.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalErr
}

// run owns the transport session loop: connect, pump until the session
// dies, decide whether to reconnect. Closing the queue on the way out
// lets the dispatch loop drain whatever was already accepted.
func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.queue.Close()

	sessions := 0
	for {
		if err := c.connect(ctx, sessions); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fail(err)
			return
		}
		sessions++
		c.setStreamStatus(2)

		err := c.pump(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && (errors.IsFatal(err) || errors.IsInvalid(err)) {
			c.fail(err)
			return
		}

		c.logger.Warn("Stream session ended, reconnecting",
			"stream", c.config.Name, "sessions", sessions, "error", err)
		c.client.Disconnect()
	}
}

// connect dials under the reconnection policy. Attempts stop early on
// fatal or invalid errors and on context cancellation.
func (c *Consumer) connect(ctx context.Context, sessions int) error {
	attempt := 0
	return retry.Do(ctx, c.config.Reconnect, func() error {
		attempt++
		if err := c.client.Connect(ctx); err != nil {
			c.logger.Warn("Connect attempt failed",
				"stream", c.config.Name, "attempt", attempt, "error", err)
			return err
		}
		if sessions > 0 {
			c.reconnects.Add(1)
			if c.metrics != nil {
				c.metrics.RecordReconnect(c.config.Name, c.config.Transport)
			}
			c.logger.Info("Reconnected",
				"stream", c.config.Name, "attempt", attempt)
		}
		return nil
	})
}

// pump moves one session's events into the queue. It returns the
// session's failure reason once the transport channel closes, or nil
// when cancelled.
func (c *Consumer) pump(ctx context.Context) error {
	ch := c.client.Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return c.client.Err()
			}
			if err := c.accept(evt); err != nil {
				return err
			}
		}
	}
}

// accept records one decoded event and offers it to the queue. A
// rejection at capacity is shed or escalated per the policy.
func (c *Consumer) accept(evt message.Event) error {
	c.received.Add(1)
	c.bytes.Add(uint64(len(evt.Raw)))
	c.lastEventNs.Store(time.Now().UnixNano())
	c.recent.Enqueue(evt)
	if d := evt.Latency(); d > 0 {
		c.latencies.Enqueue(d)
	}

	if c.metrics != nil {
		c.metrics.RecordBytesReceived(c.config.Name, c.config.Transport, len(evt.Raw))
		c.metrics.RecordRecordsExtracted(c.config.Name, 1)
		c.metrics.RecordEventDecoded(c.config.Name, evt.Type.Key())
	}

	err := c.queue.Enqueue(evt)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrQueueFull):
		n := c.shed.Add(1)
		if c.metrics != nil {
			c.metrics.RecordError(c.config.Name, "capacity")
		}
		if c.config.ShedPolicy == ShedFail {
			return errors.WrapFatal(errors.ErrQueueFull, "consumer", "pump", "enqueue decoded event")
		}
		if n == 1 || n%100 == 0 {
			c.logger.Warn("Queue full, shedding events",
				"stream", c.config.Name, "shed_total", n)
		}
		return nil
	case stderrors.Is(err, errors.ErrQueueClosed):
		// Shutdown already under way.
		return nil
	default:
		return err
	}
}

// dispatch runs the paced dequeue loop. After the queue closes it keeps
// draining what was accepted, so a terminal stream failure never eats
// events that already made it in.
func (c *Consumer) dispatch(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.out)

	for {
		evt, err := c.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		select {
		case c.out <- evt:
			c.delivered.Add(1)
			if c.metrics != nil {
				c.metrics.RecordEventDelivered(c.config.Name)
			}
		case <-ctx.Done():
			return
		}
	}
}

// fail records the terminal error. The queue is closed by run's defer,
// which ends delivery once the dispatch loop drains.
func (c *Consumer) fail(err error) {
	c.mu.Lock()
	c.terminalErr = err
	c.state = component.StateFailed
	c.mu.Unlock()

	c.setStreamStatus(4)
	if c.metrics != nil {
		c.metrics.RecordError(c.config.Name, errors.Classify(err).String())
	}
	c.logger.Error("Stream terminally failed", "stream", c.config.Name, "error", err)
}

// Stop cancels the run, disconnects the transport, and waits for the
// loops to finish within the timeout. Safe to call in any state.
func (c *Consumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	switch c.state {
	case component.StateStopped:
		c.mu.Unlock()
		return nil
	case component.StateCreated, component.StateInitialized:
		c.state = component.StateStopped
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.setStreamStatus(3)
	if cancel != nil {
		cancel()
	}
	if c.client != nil {
		if err := c.client.Disconnect(); err != nil {
			c.logger.Warn("Transport disconnect failed",
				"stream", c.config.Name, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		c.mu.Lock()
		c.state = component.StateFailed
		c.mu.Unlock()
		return errors.WrapTransient(errors.ErrShuttingDown, "consumer", "Stop", "await loop shutdown")
	}

	c.mu.Lock()
	if c.terminalErr == nil {
		c.state = component.StateStopped
	}
	c.mu.Unlock()

	c.setStreamStatus(0)
	c.logger.Info("Consumer stopped", "stream", c.config.Name)
	return nil
}

// Stats returns a snapshot of activity counters and queue occupancy.
func (c *Consumer) Stats() Stats {
	s := Stats{
		Received:       c.received.Load(),
		Delivered:      c.delivered.Load(),
		Shed:           c.shed.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Overflows:      c.overflows.Load(),
		Reconnects:     c.reconnects.Load(),
	}
	if c.queue != nil {
		s.QueueDepth = c.queue.Len()
		s.QueueCapacity = c.queue.Cap()
	}
	if ns := c.lastEventNs.Load(); ns > 0 {
		s.LastEventAt = time.Unix(0, ns)
	}
	return s
}

// Recent returns the rolling window of recent events, oldest first.
func (c *Consumer) Recent() []message.Event {
	return c.recent.Snapshot()
}

// RecentFailures returns the rolling window of recent decode failures,
// oldest first.
func (c *Consumer) RecentFailures() []message.DecodeFailure {
	return c.failures.Snapshot()
}

// LatencyWindow returns the trailing latency observations, oldest
// first. Events without a server timestamp contribute nothing.
func (c *Consumer) LatencyWindow() []time.Duration {
	return c.latencies.Snapshot()
}

// Health implements component.HealthReporter. Healthy means running
// with a live transport session; a consumer between reconnect attempts
// reports unhealthy with the session's failure as the last error.
func (c *Consumer) Health() component.HealthStatus {
	c.mu.Lock()
	state := c.state
	terminal := c.terminalErr
	startedAt := c.startedAt
	c.mu.Unlock()

	status := component.HealthStatus{
		LastCheck:  time.Now(),
		ErrorCount: int(c.decodeFailures.Load() + c.shed.Load() + c.overflows.Load()),
	}
	if !startedAt.IsZero() {
		status.Uptime = time.Since(startedAt)
	}

	var clientState transport.State
	if c.client != nil {
		clientState = c.client.State()
	}
	status.Healthy = state == component.StateStarted &&
		clientState == transport.StateConnected && terminal == nil

	switch {
	case terminal != nil:
		status.LastError = terminal.Error()
	case c.client != nil && c.client.Err() != nil:
		status.LastError = c.client.Err().Error()
	}
	return status
}

// DataFlow implements component.FlowReporter with coarse whole-run
// rates. The monitor computes the real trailing-window rates.
func (c *Consumer) DataFlow() component.FlowMetrics {
	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()

	flow := component.FlowMetrics{}
	if ns := c.lastEventNs.Load(); ns > 0 {
		flow.LastActivity = time.Unix(0, ns)
	}
	if startedAt.IsZero() {
		return flow
	}
	elapsed := time.Since(startedAt).Seconds()
	if elapsed <= 0 {
		return flow
	}

	received := c.received.Load()
	failed := c.decodeFailures.Load() + c.shed.Load()
	flow.EventsPerSecond = float64(c.delivered.Load()) / elapsed
	flow.BytesPerSecond = float64(c.bytes.Load()) / elapsed
	if received+failed > 0 {
		flow.ErrorRate = float64(failed) / float64(received+failed)
	}
	return flow
}

// transportStateChanged feeds the transport state gauge.
func (c *Consumer) transportStateChanged(_, to transport.State) {
	if c.metrics != nil {
		c.metrics.RecordTransportState(c.config.Name, c.config.Transport, int(to))
	}
}

// decodeFailed records one isolated record failure. The stream keeps
// flowing; the line is kept for inspection.
func (c *Consumer) decodeFailed(f message.DecodeFailure) {
	c.decodeFailures.Add(1)
	c.failures.Enqueue(f)
	if c.metrics != nil {
		c.metrics.RecordDecodeFailure(c.config.Name)
		c.metrics.RecordRecordsExtracted(c.config.Name, 1)
		c.metrics.RecordBytesReceived(c.config.Name, c.config.Transport, len(f.Line))
		c.metrics.RecordError(c.config.Name, "invalid")
	}
	c.logger.Debug("Record decode failed",
		"stream", c.config.Name, "reason", f.Reason)
}

// bufferOverflowed records a line buffer overflow. Under the reset
// policy the stream continues; under fail-fast the pipeline surfaces
// the fatal error separately and the session dies.
func (c *Consumer) bufferOverflowed(err error) {
	c.overflows.Add(1)
	if c.metrics != nil {
		c.metrics.RecordBufferOverflow(c.config.Name)
		c.metrics.RecordError(c.config.Name, errors.Classify(err).String())
	}
	c.logger.Warn("Line buffer overflow",
		"stream", c.config.Name, "error", err)
}

// setStreamStatus updates the stream status gauge (0=stopped,
// 1=starting, 2=running, 3=stopping, 4=failed).
func (c *Consumer) setStreamStatus(status int) {
	if c.metrics != nil {
		c.metrics.RecordStreamStatus(c.config.Name, status)
	}
}
