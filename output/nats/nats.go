package nats

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/pkg/retry"
)

const (
	// DefaultName labels the bridge in logs and metrics.
	DefaultName = "feedline"

	// DefaultSubjectPrefix is prepended to every event type key.
	DefaultSubjectPrefix = "feed.events"
)

// Publisher is the slice of the NATS client the bridge needs.
// natsclient.Client satisfies it.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
	Flush() error
	IsHealthy() bool
}

// Config configures the bridge.
type Config struct {
	// Name labels this bridge instance. Defaults to DefaultName.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// SubjectPrefix is prepended to the event type key to form the
	// publish subject. Defaults to DefaultSubjectPrefix.
	SubjectPrefix string `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`

	// Retry is the per-publish retry policy. Zero value means
	// retry.Publish().
	Retry retry.Config `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DefaultConfig returns the standard bridge configuration.
func DefaultConfig() Config {
	return Config{
		Name:          DefaultName,
		SubjectPrefix: DefaultSubjectPrefix,
		Retry:         retry.Publish(),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.SubjectPrefix, " \t*>") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"subject prefix must not contain spaces or wildcards")
	}
	return nil
}

// Deps carries the bridge's collaborators.
type Deps struct {
	// Publisher is required.
	Publisher Publisher

	// Source is the channel of decoded events to republish, normally
	// stream.Consumer.Events(). Required.
	Source <-chan message.Event

	// Registry enables Prometheus counters when set.
	Registry *metric.MetricsRegistry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Published     uint64    `json:"published"`
	Dropped       uint64    `json:"dropped"`
	LastPublishAt time.Time `json:"last_publish_at,omitempty"`
}

// Output republishes decoded events onto NATS subjects derived from
// their type keys. Events that cannot be published after retries are
// dropped and counted; the bridge never blocks the stream behind a
// slow or dead NATS server longer than its retry budget.
type Output struct {
	config   Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry

	publisher Publisher
	source    <-chan message.Event

	published      atomic.Uint64
	dropped        atomic.Uint64
	lastPublishNs  atomic.Int64
	lastActivityNs atomic.Int64

	publishedCounter prometheus.Counter
	droppedCounter   prometheus.Counter

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewOutput creates a bridge. Zero config fields take defaults.
func NewOutput(cfg Config, deps Deps) *Output {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.Publish()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *metric.Metrics
	if deps.Registry != nil {
		metrics = deps.Registry.CoreMetrics()
	}

	return &Output{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		source:    deps.Source,
		state:     component.StateCreated,
	}
}

// Name identifies the component in logs and health reports.
func (o *Output) Name() string {
	return o.config.Name + "-nats-output"
}

// Initialize validates collaborators and registers the counters.
func (o *Output) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("cannot initialize from state %s", o.state),
			"output", "Initialize", "check lifecycle state")
	}
	if err := o.config.Validate(); err != nil {
		return err
	}
	if o.publisher == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "output", "Initialize",
			"publisher required")
	}
	if o.source == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "output", "Initialize",
			"event source required")
	}

	if o.registry != nil {
		o.publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "feedline",
			Subsystem:   "output",
			Name:        "published_total",
			ConstLabels: prometheus.Labels{"component": o.config.Name},
			Help:        "Total events republished to NATS",
		})
		o.droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "feedline",
			Subsystem:   "output",
			Name:        "dropped_total",
			ConstLabels: prometheus.Labels{"component": o.config.Name},
			Help:        "Total events dropped after publish failures",
		})
		if err := o.registry.RegisterCounter(o.config.Name, "output_published_total", o.publishedCounter); err != nil {
			return errors.WrapInvalid(err, "output", "Initialize", "register counter")
		}
		if err := o.registry.RegisterCounter(o.config.Name, "output_dropped_total", o.droppedCounter); err != nil {
			return errors.WrapInvalid(err, "output", "Initialize", "register counter")
		}
	}

	o.state = component.StateInitialized
	return nil
}

// Start begins bridging events from the source channel.
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state == component.StateStarted {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "output", "Start", "check lifecycle state")
	}
	if o.state != component.StateInitialized {
		o.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("cannot start from state %s", o.state),
			"output", "Start", "check lifecycle state")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.startedAt = time.Now()
	o.state = component.StateStarted
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(runCtx)

	o.logger.Info("NATS bridge started",
		"name", o.config.Name, "prefix", o.config.SubjectPrefix)
	return nil
}

// run drains the source until it closes or the context ends.
func (o *Output) run(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-o.source:
			if !ok {
				o.logger.Info("Event source closed, bridge draining done", "name", o.config.Name)
				return
			}
			o.publish(ctx, evt)
		}
	}
}

// publish sends one event, retrying per the configured policy. Failures
// after retries drop the event.
func (o *Output) publish(ctx context.Context, evt message.Event) {
	o.lastActivityNs.Store(time.Now().UnixNano())

	data, err := json.Marshal(&evt)
	if err != nil {
		o.drop(evt, errors.WrapInvalid(err, "output", "publish", "encode event"))
		return
	}

	msg := &nats.Msg{
		Subject: o.subjectFor(evt),
		Data:    data,
	}
	if hash := evt.Hash(); hash != "" {
		msg.Header = nats.Header{}
		msg.Header.Set("Nats-Msg-Id", hash)
	}

	start := time.Now()
	err = retry.Do(ctx, o.config.Retry, func() error {
		perr := o.publisher.PublishMsg(ctx, msg)
		if stderrors.Is(perr, nats.ErrMaxPayload) {
			// The event will never fit; retrying repeats the rejection.
			return retry.NonRetryable(perr)
		}
		return perr
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down mid-publish; the event is lost but not an
			// error worth alarming on.
			o.dropped.Add(1)
			return
		}
		o.drop(evt, err)
		return
	}

	o.published.Add(1)
	o.lastPublishNs.Store(time.Now().UnixNano())
	if o.publishedCounter != nil {
		o.publishedCounter.Inc()
	}
	if o.metrics != nil {
		o.metrics.RecordProcessingDuration(o.config.Name, "nats_publish", time.Since(start))
	}
}

// drop counts a lost event and logs it, rate-limited the same way the
// consumer logs shedding.
func (o *Output) drop(evt message.Event, err error) {
	n := o.dropped.Add(1)
	if o.droppedCounter != nil {
		o.droppedCounter.Inc()
	}
	if o.metrics != nil {
		o.metrics.RecordError(o.config.Name, errors.Classify(err).String())
	}
	if n == 1 || n%100 == 0 {
		o.logger.Warn("Dropping event after publish failure",
			"name", o.config.Name,
			"event_id", evt.ID,
			"subject", o.subjectFor(evt),
			"dropped_total", n,
			"error", err)
	}
}

var subjectSanitizer = strings.NewReplacer(" ", "_", "\t", "_", "*", "_", ">", "_")

// subjectFor maps an event type key onto a publish subject.
func (o *Output) subjectFor(evt message.Event) string {
	key := "unknown"
	if evt.Type.IsValid() {
		key = subjectSanitizer.Replace(evt.Type.Key())
	}
	return o.config.SubjectPrefix + "." + key
}

// Stats returns a snapshot of the bridge counters.
func (o *Output) Stats() Stats {
	s := Stats{
		Published: o.published.Load(),
		Dropped:   o.dropped.Load(),
	}
	if ns := o.lastPublishNs.Load(); ns > 0 {
		s.LastPublishAt = time.Unix(0, ns)
	}
	return s
}

// Stop ends the bridge loop and flushes buffered publishes.
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	switch o.state {
	case component.StateStopped:
		o.mu.Unlock()
		return nil
	case component.StateCreated, component.StateInitialized:
		o.state = component.StateStopped
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		o.mu.Lock()
		o.state = component.StateFailed
		o.mu.Unlock()
		return errors.WrapTransient(errors.ErrShuttingDown, "output", "Stop", "await bridge loop")
	}

	if err := o.publisher.Flush(); err != nil && !stderrors.Is(err, errors.ErrNotConnected) {
		o.logger.Warn("Flush on stop failed", "name", o.config.Name, "error", err)
	}

	o.mu.Lock()
	o.state = component.StateStopped
	o.mu.Unlock()

	o.logger.Info("NATS bridge stopped",
		"name", o.config.Name, "published", o.published.Load(), "dropped", o.dropped.Load())
	return nil
}

// Health implements component.HealthReporter.
func (o *Output) Health() component.HealthStatus {
	o.mu.Lock()
	state := o.state
	startedAt := o.startedAt
	o.mu.Unlock()

	status := component.HealthStatus{
		Healthy:    state == component.StateStarted && o.publisher.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.dropped.Load()),
	}
	if !startedAt.IsZero() {
		status.Uptime = time.Since(startedAt)
	}
	if !status.Healthy && state == component.StateStarted {
		status.LastError = "NATS connection unhealthy"
	}
	return status
}

// DataFlow implements component.FlowReporter.
func (o *Output) DataFlow() component.FlowMetrics {
	o.mu.Lock()
	startedAt := o.startedAt
	o.mu.Unlock()

	published := o.published.Load()
	dropped := o.dropped.Load()

	flow := component.FlowMetrics{}
	if !startedAt.IsZero() {
		if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
			flow.EventsPerSecond = float64(published) / elapsed
		}
	}
	if total := published + dropped; total > 0 {
		flow.ErrorRate = float64(dropped) / float64(total)
	}
	if ns := o.lastActivityNs.Load(); ns > 0 {
		flow.LastActivity = time.Unix(0, ns)
	}
	return flow
}
