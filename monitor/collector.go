package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/health"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/pkg/ring"
	"github.com/c360/feedline/stream"
)

const (
	// DefaultInterval is the sampling period.
	DefaultInterval = 500 * time.Millisecond

	// DefaultWindow is how many samples the trailing throughput window
	// spans. At the default interval that is ten seconds.
	DefaultWindow = 20
)

// Source provides the counters the collector samples. stream.Consumer
// implements it.
type Source interface {
	Stats() stream.Stats
	LatencyWindow() []time.Duration
}

// Sample is one observation of stream flow with its derived health.
type Sample struct {
	At              time.Time     `json:"at"`
	EventsPerSecond float64       `json:"events_per_second"`
	MeanLatency     time.Duration `json:"mean_latency"`
	QueueFill       float64       `json:"queue_fill"`
	DecodeSuccess   float64       `json:"decode_success"`
	Level           health.Level  `json:"level"`
	Reasons         []string      `json:"reasons,omitempty"`
	Stats           stream.Stats  `json:"stats"`
}

// Config configures a Collector.
type Config struct {
	// Stream labels the samples in logs and metrics.
	Stream string `json:"stream,omitempty" yaml:"stream,omitempty"`

	// Interval between samples. Defaults to DefaultInterval.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// Window is the number of samples in the trailing throughput
	// window. Defaults to DefaultWindow.
	Window int `json:"window,omitempty" yaml:"window,omitempty"`

	// Thresholds for deriving health. Zero fields take defaults.
	Thresholds Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Deps carries the collector's collaborators.
type Deps struct {
	// Source is required.
	Source Source

	// Registry enables Prometheus gauges when set.
	Registry *metric.MetricsRegistry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnSample, when set, receives every sample after it is recorded.
	// It runs on the sampling goroutine and must return quickly.
	OnSample func(Sample)
}

// ratePoint is one cumulative reading for the trailing rate.
type ratePoint struct {
	at       time.Time
	received uint64
}

// Collector samples a stream's flow on a fixed interval and derives
// coarse health from it. It is purely observational: it reads counters
// and never touches the pipeline.
type Collector struct {
	config   Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry

	source   Source
	onSample func(Sample)

	points *ring.Ring[ratePoint]

	rateGauge    *prometheus.GaugeVec
	latencyGauge *prometheus.GaugeVec
	decodeGauge  *prometheus.GaugeVec

	mu        sync.Mutex
	state     component.State
	latest    Sample
	hasSample bool
	startedAt time.Time
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewCollector creates a collector. Zero config fields take defaults.
func NewCollector(cfg Config, deps Deps) *Collector {
	if cfg.Stream == "" {
		cfg.Stream = stream.DefaultName
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window <= 1 {
		cfg.Window = DefaultWindow
	}
	cfg.Thresholds = cfg.Thresholds.normalized()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *metric.Metrics
	if deps.Registry != nil {
		metrics = deps.Registry.CoreMetrics()
	}

	return &Collector{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		registry: deps.Registry,
		source:   deps.Source,
		onSample: deps.OnSample,
		points:   ring.New[ratePoint](cfg.Window),
		state:    component.StateCreated,
	}
}

// Name identifies the component in logs and health reports.
func (c *Collector) Name() string {
	return c.config.Stream + "-monitor"
}

// Initialize validates the source and registers the flow gauges.
func (c *Collector) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("cannot initialize from state %s", c.state),
			"monitor", "Initialize", "check lifecycle state")
	}
	if c.source == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "monitor", "Initialize",
			"sample source required")
	}

	if c.registry != nil {
		c.rateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedline",
			Subsystem: "monitor",
			Name:      "events_per_second",
			Help:      "Trailing-window event throughput",
		}, []string{"stream"})
		c.latencyGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedline",
			Subsystem: "monitor",
			Name:      "mean_latency_seconds",
			Help:      "Mean emission-to-decode latency over the trailing window",
		}, []string{"stream"})
		c.decodeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedline",
			Subsystem: "monitor",
			Name:      "decode_success_ratio",
			Help:      "Ratio of records decoded successfully",
		}, []string{"stream"})

		if err := c.registry.RegisterGaugeVec("monitor", "events_per_second", c.rateGauge); err != nil {
			return errors.WrapInvalid(err, "monitor", "Initialize", "register flow gauge")
		}
		if err := c.registry.RegisterGaugeVec("monitor", "mean_latency_seconds", c.latencyGauge); err != nil {
			return errors.WrapInvalid(err, "monitor", "Initialize", "register flow gauge")
		}
		if err := c.registry.RegisterGaugeVec("monitor", "decode_success_ratio", c.decodeGauge); err != nil {
			return errors.WrapInvalid(err, "monitor", "Initialize", "register flow gauge")
		}
	}

	c.state = component.StateInitialized
	return nil
}

// Start begins the sampling loop.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == component.StateStarted {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "monitor", "Start", "check lifecycle state")
	}
	if c.state != component.StateInitialized {
		c.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("cannot start from state %s", c.state),
			"monitor", "Start", "check lifecycle state")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.startedAt = time.Now()
	c.state = component.StateStarted
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(runCtx)

	c.logger.Info("Monitor started",
		"stream", c.config.Stream, "interval", c.config.Interval)
	return nil
}

// loop samples on the interval until cancelled. The first sample is
// taken immediately so the collector is never empty for a full period.
func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.observe(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.observe(now)
		}
	}
}

// observe takes one sample, records it, and notifies.
func (c *Collector) observe(now time.Time) {
	sample := c.sample(now)

	c.mu.Lock()
	previous := c.latest.Level
	had := c.hasSample
	c.latest = sample
	c.hasSample = true
	c.mu.Unlock()

	c.export(sample)

	if had && previous != sample.Level {
		c.logger.Warn("Stream health changed",
			"stream", c.config.Stream,
			"from", string(previous), "to", string(sample.Level),
			"reasons", strings.Join(sample.Reasons, "; "))
	}

	if c.onSample != nil {
		c.onSample(sample)
	}
}

// sample computes one observation from the source's counters.
func (c *Collector) sample(now time.Time) Sample {
	stats := c.source.Stats()

	c.points.Enqueue(ratePoint{at: now, received: stats.Received})
	pts := c.points.Snapshot()

	rate := 0.0
	rateKnown := len(pts) >= 2
	if rateKnown {
		first, last := pts[0], pts[len(pts)-1]
		if dt := last.at.Sub(first.at).Seconds(); dt > 0 {
			rate = float64(last.received-first.received) / dt
		} else {
			rateKnown = false
		}
	}

	var mean time.Duration
	if window := c.source.LatencyWindow(); len(window) > 0 {
		var sum time.Duration
		for _, d := range window {
			sum += d
		}
		mean = sum / time.Duration(len(window))
	}

	fill := 0.0
	if stats.QueueCapacity > 0 {
		fill = float64(stats.QueueDepth) / float64(stats.QueueCapacity)
	}

	success := 1.0
	if total := stats.Received + stats.DecodeFailures; total > 0 {
		success = float64(stats.Received) / float64(total)
	}

	level, reasons := c.thresholds().Evaluate(fill, success, rate, rateKnown)

	return Sample{
		At:              now,
		EventsPerSecond: rate,
		MeanLatency:     mean,
		QueueFill:       fill,
		DecodeSuccess:   success,
		Level:           level,
		Reasons:         reasons,
		Stats:           stats,
	}
}

// export pushes one sample into the Prometheus gauges.
func (c *Collector) export(s Sample) {
	if c.metrics != nil {
		c.metrics.RecordHealthLevel(c.config.Stream, s.Level.Severity())
	}
	if c.rateGauge != nil {
		c.rateGauge.WithLabelValues(c.config.Stream).Set(s.EventsPerSecond)
		c.latencyGauge.WithLabelValues(c.config.Stream).Set(s.MeanLatency.Seconds())
		c.decodeGauge.WithLabelValues(c.config.Stream).Set(s.DecodeSuccess)
	}
}

// SetThresholds replaces the grading thresholds while the collector
// runs, so config reloads take effect without a restart. Zero fields
// take defaults.
func (c *Collector) SetThresholds(t Thresholds) {
	c.mu.Lock()
	c.config.Thresholds = t.normalized()
	c.mu.Unlock()
}

func (c *Collector) thresholds() Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Thresholds
}

// Latest returns the most recent sample. ok is false before the first
// observation.
func (c *Collector) Latest() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.hasSample
}

// Status returns the latest sample as a health.Status for the health
// endpoint.
func (c *Collector) Status() health.Status {
	sample, ok := c.Latest()
	if !ok {
		return health.NewHealthy(c.config.Stream, "no samples yet")
	}

	message := fmt.Sprintf("%.1f events/s, queue fill %.2f, decode success %.2f",
		sample.EventsPerSecond, sample.QueueFill, sample.DecodeSuccess)
	if len(sample.Reasons) > 0 {
		message = strings.Join(sample.Reasons, "; ")
	}

	var status health.Status
	switch sample.Level {
	case health.LevelCritical:
		status = health.NewCritical(c.config.Stream, message)
	case health.LevelWarning:
		status = health.NewWarning(c.config.Stream, message)
	default:
		status = health.NewHealthy(c.config.Stream, message)
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:          c.uptime(),
		ErrorCount:      int(sample.Stats.DecodeFailures + sample.Stats.Shed + sample.Stats.Overflows),
		EventsProcessed: int64(sample.Stats.Delivered),
		LastActivity:    sample.Stats.LastEventAt,
	})
}

// Health implements component.HealthReporter. Warning still counts as
// healthy for the binary flag; critical does not.
func (c *Collector) Health() component.HealthStatus {
	sample, ok := c.Latest()

	status := component.HealthStatus{
		Healthy:   true,
		LastCheck: time.Now(),
		Uptime:    c.uptime(),
	}
	if !ok {
		return status
	}

	status.Healthy = sample.Level != health.LevelCritical
	status.ErrorCount = int(sample.Stats.DecodeFailures + sample.Stats.Shed + sample.Stats.Overflows)
	if len(sample.Reasons) > 0 {
		status.LastError = strings.Join(sample.Reasons, "; ")
	}
	return status
}

func (c *Collector) uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}

// Stop ends the sampling loop within the timeout.
func (c *Collector) Stop(timeout time.Duration) error {
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

	if cancel != nil {
		cancel()
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
		return errors.WrapTransient(errors.ErrShuttingDown, "monitor", "Stop", "await sampling loop")
	}

	c.mu.Lock()
	c.state = component.StateStopped
	c.mu.Unlock()

	c.logger.Info("Monitor stopped", "stream", c.config.Stream)
	return nil
}
