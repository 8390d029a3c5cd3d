package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/config"
	"github.com/c360/feedline/health"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/monitor"
	"github.com/c360/feedline/stream"
)

// metricsComponent adapts metric.Server to the component lifecycle and
// hangs the daemon's health and inspection endpoints off the same mux.
type metricsComponent struct {
	server *metric.Server
	logger *slog.Logger
}

func newMetricsComponent(
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	manager *component.Manager,
	consumer *stream.Consumer,
	collector *monitor.Collector,
	logger *slog.Logger,
) *metricsComponent {
	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, cfg.Security)
	server.Handle("/healthz", healthzHandler(manager, collector))
	server.Handle("/recent", recentHandler(consumer))
	return &metricsComponent{server: server, logger: logger}
}

func (m *metricsComponent) Name() string { return "metrics-server" }

func (m *metricsComponent) Initialize() error { return nil }

// Start launches the blocking serve loop in its own goroutine. A bind
// failure within the grace window surfaces as a start error; anything
// later is logged.
func (m *metricsComponent) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(250 * time.Millisecond):
	}

	go func() {
		select {
		case err := <-errCh:
			if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				m.logger.Error("Metrics server failed", "error", err)
			}
		case <-ctx.Done():
		}
	}()

	m.logger.Info("Metrics server listening", "address", m.server.Address())
	return nil
}

func (m *metricsComponent) Stop(time.Duration) error {
	return m.server.Stop()
}

// healthzHandler reports aggregate daemon health: every component's
// lifecycle health plus the monitor's flow grading. Critical maps to
// 503 so probes can act on it.
func healthzHandler(manager *component.Manager, collector *monitor.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reports := manager.Health()
		statuses := make([]health.Status, 0, len(reports)+1)
		for name, report := range reports {
			statuses = append(statuses, health.FromComponentHealth(name, report))
		}
		statuses = append(statuses, collector.Status())

		overall := health.Aggregate(appName, statuses)

		code := http.StatusOK
		if overall.IsCritical() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(overall)
	})
}

// recentHandler exposes the consumer's rolling windows for live
// inspection: activity counters, recent events, recent decode
// failures.
func recentHandler(consumer *stream.Consumer) http.Handler {
	type failure struct {
		Line       string    `json:"line"`
		Reason     string    `json:"reason"`
		OccurredAt time.Time `json:"occurred_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		recent := consumer.RecentFailures()
		failures := make([]failure, 0, len(recent))
		for _, f := range recent {
			failures = append(failures, failure{
				Line:       string(f.Line),
				Reason:     f.Reason,
				OccurredAt: f.OccurredAt,
			})
		}

		snapshot := struct {
			Stats    stream.Stats      `json:"stats"`
			Events   []json.RawMessage `json:"events"`
			Failures []failure         `json:"failures,omitempty"`
		}{
			Stats:    consumer.Stats(),
			Failures: failures,
		}
		for _, evt := range consumer.Recent() {
			if data, err := json.Marshal(&evt); err == nil {
				snapshot.Events = append(snapshot.Events, data)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	})
}
