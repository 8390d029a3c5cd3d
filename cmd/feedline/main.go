// Package main implements the feedline ingest daemon. It connects to a
// JSONL feed over SSE or WebSocket, runs the decoded events through the
// bounded delivery queue, and optionally republishes them onto NATS,
// with Prometheus metrics and health endpoints on the side.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/config"
	"github.com/c360/feedline/jsonl"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/monitor"
	"github.com/c360/feedline/natsclient"
	natsout "github.com/c360/feedline/output/nats"
	"github.com/c360/feedline/stream"
	"github.com/c360/feedline/transport"
	"github.com/c360/feedline/transport/sse"
	"github.com/c360/feedline/transport/websocket"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "feedline"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, loader, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting feedline",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"transport", cfg.Transport.Kind,
		"endpoint", cfg.Transport.ActiveURL())

	registry := metric.NewMetricsRegistry()

	consumer, err := buildConsumer(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("build consumer: %w", err)
	}
	collector := buildCollector(cfg, consumer, registry, logger)

	manager := component.NewManager(logger)

	// Registration order is start order; the manager stops in reverse,
	// so the consumer closes its event channel while the bridge is
	// still draining and the metrics server outlives them both.
	if cfg.Metrics.Enabled {
		if err := manager.Register(newMetricsComponent(cfg, registry, manager, consumer, collector, logger)); err != nil {
			return fmt.Errorf("register metrics server: %w", err)
		}
	}

	ctx := context.Background()
	if cfg.NATS.Enabled {
		natsClient, err := buildNATSClient(cfg.NATS, registry, logger)
		if err != nil {
			return fmt.Errorf("create NATS client: %w", err)
		}
		if err := connectNATS(ctx, natsClient); err != nil {
			return err
		}
		defer func() {
			if err := natsClient.Close(ctx); err != nil {
				slog.Warn("NATS close failed", "error", err)
			}
		}()

		bridge := natsout.NewOutput(cfg.NATS.Output, natsout.Deps{
			Publisher: natsClient,
			Source:    consumer.Events(),
			Registry:  registry,
			Logger:    logger,
		})
		if err := manager.Register(bridge); err != nil {
			return fmt.Errorf("register NATS bridge: %w", err)
		}
	} else {
		// No bridge configured: the daemon itself is the consumer, so
		// the paced dispatch loop always has a reader.
		go drainEvents(consumer, logger)
	}

	if err := manager.Register(consumer); err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	if err := manager.Register(collector); err != nil {
		return fmt.Errorf("register monitor: %w", err)
	}

	watcher := config.NewWatcher(config.WatcherDeps{
		Loader: loader,
		Safe:   config.NewSafeConfig(cfg),
		Logger: logger,
	})
	if err := manager.Register(watcher); err != nil {
		return fmt.Errorf("register config watcher: %w", err)
	}
	go applyConfigUpdates(watcher.OnChange(), collector, cliCfg.LogLevel != "")

	return runWithSignalHandling(ctx, manager, cliCfg.ShutdownTimeout)
}

// loadConfiguration loads the config file over the defaults and applies
// the CLI overrides, returning the loader so the watcher can reload the
// same layers later.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	loader.AddLayer(cliCfg.ConfigPath)

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags win over the file.
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.MetricsPort != 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// buildConsumer wires the stream consumer with a transport factory for
// the configured kind. The factory closes over the transport config so
// the consumer never needs to know which wire variant it supervises.
func buildConsumer(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*stream.Consumer, error) {
	streamCfg := cfg.Stream
	streamCfg.Transport = cfg.Transport.Kind

	factory, err := transportFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	return stream.NewConsumer(streamCfg, stream.Deps{
		NewClient: factory,
		Registry:  registry,
		Logger:    logger,
	}), nil
}

// transportFactory builds the ClientFactory for the configured
// transport kind, resolving TLS from the transport section or the
// platform-wide client TLS.
func transportFactory(cfg *config.Config, logger *slog.Logger) (stream.ClientFactory, error) {
	accOpts, err := accumulatorOptions(cfg.Transport)
	if err != nil {
		return nil, err
	}

	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		wsCfg := cfg.Transport.WebSocket
		wsCfg.TLS = cfg.TransportTLS()
		return func(state transport.StateHandler, failure transport.FailureHandler, overflow transport.OverflowHandler) (transport.Client, error) {
			return websocket.New(wsCfg,
				websocket.WithLogger(logger),
				websocket.WithStateHandler(state),
				websocket.WithPipelineOptions(
					transport.WithAccumulatorOptions(accOpts...),
					transport.WithFailureHandler(failure),
					transport.WithOverflowHandler(overflow),
				))
		}, nil

	default:
		sseCfg := cfg.Transport.SSE
		sseCfg.TLS = cfg.TransportTLS()
		return func(state transport.StateHandler, failure transport.FailureHandler, overflow transport.OverflowHandler) (transport.Client, error) {
			return sse.New(sseCfg,
				sse.WithLogger(logger),
				sse.WithStateHandler(state),
				sse.WithPipelineOptions(
					transport.WithAccumulatorOptions(accOpts...),
					transport.WithFailureHandler(failure),
					transport.WithOverflowHandler(overflow),
				))
		}, nil
	}
}

// accumulatorOptions translates the transport section's line buffering
// knobs into accumulator options.
func accumulatorOptions(t config.TransportConfig) ([]jsonl.AccumulatorOption, error) {
	var opts []jsonl.AccumulatorOption
	if t.MaxLineBytes > 0 {
		opts = append(opts, jsonl.WithMaxBufferSize(t.MaxLineBytes))
	}
	if t.OverflowPolicy != "" {
		policy, err := jsonl.ParseOverflowPolicy(t.OverflowPolicy)
		if err != nil {
			return nil, fmt.Errorf("transport.overflow_policy: %w", err)
		}
		opts = append(opts, jsonl.WithOverflowPolicy(policy))
	}
	return opts, nil
}

// buildCollector wires the flow monitor against the consumer. The
// monitor's stream label follows the consumer's name unless the config
// pins its own.
func buildCollector(cfg *config.Config, consumer *stream.Consumer, registry *metric.MetricsRegistry, logger *slog.Logger) *monitor.Collector {
	monitorCfg := cfg.Monitor
	if monitorCfg.Stream == "" && cfg.Stream.Name != "" {
		monitorCfg.Stream = cfg.Stream.Name
	}
	return monitor.NewCollector(monitorCfg, monitor.Deps{
		Source:   consumer,
		Registry: registry,
		Logger:   logger,
	})
}

// buildNATSClient creates the managed NATS connection from the config
// section.
func buildNATSClient(cfg config.NATSConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithPingInterval(cfg.PingInterval),
		natsclient.WithTimeout(cfg.ConnectTimeout),
		natsclient.WithDrainTimeout(cfg.DrainTimeout),
		natsclient.WithHealthInterval(cfg.HealthInterval),
		natsclient.WithCircuitBreakerThreshold(int32(cfg.CircuitThreshold)),
		natsclient.WithMetrics(registry),
	}
	if cfg.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.Name))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile))
	}
	return natsclient.NewClient(cfg.URL, opts...)
}

// connectNATS establishes the NATS connection and waits for it to be
// ready.
func connectNATS(ctx context.Context, client *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// drainEvents consumes the stream when no bridge is configured. The
// consumer still maintains its rolling window and metrics; this loop
// just keeps the dispatch channel moving.
func drainEvents(consumer *stream.Consumer, logger *slog.Logger) {
	n := 0
	for evt := range consumer.Events() {
		n++
		logger.Debug("Event delivered",
			"id", evt.ID, "type", evt.Type.Key(), "sequence", evt.Sequence)
	}
	if err := consumer.Err(); err != nil {
		logger.Error("Stream ended", "events", n, "error", err)
		return
	}
	logger.Info("Stream ended", "events", n)
}

// applyConfigUpdates applies hot-reloadable changes pushed by the
// config watcher: monitor thresholds always, the log level unless a
// CLI flag pinned it. Everything else is wired at startup; the watcher
// already warns about changes that need a restart.
func applyConfigUpdates(updates <-chan config.Update, collector *monitor.Collector, levelPinned bool) {
	for update := range updates {
		if update.Config == nil || len(update.Changed) == 0 {
			continue
		}

		levelChanged, thresholdsChanged := false, false
		for _, path := range update.Changed {
			if path == "log.level" {
				levelChanged = true
			}
			if strings.HasPrefix(path, "monitor.thresholds") {
				thresholdsChanged = true
			}
		}

		if levelChanged && !levelPinned {
			if lvl, err := update.Config.Log.SlogLevel(); err == nil {
				logLevel.Set(lvl)
				slog.Info("Log level updated", "level", update.Config.Log.Level)
			}
		}
		if thresholdsChanged {
			collector.SetThresholds(update.Config.Monitor.Thresholds)
			slog.Info("Monitor thresholds updated")
		}
	}
}

// runWithSignalHandling starts the components and blocks until a
// shutdown signal, then stops them in reverse within the timeout.
func runWithSignalHandling(ctx context.Context, manager *component.Manager, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}
	if err := manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	slog.Info("Feedline started", "components", manager.Count())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := manager.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Feedline shutdown complete")
	return nil
}
