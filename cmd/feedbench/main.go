// Package main implements feedbench, a load harness that runs N
// concurrent feed consumers against one endpoint for a fixed duration
// and reports per-client and aggregate throughput. Each client is a
// full consumer with its own transport connection, so the bench
// exercises the same pipeline the daemon runs, replicated by
// instantiation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/feedline/pkg/ring"
	"github.com/c360/feedline/stream"
	"github.com/c360/feedline/transport"
	"github.com/c360/feedline/transport/sse"
	"github.com/c360/feedline/transport/websocket"
)

// latencyWindow is how many latency observations each client keeps for
// the summary.
const latencyWindow = 512

type benchConfig struct {
	url       string
	transport string
	clients   int
	duration  time.Duration
	queueCap  int
	pace      time.Duration
	logLevel  string
}

type clientResult struct {
	events     uint64
	bytes      uint64
	shed       uint64
	failures   uint64
	reconnects uint64
	elapsed    time.Duration
	latencies  []time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feedbench: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.logLevel)
	slog.SetDefault(logger)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	runCtx, cancel := context.WithTimeout(signalCtx, cfg.duration)
	defer cancel()

	fmt.Printf("feedbench: %d client(s), %s via %s for %s\n",
		cfg.clients, cfg.url, cfg.transport, cfg.duration)

	results := make([]clientResult, cfg.clients)
	g, ctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.clients; i++ {
		i := i
		g.Go(func() error {
			result, err := runClient(ctx, i, cfg, logger)
			results[i] = result
			return err
		})
	}

	err = g.Wait()
	printSummary(results)

	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}

func parseFlags() (benchConfig, error) {
	var cfg benchConfig
	flag.StringVar(&cfg.url, "url", "", "Feed endpoint (http(s):// for SSE, ws(s):// for WebSocket)")
	flag.StringVar(&cfg.transport, "transport", "sse", "Transport kind: sse or websocket")
	flag.IntVar(&cfg.clients, "clients", 4, "Number of concurrent consumers")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "How long to run")
	flag.IntVar(&cfg.queueCap, "queue", 0, "Delivery queue capacity per client, 0 for the default")
	flag.DurationVar(&cfg.pace, "pace", 0, "Minimum spacing between deliveries, 0 for unpaced")
	flag.StringVar(&cfg.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()

	if cfg.url == "" {
		return cfg, fmt.Errorf("-url is required")
	}
	switch cfg.transport {
	case "sse", "websocket":
	default:
		return cfg, fmt.Errorf("-transport must be sse or websocket, got %q", cfg.transport)
	}
	if cfg.clients < 1 {
		return cfg, fmt.Errorf("-clients must be at least 1, got %d", cfg.clients)
	}
	if cfg.duration <= 0 {
		return cfg, fmt.Errorf("-duration must be positive, got %s", cfg.duration)
	}
	return cfg, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	// Logs go to stderr so the report on stdout stays clean.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// runClient runs one consumer until the context ends and collects its
// counters. A terminal stream error fails the whole bench; running out
// the clock does not.
func runClient(ctx context.Context, id int, cfg benchConfig, logger *slog.Logger) (clientResult, error) {
	var result clientResult

	latencies := ring.New[time.Duration](latencyWindow)

	pace := cfg.pace
	if pace <= 0 {
		// Unpaced: the bench measures what the pipeline can move.
		pace = -1
	}

	consumer := stream.NewConsumer(stream.Config{
		Name:            fmt.Sprintf("bench-%d", id),
		Transport:       cfg.transport,
		QueueCapacity:   cfg.queueCap,
		DequeueInterval: pace,
	}, stream.Deps{
		NewClient: clientFactory(cfg, logger),
		Logger:    logger,
	})

	if err := consumer.Initialize(); err != nil {
		return result, fmt.Errorf("client %d: %w", id, err)
	}

	start := time.Now()
	if err := consumer.Start(ctx); err != nil {
		return result, fmt.Errorf("client %d: %w", id, err)
	}

	for evt := range consumer.Events() {
		result.events++
		result.bytes += uint64(len(evt.Raw))
		if d := evt.Latency(); d > 0 {
			latencies.Enqueue(d)
		}
	}
	result.elapsed = time.Since(start)

	if err := consumer.Stop(5 * time.Second); err != nil {
		logger.Warn("Client stop failed", "client", id, "error", err)
	}

	if err := consumer.Err(); err != nil && ctx.Err() == nil {
		return result, fmt.Errorf("client %d: %w", id, err)
	}

	stats := consumer.Stats()
	result.shed = stats.Shed
	result.failures = stats.DecodeFailures
	result.reconnects = stats.Reconnects
	result.latencies = latencies.Snapshot()
	return result, nil
}

// clientFactory builds the per-client transport factory for the
// configured kind.
func clientFactory(cfg benchConfig, logger *slog.Logger) stream.ClientFactory {
	return func(state transport.StateHandler, failure transport.FailureHandler, overflow transport.OverflowHandler) (transport.Client, error) {
		pipeline := []transport.PipelineOption{
			transport.WithFailureHandler(failure),
			transport.WithOverflowHandler(overflow),
		}
		if cfg.transport == "websocket" {
			return websocket.New(websocket.Config{URL: cfg.url},
				websocket.WithLogger(logger),
				websocket.WithStateHandler(state),
				websocket.WithPipelineOptions(pipeline...))
		}
		return sse.New(sse.Config{URL: cfg.url},
			sse.WithLogger(logger),
			sse.WithStateHandler(state),
			sse.WithPipelineOptions(pipeline...))
	}
}

func printSummary(results []clientResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "client\tevents\tevents/s\tMiB/s\tshed\tdecode_failures\treconnects\tmean_latency\tmax_latency")

	var total clientResult
	var totalRate, totalMiB float64
	for i, r := range results {
		rate, mib := rates(r)
		mean, max := latencyStats(r.latencies)
		fmt.Fprintf(w, "%d\t%d\t%.1f\t%.2f\t%d\t%d\t%d\t%s\t%s\n",
			i, r.events, rate, mib, r.shed, r.failures, r.reconnects, mean, max)

		total.events += r.events
		total.bytes += r.bytes
		total.shed += r.shed
		total.failures += r.failures
		total.reconnects += r.reconnects
		totalRate += rate
		totalMiB += mib
	}
	fmt.Fprintf(w, "total\t%d\t%.1f\t%.2f\t%d\t%d\t%d\t\t\n",
		total.events, totalRate, totalMiB, total.shed, total.failures, total.reconnects)
	_ = w.Flush()
}

func rates(r clientResult) (eventsPerSec, mibPerSec float64) {
	secs := r.elapsed.Seconds()
	if secs <= 0 {
		return 0, 0
	}
	return float64(r.events) / secs, float64(r.bytes) / secs / (1 << 20)
}

// latencyStats renders the trailing window's mean and max, or dashes
// when the feed carries no server timestamps.
func latencyStats(window []time.Duration) (mean, max string) {
	if len(window) == 0 {
		return "-", "-"
	}
	var sum, peak time.Duration
	for _, d := range window {
		sum += d
		if d > peak {
			peak = d
		}
	}
	return (sum / time.Duration(len(window))).Round(time.Microsecond).String(),
		peak.Round(time.Microsecond).String()
}
