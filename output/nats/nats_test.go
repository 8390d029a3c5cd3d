package nats

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/metric"
	"github.com/c360/feedline/pkg/retry"
	"github.com/c360/feedline/testutil"
)

const recordSubject = "feed.events.feed.record.v1"

// fastRetry keeps publish retries quick in tests.
var fastRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     4 * time.Millisecond,
	Multiplier:   2.0,
}

func testEvent(id string, seq uint64) message.Event {
	evt := message.NewEvent(message.RecordType,
		map[string]any{"value": float64(seq)},
		message.WithID(id), message.WithSequence(seq))
	return *evt
}

type harness struct {
	out    *Output
	mock   *testutil.MockNATSClient
	source chan message.Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = fastRetry
	}

	mock := testutil.NewMockNATSClient()
	source := make(chan message.Event, 16)
	out := NewOutput(cfg, Deps{
		Publisher: mock,
		Source:    source,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, out.Initialize())

	return &harness{out: out, mock: mock, source: source}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.out.Start(context.Background()))
	t.Cleanup(func() { _ = h.out.Stop(2 * time.Second) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "feedline", cfg.Name)
	assert.Equal(t, "feed.events", cfg.SubjectPrefix)
	assert.Equal(t, retry.Publish(), cfg.Retry)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsWildcards(t *testing.T) {
	for _, prefix := range []string{"feed.>", "feed.*", "feed events"} {
		cfg := Config{SubjectPrefix: prefix}
		err := cfg.Validate()
		require.Error(t, err, prefix)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestOutputRequiresCollaborators(t *testing.T) {
	t.Run("publisher", func(t *testing.T) {
		out := NewOutput(Config{}, Deps{Source: make(chan message.Event)})
		err := out.Initialize()
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("source", func(t *testing.T) {
		out := NewOutput(Config{}, Deps{Publisher: testutil.NewMockNATSClient()})
		err := out.Initialize()
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})
}

func TestOutputLifecycleStateChecks(t *testing.T) {
	h := newHarness(t, Config{})

	assert.True(t, errors.IsInvalid(h.out.Initialize()), "double initialize rejected")

	h.start(t)
	assert.ErrorIs(t, h.out.Start(context.Background()), errors.ErrAlreadyStarted)
}

func TestOutputPublishesEvents(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	evt := testEvent("evt-1", 1)
	h.source <- evt
	h.source <- testEvent("evt-2", 2)

	testutil.WaitForMessageCount(t, h.mock, recordSubject, 2, time.Second)

	msg := h.mock.Messages(recordSubject)[0]
	assert.Equal(t, evt.Hash(), msg.Header.Get("Nats-Msg-Id"))
	assert.JSONEq(t, `{"id":"evt-1","type":"feed.record.v1","seq":1,"value":1}`, string(msg.Data))

	stats := h.out.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Zero(t, stats.Dropped)
	assert.False(t, stats.LastPublishAt.IsZero())
}

func TestOutputSubjectForUnknownType(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	evt := message.Event{ID: "evt-bare", Fields: map[string]any{"raw": true}}
	h.source <- evt

	testutil.WaitForMessageCount(t, h.mock, "feed.events.unknown", 1, time.Second)
}

func TestOutputCustomPrefix(t *testing.T) {
	h := newHarness(t, Config{SubjectPrefix: "ingest.live"})
	h.start(t)

	h.source <- testEvent("evt-1", 1)

	testutil.WaitForMessageCount(t, h.mock, "ingest.live.feed.record.v1", 1, time.Second)
}

func TestOutputRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, Config{})
	h.mock.FailPublishes(stderrors.New("connection reset"))
	h.start(t)

	h.source <- testEvent("evt-1", 1)

	testutil.WaitForMessageCount(t, h.mock, recordSubject, 1, time.Second)

	stats := h.out.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Zero(t, stats.Dropped)
	assert.Equal(t, 2, h.mock.PublishCalls(), "one failure plus one retry")
}

func TestOutputDropsAfterRetryExhaustion(t *testing.T) {
	h := newHarness(t, Config{})
	failure := stderrors.New("connection reset")
	h.mock.FailPublishes(failure, failure, failure)
	h.start(t)

	h.source <- testEvent("evt-1", 1)
	h.source <- testEvent("evt-2", 2)

	// The second event must still get through; a dead publish never
	// stalls the stream.
	testutil.WaitForMessageCount(t, h.mock, recordSubject, 1, time.Second)

	require.Eventually(t, func() bool {
		return h.out.Stats().Dropped == 1
	}, time.Second, 10*time.Millisecond)

	stats := h.out.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestOutputDropsFatalWithoutRetry(t *testing.T) {
	h := newHarness(t, Config{})
	h.mock.FailPublishes(errors.WrapFatal(stderrors.New("authorization violation"),
		"natsclient", "PublishMsg", "publish message"))
	h.start(t)

	h.source <- testEvent("evt-1", 1)

	require.Eventually(t, func() bool {
		return h.out.Stats().Dropped == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.mock.PublishCalls(), "fatal errors are not retried")
}

func TestOutputStopsWhenSourceCloses(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	h.source <- testEvent("evt-1", 1)
	testutil.WaitForMessageCount(t, h.mock, recordSubject, 1, time.Second)

	close(h.source)

	require.NoError(t, h.out.Stop(2*time.Second))
	assert.GreaterOrEqual(t, h.mock.Flushes(), 1, "stop flushes buffered publishes")
}

func TestOutputStopIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	require.NoError(t, h.out.Stop(2*time.Second))
	require.NoError(t, h.out.Stop(2*time.Second))
}

func TestOutputStopBeforeStart(t *testing.T) {
	h := newHarness(t, Config{})
	assert.NoError(t, h.out.Stop(time.Second))
}

func TestOutputHealth(t *testing.T) {
	h := newHarness(t, Config{})

	assert.False(t, h.out.Health().Healthy, "not healthy before start")

	h.start(t)
	assert.True(t, h.out.Health().Healthy)

	require.NoError(t, h.mock.Close())
	status := h.out.Health()
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.LastError)
}

func TestOutputDataFlow(t *testing.T) {
	h := newHarness(t, Config{})
	failure := stderrors.New("connection reset")
	h.mock.FailPublishes(failure, failure, failure)
	h.start(t)

	h.source <- testEvent("evt-1", 1)
	h.source <- testEvent("evt-2", 2)

	require.Eventually(t, func() bool {
		stats := h.out.Stats()
		return stats.Published == 1 && stats.Dropped == 1
	}, time.Second, 10*time.Millisecond)

	flow := h.out.DataFlow()
	assert.InDelta(t, 0.5, flow.ErrorRate, 1e-9)
	assert.False(t, flow.LastActivity.IsZero())
}

func TestOutputRegistersCounters(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	mock := testutil.NewMockNATSClient()
	source := make(chan message.Event, 4)

	out := NewOutput(Config{Retry: fastRetry}, Deps{
		Publisher: mock,
		Source:    source,
		Registry:  registry,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, out.Initialize())
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Stop(2 * time.Second) })

	source <- testEvent("evt-1", 1)
	testutil.WaitForMessageCount(t, mock, recordSubject, 1, time.Second)

	require.Eventually(t, func() bool {
		return promtestutil.ToFloat64(out.publishedCounter) == 1.0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, promtestutil.ToFloat64(out.droppedCounter))
}
