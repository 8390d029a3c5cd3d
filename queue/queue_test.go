package queue

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/feedline/errors"
	"github.com/c360/feedline/metric"
)

// noPacing builds a queue with delivery pacing disabled so tests that move
// many items stay fast.
func noPacing[T any](t *testing.T, capacity int, options ...Option[T]) *Queue[T] {
	t.Helper()
	options = append([]Option[T]{WithDequeueInterval[T](0)}, options...)
	q, err := New[T](capacity, options...)
	require.NoError(t, err, "Failed to create queue")
	return q
}

func TestQueueBasicOperations(t *testing.T) {
	q := noPacing[string](t, 3)
	defer q.Close()

	if q.Len() != 0 {
		t.Errorf("Expected initial length 0, got %d", q.Len())
	}
	if q.Cap() != 3 {
		t.Errorf("Expected capacity 3, got %d", q.Cap())
	}
	if !q.IsEmpty() {
		t.Error("Expected queue to be empty initially")
	}

	if err := q.Enqueue("first"); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := q.Enqueue("second"); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := q.Enqueue("third"); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	if !q.IsFull() {
		t.Error("Expected queue to be full")
	}

	ctx := context.Background()

	value, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Failed to dequeue: %v", err)
	}
	if value != "first" {
		t.Errorf("Expected 'first', got %s", value)
	}

	value, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Failed to dequeue: %v", err)
	}
	if value != "second" {
		t.Errorf("Expected 'second', got %s", value)
	}

	if q.Len() != 1 {
		t.Errorf("Expected length 1, got %d", q.Len())
	}
}

func TestQueueRejectsAtCapacityAndRecovers(t *testing.T) {
	q := noPacing[int](t, 5)
	defer q.Close()

	// Fill to capacity
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	// Next enqueue must fail synchronously with the capacity sentinel
	err := q.Enqueue(99)
	if err == nil {
		t.Fatal("Expected error when enqueueing at capacity")
	}
	if !errors.Is(err, cerrors.ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	// The rejected item must not displace queued ones
	if q.Len() != 5 {
		t.Errorf("Expected length 5 after rejection, got %d", q.Len())
	}

	// After one dequeue the queue accepts again
	value, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, value)

	if err := q.Enqueue(99); err != nil {
		t.Errorf("Enqueue after dequeue should succeed, got %v", err)
	}

	// Order preserved: 1..4 then 99
	expected := []int{1, 2, 3, 4, 99}
	for i, want := range expected {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		if got != want {
			t.Errorf("Position %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestQueueRejectionIsClassifiedTransient(t *testing.T) {
	q := noPacing[int](t, 1)
	defer q.Close()

	require.NoError(t, q.Enqueue(1))

	err := q.Enqueue(2)
	require.Error(t, err)

	// Producers may retry or shed; either way this is not a fatal condition
	if !cerrors.IsTransient(err) {
		t.Errorf("Expected capacity rejection to classify transient, got %v", err)
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := noPacing[int](t, 10)
	defer q.Close()

	resultCh := make(chan int, 1)
	errCh := make(chan error, 1)

	go func() {
		value, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- value
	}()

	// Give the consumer time to block
	time.Sleep(50 * time.Millisecond)

	select {
	case v := <-resultCh:
		t.Fatalf("Dequeue returned %d before any enqueue", v)
	case err := <-errCh:
		t.Fatalf("Dequeue failed before any enqueue: %v", err)
	default:
	}

	require.NoError(t, q.Enqueue(42))

	select {
	case v := <-resultCh:
		if v != 42 {
			t.Errorf("Expected 42, got %d", v)
		}
	case err := <-errCh:
		t.Fatalf("Dequeue failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake after enqueue")
	}
}

func TestQueueDequeuePacing(t *testing.T) {
	interval := 20 * time.Millisecond
	q, err := New[int](10, WithDequeueInterval[int](interval))
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	ctx := context.Background()

	// First delivery is immediate, the next two wait out the interval
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 2*interval-5*time.Millisecond {
		t.Errorf("Expected at least ~%v between three deliveries, got %v", 2*interval, elapsed)
	}
	if elapsed > 10*interval {
		t.Errorf("Pacing overshot: expected ~%v, got %v", 2*interval, elapsed)
	}
}

func TestQueueDequeueContextCancellation(t *testing.T) {
	q := noPacing[int](t, 10)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := q.Dequeue(ctx)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("Expected ~50ms cancellation, got %v", elapsed)
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := noPacing[int](t, 10)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestQueueCloseWakesConsumer(t *testing.T) {
	q := noPacing[int](t, 10)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	// Give the consumer time to block
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, q.Close())

	select {
	case err := <-errCh:
		if !errors.Is(err, cerrors.ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked consumer")
	}
}

func TestQueueDrainsBeforeClosed(t *testing.T) {
	q := noPacing[int](t, 10)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Close())

	// Enqueue after close fails
	err := q.Enqueue(4)
	if !errors.Is(err, cerrors.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on enqueue after close, got %v", err)
	}

	// Remaining items drain in order
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		value, err := q.Dequeue(ctx)
		require.NoError(t, err, "item %d should drain after close", i)
		if value != i {
			t.Errorf("Expected %d, got %d", i, value)
		}
	}

	// Then the closed sentinel
	_, err = q.Dequeue(ctx)
	if !errors.Is(err, cerrors.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed after drain, got %v", err)
	}
}

func TestQueueCloseIdempotent(t *testing.T) {
	q := noPacing[int](t, 5)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	if !q.Closed() {
		t.Error("Expected Closed() to report true")
	}
}

func TestQueueTryDequeue(t *testing.T) {
	q := noPacing[string](t, 5)
	defer q.Close()

	// Empty queue returns false without blocking
	_, ok := q.TryDequeue()
	if ok {
		t.Error("TryDequeue on empty queue should return false")
	}

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))

	value, ok := q.TryDequeue()
	if !ok || value != "a" {
		t.Errorf("Expected ('a', true), got (%q, %v)", value, ok)
	}
}

func TestQueueClearWithDropCallback(t *testing.T) {
	var dropped []int
	var mu sync.Mutex

	q := noPacing[int](t, 5, WithDropCallback[int](func(item int) {
		mu.Lock()
		dropped = append(dropped, item)
		mu.Unlock()
	}))
	defer q.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	removed := q.Clear()
	if removed != 3 {
		t.Errorf("Expected Clear to remove 3 items, got %d", removed)
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0 after clear, got %d", q.Len())
	}

	mu.Lock()
	if len(dropped) != 3 || dropped[0] != 1 || dropped[1] != 2 || dropped[2] != 3 {
		t.Errorf("Expected dropped items [1 2 3], got %v", dropped)
	}
	mu.Unlock()

	// Queue remains usable after Clear
	require.NoError(t, q.Enqueue(10))
	value, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, value)
}

func TestQueueFill(t *testing.T) {
	q := noPacing[int](t, 4)
	defer q.Close()

	if q.Fill() != 0.0 {
		t.Errorf("Expected fill 0.0, got %f", q.Fill())
	}

	_ = q.Enqueue(1)
	_ = q.Enqueue(2)

	if q.Fill() != 0.5 {
		t.Errorf("Expected fill 0.5, got %f", q.Fill())
	}

	_ = q.Enqueue(3)
	_ = q.Enqueue(4)

	if q.Fill() != 1.0 {
		t.Errorf("Expected fill 1.0, got %f", q.Fill())
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q, err := New[int](0)
	require.NoError(t, err)
	defer q.Close()

	if q.Cap() != DefaultMaxPending {
		t.Errorf("Expected default capacity %d, got %d", DefaultMaxPending, q.Cap())
	}
}

func TestQueueStatistics(t *testing.T) {
	q := noPacing[int](t, 2)
	defer q.Close()

	stats := q.Stats()
	if stats == nil {
		t.Fatal("Expected stats to be enabled")
	}

	_ = q.Enqueue(1)
	_ = q.Enqueue(2)
	_ = q.Enqueue(3) // rejected

	if stats.Enqueues() != 2 {
		t.Errorf("Expected 2 enqueues, got %d", stats.Enqueues())
	}
	if stats.Rejects() != 1 {
		t.Errorf("Expected 1 reject, got %d", stats.Rejects())
	}
	if stats.Depth() != 2 {
		t.Errorf("Expected depth 2, got %d", stats.Depth())
	}
	if stats.MaxDepth() != 2 {
		t.Errorf("Expected max depth 2, got %d", stats.MaxDepth())
	}

	_, _ = q.Dequeue(context.Background())

	if stats.Dequeues() != 1 {
		t.Errorf("Expected 1 dequeue, got %d", stats.Dequeues())
	}

	// 2 accepted out of 3 attempts
	rate := stats.RejectRate()
	if rate < 0.33 || rate > 0.34 {
		t.Errorf("Expected reject rate ~0.333, got %f", rate)
	}

	summary := stats.Summary()
	if summary.Enqueues != 2 || summary.Rejects != 1 || summary.Dequeues != 1 {
		t.Errorf("Summary mismatch: %+v", summary)
	}
}

func TestQueueMetricsIntegration(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	q, err := New[int](10,
		WithDequeueInterval[int](0),
		WithMetrics[int](registry, "ingest"),
	)
	require.NoError(t, err)
	defer q.Close()

	_ = q.Enqueue(1)
	_ = q.Enqueue(2)
	_, _ = q.Dequeue(context.Background())

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range metricFamilies {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"feedline_queue_enqueues_total",
		"feedline_queue_dequeues_total",
		"feedline_queue_depth",
		"feedline_queue_fill",
	} {
		if !found[name] {
			t.Errorf("Expected metric %s to be registered", name)
		}
	}

	// A second queue with the same prefix conflicts at registration
	_, err = New[int](10, WithMetrics[int](registry, "ingest"))
	if err == nil {
		t.Error("Expected duplicate metrics registration to fail")
	}
}

func TestQueueSingleProducerSingleConsumer(t *testing.T) {
	q := noPacing[int](t, 100)

	const count = 1000
	var received []int

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer retries on capacity, closes when done
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for {
				err := q.Enqueue(i)
				if err == nil {
					break
				}
				if !errors.Is(err, cerrors.ErrQueueFull) {
					t.Errorf("Unexpected enqueue error: %v", err)
					return
				}
				runtime.Gosched()
			}
		}
		_ = q.Close()
	}()

	// Consumer drains until closed
	go func() {
		defer wg.Done()
		for {
			value, err := q.Dequeue(context.Background())
			if err != nil {
				if !errors.Is(err, cerrors.ErrQueueClosed) {
					t.Errorf("Unexpected dequeue error: %v", err)
				}
				return
			}
			received = append(received, value)
		}
	}()

	wg.Wait()

	if len(received) != count {
		t.Fatalf("Expected %d items, got %d", count, len(received))
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("Order violated at %d: got %d", i, v)
		}
	}
}

func TestQueueGenericTypes(t *testing.T) {
	type record struct {
		ID   int
		Name string
	}

	q := noPacing[record](t, 2)
	defer q.Close()

	require.NoError(t, q.Enqueue(record{ID: 1, Name: "first"}))
	require.NoError(t, q.Enqueue(record{ID: 2, Name: "second"}))

	result, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	if result.ID != 1 || result.Name != "first" {
		t.Errorf("Expected {1 first}, got %+v", result)
	}
}

func TestQueueNoGoroutineLeaks(t *testing.T) {
	initialGoroutines := runtime.NumGoroutine()

	q := noPacing[int](t, 10)
	defer q.Close()

	// Cancelled waits must not leave wake-up goroutines behind
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, _ = q.Dequeue(ctx)
		cancel()
	}

	// Successful dequeues must not leak either
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
		_, err := q.Dequeue(context.Background())
		require.NoError(t, err)
	}

	// Give time for goroutines to cleanup
	time.Sleep(100 * time.Millisecond)

	finalGoroutines := runtime.NumGoroutine()
	if finalGoroutines > initialGoroutines+2 {
		t.Errorf("Potential goroutine leak: started with %d, ended with %d",
			initialGoroutines, finalGoroutines)
	}
}
