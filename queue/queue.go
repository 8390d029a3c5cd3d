package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/feedline/errors"
)

const (
	// DefaultMaxPending is the queue capacity used when none is given.
	DefaultMaxPending = 1000

	// DefaultDequeueInterval is the minimum spacing between deliveries.
	DefaultDequeueInterval = time.Millisecond
)

// Queue is a bounded FIFO queue that rejects writes at capacity instead of
// evicting. It sits between the decode stage and the consumer: the producer
// learns about backpressure synchronously through ErrQueueFull, while the
// consumer blocks on Dequeue until an item is available and deliveries are
// paced by the configured interval.
//
// Enqueue never blocks. The pacing applies to Dequeue only.
type Queue[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // Points to the next write position
	tail     int // Points to the next read position
	closed   bool

	notEmpty *sync.Cond

	limiter *rate.Limiter
	stats   *Statistics   // ALWAYS initialized for observability
	metrics *queueMetrics // Optional Prometheus metrics
	opts    *queueOptions[T]
}

// New creates a queue with the given capacity. A non-positive capacity falls
// back to DefaultMaxPending. Returns an error if metrics registration fails
// when requested.
func New[T any](capacity int, options ...Option[T]) (*Queue[T], error) {
	if capacity <= 0 {
		capacity = DefaultMaxPending
	}

	opts := applyOptions(options...)

	var metrics *queueMetrics
	// Optionally expose stats as Prometheus metrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "queue", "New", "metrics registration")
		}
	}

	var limiter *rate.Limiter
	if opts.dequeueInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.dequeueInterval), 1)
	}

	q := &Queue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		limiter:  limiter,
		stats:    NewStatistics(), // ALWAYS present
		metrics:  metrics,         // Optional
		opts:     opts,
	}
	q.notEmpty = sync.NewCond(&q.mu)

	return q, nil
}

// Enqueue adds an item to the queue. It never blocks: when the queue is at
// capacity it returns ErrQueueFull so the producer can shed or back off, and
// after Close it returns ErrQueueClosed.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.ErrQueueClosed
	}

	if q.size == q.capacity {
		// ALWAYS track in stats
		q.stats.Reject()

		// ALSO track in metrics if enabled
		if q.metrics != nil {
			q.metrics.recordReject()
		}

		return errors.ErrQueueFull
	}

	q.items[q.head] = item
	q.head = (q.head + 1) % q.capacity
	q.size++

	// ALWAYS track in stats
	q.stats.Enqueue()
	q.stats.UpdateDepth(int64(q.size))

	// ALSO track in metrics if enabled
	if q.metrics != nil {
		q.metrics.recordEnqueue(q.size, q.capacity)
	}

	// Signal the waiting consumer
	q.notEmpty.Signal()

	return nil
}

// Dequeue removes and returns the oldest item. It blocks until an item is
// available, then enforces the minimum spacing between deliveries. When the
// queue is closed it keeps returning remaining items until drained, then
// returns ErrQueueClosed. Context cancellation aborts the wait with the
// context's error; no item is lost in that case because the pacing wait runs
// before removal.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	for {
		q.mu.Lock()
		if err := q.awaitItem(ctx); err != nil {
			q.mu.Unlock()
			return zero, err
		}
		if q.size == 0 {
			// Closed with nothing left to drain
			q.mu.Unlock()
			return zero, errors.ErrQueueClosed
		}
		q.mu.Unlock()

		// Pace deliveries without holding the lock
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		q.mu.Lock()
		if q.size == 0 {
			// Emptied while pacing (Clear ran); go back to waiting
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return zero, errors.ErrQueueClosed
			}
			continue
		}

		item := q.items[q.tail]
		q.items[q.tail] = zero // Clear for GC
		q.tail = (q.tail + 1) % q.capacity
		q.size--

		// ALWAYS track in stats
		q.stats.Dequeue()
		q.stats.UpdateDepth(int64(q.size))

		// ALSO track in metrics if enabled
		if q.metrics != nil {
			q.metrics.recordDequeue(q.size, q.capacity)
		}

		q.mu.Unlock()
		return item, nil
	}
}

// awaitItem blocks until the queue holds at least one item or is closed.
// Must be called with q.mu held; returns with q.mu held.
func (q *Queue[T]) awaitItem(ctx context.Context) error {
	if q.size > 0 || q.closed {
		return nil
	}

	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create a done channel to signal when we're done waiting
	done := make(chan struct{})
	defer close(done)

	// Set up context cancellation handler without holding the lock
	go func() {
		select {
		case <-ctx.Done():
			// Wake up the waiting consumer when context is cancelled.
			// This is safe because Broadcast can be called without holding the mutex.
			q.notEmpty.Broadcast()
		case <-done:
			// Function completed, exit goroutine
		}
	}()

	for q.size == 0 && !q.closed {
		// Check context before waiting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		q.notEmpty.Wait()

		// Check context after being woken up
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

// TryDequeue removes and returns the oldest item without blocking or pacing.
// Returns false when the queue is empty. Drain paths use this after Close.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T

	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.tail]
	q.items[q.tail] = zero // Clear for GC
	q.tail = (q.tail + 1) % q.capacity
	q.size--

	// ALWAYS track in stats
	q.stats.Dequeue()
	q.stats.UpdateDepth(int64(q.size))

	// ALSO track in metrics if enabled
	if q.metrics != nil {
		q.metrics.recordDequeue(q.size, q.capacity)
	}

	return item, true
}

// Len returns the current number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Cap returns the maximum number of pending items.
func (q *Queue[T]) Cap() int {
	return q.capacity // This is immutable, so no lock needed
}

// Fill returns the current fill ratio (0.0 to 1.0).
func (q *Queue[T]) Fill() float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return float64(q.size) / float64(q.capacity)
}

// IsFull returns true if the queue is at capacity.
func (q *Queue[T]) IsFull() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size == q.capacity
}

// IsEmpty returns true if the queue contains no items.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size == 0
}

// Clear removes all pending items and returns how many were removed,
// invoking the drop callback for each.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()

	var zero T
	removed := q.size

	// Collect items for the callback before clearing
	var dropped []T
	if q.opts.dropCallback != nil && q.size > 0 {
		dropped = make([]T, q.size)
		for i := 0; i < q.size; i++ {
			dropped[i] = q.items[(q.tail+i)%q.capacity]
		}
	}

	for i := 0; i < q.capacity; i++ {
		q.items[i] = zero
	}
	q.head = 0
	q.tail = 0
	q.size = 0

	// ALWAYS track in stats
	q.stats.UpdateDepth(0)

	// ALSO track in metrics if enabled
	if q.metrics != nil {
		q.metrics.updateDepth(0, q.capacity)
	}

	q.mu.Unlock()

	// Callbacks run outside the lock to avoid deadlock
	for _, item := range dropped {
		q.opts.dropCallback(item)
	}

	return removed
}

// Close marks the end of the stream. Pending items stay dequeueable; a
// consumer blocked in Dequeue is woken and, once the queue drains, receives
// ErrQueueClosed. Close is idempotent.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true

	// Wake up the waiting consumer
	q.notEmpty.Broadcast()

	return nil
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Stats returns queue statistics (always available for observability).
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}
