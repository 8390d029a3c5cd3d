// Package ring provides a fixed-capacity circular buffer that evicts its
// oldest entry when full.
//
// Enqueue always succeeds: at capacity the oldest item is overwritten to
// make room. That makes the ring suitable for rolling windows of recent
// data, live metrics sampling, and load-generation harnesses, where
// losing the oldest entries under pressure is acceptable. It is the
// deliberate opposite of queue.Queue, which rejects new items when full
// so the producer can shed load explicitly; the two must not be
// conflated.
package ring

import "sync"

// Ring is a thread-safe, fixed-capacity circular buffer with
// evict-oldest overflow behavior.
type Ring[T any] struct {
	mu      sync.RWMutex
	items   []T
	head    int // next write position
	tail    int // oldest item position
	size    int
	evicted uint64
}

// New creates a Ring holding at most capacity items.
// Capacities below 1 are raised to 1.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
	}
}

// Enqueue adds an item, evicting the oldest when the ring is full.
// It always succeeds.
func (r *Ring[T]) Enqueue(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.items) {
		// Overwrite the oldest slot
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
		r.evicted++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
}

// Dequeue removes and returns the oldest item.
// Returns the zero value and false when the ring is empty.
func (r *Ring[T]) Dequeue() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero // release for GC
	r.tail = (r.tail + 1) % len(r.items)
	r.size--

	return item, true
}

// Peek returns the oldest item without removing it.
// Returns the zero value and false when the ring is empty.
func (r *Ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.tail], true
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Evicted returns how many items have been overwritten since creation.
func (r *Ring[T]) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

// Snapshot returns a copy of the current contents, oldest first.
// The ring is not modified.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.tail+i)%len(r.items)]
	}
	return out
}

// Clear removes all items. The eviction counter is preserved.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.size = 0
}
