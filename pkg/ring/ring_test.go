package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_EnqueueDequeue(t *testing.T) {
	r := New[int](4)

	r.Enqueue(1)
	r.Enqueue(2)
	r.Enqueue(3)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())

	v, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.Equal(t, 1, r.Len())
}

func TestRing_DequeueEmpty(t *testing.T) {
	r := New[string](2)

	v, ok := r.Dequeue()
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := New[int](3)

	for i := 1; i <= 5; i++ {
		r.Enqueue(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Evicted())

	// Oldest two were overwritten; 3, 4, 5 remain in order
	for _, expected := range []int{3, 4, 5} {
		v, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, expected, v)
	}

	_, ok := r.Dequeue()
	assert.False(t, ok)
}

func TestRing_Peek(t *testing.T) {
	r := New[int](2)

	_, ok := r.Peek()
	assert.False(t, ok)

	r.Enqueue(7)
	r.Enqueue(8)

	v, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, r.Len(), "peek must not remove")
}

func TestRing_Snapshot(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Enqueue(i)
	}

	snap := r.Snapshot()
	assert.Equal(t, []int{3, 4, 5}, snap)
	assert.Equal(t, 3, r.Len(), "snapshot must not drain the ring")

	// Snapshot is a copy
	snap[0] = 99
	v, _ := r.Peek()
	assert.Equal(t, 3, v)
}

func TestRing_Clear(t *testing.T) {
	r := New[int](3)
	r.Enqueue(1)
	r.Enqueue(2)
	r.Enqueue(3)
	r.Enqueue(4)

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(1), r.Evicted(), "clear preserves the eviction count")

	_, ok := r.Dequeue()
	assert.False(t, ok)

	// Usable after clear
	r.Enqueue(9)
	v, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New[int](0)
	assert.Equal(t, 1, r.Cap())

	r.Enqueue(1)
	r.Enqueue(2)
	v, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRing_WrapAround(t *testing.T) {
	r := New[int](3)

	// Interleave enqueues and dequeues so head and tail wrap repeatedly
	next := 1
	for cycle := 0; cycle < 10; cycle++ {
		r.Enqueue(next)
		next++
		r.Enqueue(next)
		next++

		v, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, next-2, v)

		v, ok = r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, next-1, v)
	}

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(0), r.Evicted())
}

func TestRing_ConcurrentAccess(t *testing.T) {
	const (
		producers = 4
		perWorker = 1000
	)

	r := New[int](64)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				r.Enqueue(base + i)
				if i%3 == 0 {
					r.Dequeue()
				}
				if i%7 == 0 {
					r.Snapshot()
				}
			}
		}(p * perWorker)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), r.Cap())
}
