package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks queue performance metrics.
type Statistics struct {
	// Atomic counters for thread-safe updates
	enqueues int64
	dequeues int64
	rejects  int64

	// Protected by mutex
	mu        sync.RWMutex
	startTime time.Time
	depth     int64
	maxDepth  int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Enqueue records a successful enqueue operation.
func (s *Statistics) Enqueue() {
	atomic.AddInt64(&s.enqueues, 1)
}

// Dequeue records a dequeue operation.
func (s *Statistics) Dequeue() {
	atomic.AddInt64(&s.dequeues, 1)
}

// Reject records an enqueue rejected at capacity.
func (s *Statistics) Reject() {
	atomic.AddInt64(&s.rejects, 1)
}

// UpdateDepth updates the current queue depth.
func (s *Statistics) UpdateDepth(depth int64) {
	s.mu.Lock()
	s.depth = depth
	if depth > s.maxDepth {
		s.maxDepth = depth
	}
	s.mu.Unlock()
}

// Enqueues returns the total number of successful enqueue operations.
func (s *Statistics) Enqueues() int64 {
	return atomic.LoadInt64(&s.enqueues)
}

// Dequeues returns the total number of dequeue operations.
func (s *Statistics) Dequeues() int64 {
	return atomic.LoadInt64(&s.dequeues)
}

// Rejects returns the total number of rejected enqueue attempts.
func (s *Statistics) Rejects() int64 {
	return atomic.LoadInt64(&s.rejects)
}

// Depth returns the current number of pending items.
func (s *Statistics) Depth() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depth
}

// MaxDepth returns the maximum depth the queue has reached.
func (s *Statistics) MaxDepth() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxDepth
}

// RejectRate returns the fraction of enqueue attempts that were rejected
// (0.0 to 1.0).
func (s *Statistics) RejectRate() float64 {
	enqueues := s.Enqueues()
	rejects := s.Rejects()

	attempts := enqueues + rejects
	if attempts == 0 {
		return 0.0
	}

	return float64(rejects) / float64(attempts)
}

// Throughput returns the average number of deliveries per second.
func (s *Statistics) Throughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()

	if elapsed == 0 {
		return 0.0
	}

	return float64(s.Dequeues()) / elapsed.Seconds()
}

// Uptime returns how long the queue has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset resets all statistics to zero.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.enqueues, 0)
	atomic.StoreInt64(&s.dequeues, 0)
	atomic.StoreInt64(&s.rejects, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.depth = 0
	s.maxDepth = 0
	s.mu.Unlock()
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Enqueues   int64         `json:"enqueues"`
	Dequeues   int64         `json:"dequeues"`
	Rejects    int64         `json:"rejects"`
	Depth      int64         `json:"depth"`
	MaxDepth   int64         `json:"max_depth"`
	RejectRate float64       `json:"reject_rate"`
	Throughput float64       `json:"throughput"`
	Uptime     time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Enqueues:   s.Enqueues(),
		Dequeues:   s.Dequeues(),
		Rejects:    s.Rejects(),
		Depth:      s.Depth(),
		MaxDepth:   s.MaxDepth(),
		RejectRate: s.RejectRate(),
		Throughput: s.Throughput(),
		Uptime:     s.Uptime(),
	}
}
