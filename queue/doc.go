// Package queue provides the bounded backpressure queue between the decode
// stage and the consumer, with built-in statistics and optional Prometheus
// metrics integration.
//
// # Overview
//
// Queue is a fixed-capacity FIFO designed for a single producer and a single
// consumer. Unlike an evicting ring buffer, it never discards data on its
// own: when full, Enqueue fails synchronously with errors.ErrQueueFull so
// the producer decides what to shed. The consumer side blocks in Dequeue
// until an item is available and deliveries are paced by a minimum interval,
// smoothing bursts from the transport into a steady downstream rate.
//
// # Quick Start
//
//	q, err := queue.New[*message.Event](1000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Producer side: shed on capacity
//	if err := q.Enqueue(evt); errors.Is(err, cerrors.ErrQueueFull) {
//	    // queue full, drop or back off
//	}
//
//	// Consumer side: blocks until an item arrives, paced deliveries
//	evt, err := q.Dequeue(ctx)
//
// With custom pacing and metrics:
//
//	q, err := queue.New[*message.Event](1000,
//	    queue.WithDequeueInterval[*message.Event](5*time.Millisecond),
//	    queue.WithMetrics[*message.Event](registry, "ingest"),
//	)
//
// # Lifecycle
//
// Close marks the end of the stream. Items already queued remain
// dequeueable; a consumer blocked in Dequeue is woken, drains what is left,
// and then receives errors.ErrQueueClosed. Enqueue after Close fails with
// the same sentinel. Both sentinels are plain errors so hot paths can test
// them with errors.Is without allocation.
//
// # Pacing
//
// The delivery interval is enforced with a rate limiter (burst 1): the first
// delivery is immediate and each subsequent one waits out the remainder of
// the interval. The pacing wait runs after an item becomes available but
// before it is removed, so cancelling the context during the wait never
// loses an item.
//
// # Observability
//
// Statistics (enqueues, dequeues, rejects, depth, reject rate, throughput)
// are always collected and available via Stats(). WithMetrics additionally
// exports them as Prometheus metrics labeled with the owning component.
package queue
