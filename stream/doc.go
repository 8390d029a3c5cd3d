// Package stream supervises a feed from transport to application.
//
// A Consumer owns one transport client, pumps its decoded events into
// a bounded queue, and runs the paced dispatch loop that feeds
// Events(). Backpressure is explicit: when the queue is full the pump
// sheds (or halts, per policy) instead of buffering without bound.
// When a session dies the consumer reconnects with exponential
// backoff; when the policy is exhausted, or the failure is fatal, the
// stream ends, Events() closes, and Err() reports why.
//
// The consumer also keeps small rolling windows of recent events,
// decode failures, and latency observations for live inspection; they
// are the only state kept and nothing is persisted.
package stream
