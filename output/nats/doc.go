// Package nats bridges decoded feed events onto a NATS mesh.
//
// Output consumes events from a channel (normally stream.Consumer's
// Events) and republishes each one on a subject derived from its type
// key, so a record typed feed.record.v1 lands on
// feed.events.feed.record.v1 under the default prefix. The payload is
// the event's canonical JSON wire form with ISO-8601 timestamps, and
// the Nats-Msg-Id header carries the event content hash for downstream
// deduplication.
//
// Publishing retries per pkg/retry's publish policy. An event that
// still cannot be delivered is dropped and counted rather than allowed
// to stall the stream; the bridge reports drops through its counters,
// health, and logs.
package nats
