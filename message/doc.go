// Package message provides the core event types for feedline.
// It defines the Event envelope produced by the decode pipeline, the
// DecodeFailure diagnostic for rejected records, and the structured Type
// used for routing.
//
// # Event Structure
//
// Every event consists of:
//   - A unique ID for tracking and deduplication (generated when the
//     record carries none)
//   - A structured Type (domain, category, version)
//   - The decoded record fields
//   - The raw record bytes as received off the wire
//   - Timestamps for server emission and decode
//
// # Wire Format
//
// Feed records are flat JSON objects, one per line. The envelope keys
// are all optional:
//
//	{"id":"evt-1","type":"telemetry.position.v1","ts":"2026-08-25T09:15:00.25Z","lat":48.8,"lon":2.3}
//
// Records without a "type" field are assigned RecordType (feed.record.v1).
// The "ts" field accepts epoch seconds, epoch milliseconds, or RFC3339
// strings; outbound encoding always produces ISO-8601 with millisecond
// precision.
//
// # Type System
//
// Types use dotted notation ("domain.category.version") so downstream
// routing can match on subjects with wildcards:
//
//	typ, err := message.ParseType("telemetry.position.v1")
//	subject := "feed.events." + typ.Key()
//
// # Failure Isolation
//
// A record that fails to decode becomes a DecodeFailure carrying the
// offending line and a diagnostic. Failures are surfaced as data on a
// side channel, never as errors that abort the stream.
package message
