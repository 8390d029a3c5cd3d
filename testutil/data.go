package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/feedline/message"
)

// SampleLines contains well-formed feed records, one JSONL line each.
var SampleLines = []string{
	`{"id":"evt-1","type":"telemetry.position.v1","ts":"2026-08-25T09:15:00Z","lat":48.8566,"lon":2.3522,"alt":11500}`,
	`{"id":"evt-2","type":"telemetry.position.v1","ts":"2026-08-25T09:15:01Z","lat":48.8601,"lon":2.3380,"alt":11480}`,
	`{"id":"evt-3","type":"telemetry.heartbeat.v1","ts":"2026-08-25T09:15:02Z","status":"ok"}`,
	`{"id":"evt-4","type":"market.trade.v1","ts":"2026-08-25T09:15:02.5Z","symbol":"ACME","price":101.25,"size":300}`,
	`{"id":"evt-5","type":"market.trade.v1","ts":"2026-08-25T09:15:03Z","symbol":"ACME","price":101.30,"size":150}`,
}

// UntypedLine is a record without a type field; the decoder assigns
// message.RecordType.
const UntypedLine = `{"id":"evt-plain","value":42}`

// MalformedLines fail to decode; each should surface as one decode
// failure without stopping the stream.
var MalformedLines = []string{
	`{"id":"evt-bad","type":`,
	`not json at all`,
	`[1, 2, 3]`,
	`"just a string"`,
	`{"id":"evt-trailing"} extra`,
}

// DuplicateKeyLine carries the same key twice; decoding resolves
// last-value-wins, so "value" is 2.
const DuplicateKeyLine = `{"id":"evt-dup","value":1,"value":2}`

// GenerateLines returns n well-formed position records with sequential
// ids and timestamps, one per line, for volume tests.
func GenerateLines(n int) []string {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	lines := make([]string, n)
	for i := range lines {
		ts := base.Add(time.Duration(i) * 100 * time.Millisecond)
		lines[i] = fmt.Sprintf(
			`{"id":"gen-%d","type":"telemetry.position.v1","ts":%q,"lat":%.4f,"lon":%.4f,"seq_hint":%d}`,
			i+1, ts.Format(time.RFC3339Nano), 48.0+float64(i%90)*0.01, 2.0+float64(i%90)*0.01, i+1)
	}
	return lines
}

// OversizedLine returns one record larger than limit, for overflow
// tests. The result is valid JSON, so only the length trips the cap.
func OversizedLine(limit int) string {
	pad := strings.Repeat("x", limit)
	return fmt.Sprintf(`{"id":"evt-huge","type":"feed.record.v1","pad":%q}`, pad)
}

// JoinLines assembles records into a JSONL stream body.
func JoinLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// PositionType is the event type SampleLines' position records carry.
var PositionType = message.Type{Domain: "telemetry", Category: "position", Version: "v1"}

// SampleEvents returns n synthetic decoded events with sequential ids,
// sequences, and emission times, for queue and output tests that skip
// the decode pipeline.
func SampleEvents(n int) []message.Event {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	events := make([]message.Event, n)
	for i := range events {
		evt := message.NewEvent(PositionType,
			map[string]any{"lat": 48.0 + float64(i)*0.01, "lon": 2.0 + float64(i)*0.01},
			message.WithID(fmt.Sprintf("evt-%d", i+1)),
			message.WithSequence(uint64(i+1)),
			message.WithEmittedAt(base.Add(time.Duration(i)*time.Second)),
		)
		events[i] = *evt
	}
	return events
}
