package message

import (
	"fmt"
	"time"
)

// maxDiagnosticLine bounds how much of a rejected line is reproduced in
// log output. The full line is always retained in the Line field.
const maxDiagnosticLine = 256

// DecodeFailure carries one rejected record: the offending raw line and
// a diagnostic describing why it was rejected. Failures flow to an
// error-reporting sink and are never re-queued; a failure for one record
// never aborts the stream.
type DecodeFailure struct {
	// Line is the raw record bytes that failed to decode.
	Line []byte

	// Reason is the diagnostic text from the decoder.
	Reason string

	// OccurredAt is when the failure was produced.
	OccurredAt time.Time
}

// NewDecodeFailure builds a DecodeFailure, copying the offending line so
// the failure stays valid after the caller reuses its buffer.
func NewDecodeFailure(line []byte, reason string) DecodeFailure {
	return DecodeFailure{
		Line:       append([]byte(nil), line...),
		Reason:     reason,
		OccurredAt: time.Now(),
	}
}

// String renders the failure for log output, truncating long lines.
func (f DecodeFailure) String() string {
	line := f.Line
	truncated := ""
	if len(line) > maxDiagnosticLine {
		line = line[:maxDiagnosticLine]
		truncated = "..."
	}
	return fmt.Sprintf("decode failure: %s (line: %s%s)", f.Reason, line, truncated)
}
