package jsonl

import (
	"bytes"
	"fmt"

	"github.com/c360/feedline/errors"
)

// DefaultMaxBufferSize bounds the pending buffer at 1 MiB. Callers
// relying on zero-loss must size this generously relative to their
// largest expected record.
const DefaultMaxBufferSize = 1 << 20

// OverflowPolicy defines how the accumulator behaves when the pending
// buffer exceeds its maximum size without a complete record.
type OverflowPolicy int

const (
	// OverflowReset clears the pending buffer and keeps accepting input.
	// Whatever partial record was in flight is discarded; the overflow is
	// reported through the Ingest error, classified invalid.
	OverflowReset OverflowPolicy = iota

	// OverflowFail clears the pending buffer and refuses further input
	// until Reset is called. The overflow is reported through the Ingest
	// error, classified fatal, so a supervising layer can tear the
	// stream down instead of silently losing data.
	OverflowFail
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReset:
		return "reset"
	case OverflowFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy converts a policy name to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reset":
		return OverflowReset, nil
	case "fail":
		return OverflowFail, nil
	default:
		return OverflowReset, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Accumulator assembles newline-delimited records from an arbitrary
// sequence of byte chunks. It persists partial records across Ingest
// calls, so records straddling chunk boundaries reassemble correctly,
// and bounds its pending buffer so a stream that never delivers a
// newline cannot grow memory without limit.
//
// An Accumulator is owned by a single receive loop and is not safe for
// concurrent use.
type Accumulator struct {
	pending []byte
	maxSize int
	policy  OverflowPolicy
	halted  bool
}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// WithMaxBufferSize sets the pending buffer limit in bytes.
// Values below 1 fall back to DefaultMaxBufferSize.
func WithMaxBufferSize(n int) AccumulatorOption {
	return func(a *Accumulator) {
		if n > 0 {
			a.maxSize = n
		}
	}
}

// WithOverflowPolicy sets the overflow behavior.
// Defaults to OverflowReset if not specified.
func WithOverflowPolicy(policy OverflowPolicy) AccumulatorOption {
	return func(a *Accumulator) {
		a.policy = policy
	}
}

// NewAccumulator creates an Accumulator with the given options.
func NewAccumulator(opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{
		maxSize: DefaultMaxBufferSize,
		policy:  OverflowReset,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Ingest appends chunk to the pending buffer and extracts every complete
// newline-terminated record. Each returned record is an independent copy
// with its line terminator removed; zero-length records (blank lines)
// are skipped silently. A trailing carriage return is stripped so CRLF
// input parses the same as LF.
//
// If, after extraction, the pending buffer still exceeds the maximum
// size, the buffer is cleared and an overflow error is returned together
// with the records extracted so far. No partial record is ever returned.
// Under OverflowReset the error is classified invalid and the
// accumulator keeps operating; under OverflowFail it is classified fatal
// and every later Ingest fails until Reset is called.
func (a *Accumulator) Ingest(chunk []byte) ([][]byte, error) {
	if a.halted {
		return nil, errors.WrapFatal(errors.ErrBufferOverflow, "Accumulator", "Ingest",
			"accumulator halted after overflow; call Reset to resume")
	}

	a.pending = append(a.pending, chunk...)

	var records [][]byte
	for {
		idx := bytes.IndexByte(a.pending, '\n')
		if idx < 0 {
			break
		}

		record := a.pending[:idx]
		if n := len(record); n > 0 && record[n-1] == '\r' {
			record = record[:n-1]
		}
		if len(record) > 0 {
			records = append(records, append([]byte(nil), record...))
		}

		a.pending = a.pending[idx+1:]
	}

	// Reclaim consumed prefix capacity so the buffer does not alias the
	// whole history of the stream.
	if len(a.pending) == 0 {
		a.pending = a.pending[:0]
	} else {
		a.pending = append([]byte(nil), a.pending...)
	}

	if len(a.pending) > a.maxSize {
		discarded := len(a.pending)
		a.pending = nil

		action := fmt.Sprintf("pending buffer exceeded %d bytes; discarded %d buffered bytes",
			a.maxSize, discarded)

		if a.policy == OverflowFail {
			a.halted = true
			return records, errors.WrapFatal(errors.ErrBufferOverflow, "Accumulator", "Ingest", action)
		}
		return records, errors.WrapInvalid(errors.ErrBufferOverflow, "Accumulator", "Ingest", action)
	}

	return records, nil
}

// Buffered returns the number of bytes held for an incomplete record.
func (a *Accumulator) Buffered() int {
	return len(a.pending)
}

// MaxBufferSize returns the pending buffer limit in bytes.
func (a *Accumulator) MaxBufferSize() int {
	return a.maxSize
}

// Policy returns the configured overflow policy.
func (a *Accumulator) Policy() OverflowPolicy {
	return a.policy
}

// Reset clears the pending buffer and, under OverflowFail, re-arms a
// halted accumulator.
func (a *Accumulator) Reset() {
	a.pending = nil
	a.halted = false
}
