package jsonl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/feedline/errors"
)

func ingestAll(t *testing.T, acc *Accumulator, chunks ...string) [][]byte {
	t.Helper()
	var records [][]byte
	for _, chunk := range chunks {
		out, err := acc.Ingest([]byte(chunk))
		require.NoError(t, err)
		records = append(records, out...)
	}
	return records
}

func TestAccumulator_SingleRecord(t *testing.T) {
	acc := NewAccumulator()

	records := ingestAll(t, acc, "{\"id\":1}\n")
	require.Len(t, records, 1)
	assert.Equal(t, []byte(`{"id":1}`), records[0])
	assert.Zero(t, acc.Buffered())
}

func TestAccumulator_MultipleRecordsOneChunk(t *testing.T) {
	acc := NewAccumulator()

	records := ingestAll(t, acc, "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n{\"id\":4")
	require.Len(t, records, 3)
	assert.Equal(t, []byte(`{"id":1}`), records[0])
	assert.Equal(t, []byte(`{"id":2}`), records[1])
	assert.Equal(t, []byte(`{"id":3}`), records[2])

	// The partial fourth record stays buffered
	assert.Equal(t, len(`{"id":4`), acc.Buffered())
}

func TestAccumulator_StraddledRecord(t *testing.T) {
	acc := NewAccumulator()

	records, err := acc.Ingest([]byte("{\"a\":1"))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 6, acc.Buffered())

	records, err = acc.Ingest([]byte("}\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte(`{"a":1}`), records[0])
	assert.Zero(t, acc.Buffered())
}

func TestAccumulator_ChunkBoundaryIndependence(t *testing.T) {
	input := []byte("{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n")

	baseline := NewAccumulator()
	expected, err := baseline.Ingest(input)
	require.NoError(t, err)
	require.Len(t, expected, 3)

	// Every possible two-way split of the input yields the same records
	for split := 0; split <= len(input); split++ {
		acc := NewAccumulator()

		first, err := acc.Ingest(input[:split])
		require.NoError(t, err, "split at %d", split)
		second, err := acc.Ingest(input[split:])
		require.NoError(t, err, "split at %d", split)

		got := append(first, second...)
		require.Len(t, got, len(expected), "split at %d", split)
		for i := range expected {
			assert.True(t, bytes.Equal(expected[i], got[i]),
				"split at %d, record %d: expected %s, got %s", split, i, expected[i], got[i])
		}
	}
}

func TestAccumulator_ByteAtATime(t *testing.T) {
	input := "{\"id\":1}\n{\"id\":2}\n"

	acc := NewAccumulator()
	var records [][]byte
	for i := 0; i < len(input); i++ {
		out, err := acc.Ingest([]byte{input[i]})
		require.NoError(t, err)
		records = append(records, out...)
	}

	require.Len(t, records, 2)
	assert.Equal(t, []byte(`{"id":1}`), records[0])
	assert.Equal(t, []byte(`{"id":2}`), records[1])
}

func TestAccumulator_SkipsBlankLines(t *testing.T) {
	acc := NewAccumulator()

	records := ingestAll(t, acc, "\n\n{\"id\":1}\n\n\n{\"id\":2}\n\n")
	require.Len(t, records, 2)
	assert.Equal(t, []byte(`{"id":1}`), records[0])
	assert.Equal(t, []byte(`{"id":2}`), records[1])
}

func TestAccumulator_CRLFRecords(t *testing.T) {
	acc := NewAccumulator()

	records := ingestAll(t, acc, "{\"id\":1}\r\n\r\n{\"id\":2}\r\n")
	require.Len(t, records, 2)
	assert.Equal(t, []byte(`{"id":1}`), records[0])
	assert.Equal(t, []byte(`{"id":2}`), records[1])
}

func TestAccumulator_EmptyChunk(t *testing.T) {
	acc := NewAccumulator()

	records, err := acc.Ingest(nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = acc.Ingest([]byte{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAccumulator_RecordsAreCopies(t *testing.T) {
	acc := NewAccumulator()

	records := ingestAll(t, acc, "{\"a\":1}\n")
	require.Len(t, records, 1)

	// Later ingestion must not disturb previously returned records
	ingestAll(t, acc, strings.Repeat("{\"b\":2}\n", 16))
	assert.Equal(t, []byte(`{"a":1}`), records[0])
}

func TestAccumulator_Overflow_ResetPolicy(t *testing.T) {
	acc := NewAccumulator(WithMaxBufferSize(32))

	// Non-newline data past the limit triggers a single overflow
	records, err := acc.Ingest([]byte(strings.Repeat("x", 64)))
	assert.Empty(t, records)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBufferOverflow)
	assert.True(t, errors.IsInvalid(err))
	assert.Zero(t, acc.Buffered())

	// The accumulator keeps operating with an empty buffer
	records, err = acc.Ingest([]byte("{\"a\":1}\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte(`{"a":1}`), records[0])
}

func TestAccumulator_Overflow_FailPolicy(t *testing.T) {
	acc := NewAccumulator(WithMaxBufferSize(32), WithOverflowPolicy(OverflowFail))

	_, err := acc.Ingest([]byte(strings.Repeat("x", 64)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBufferOverflow)
	assert.True(t, errors.IsFatal(err))

	// Halted until reset
	_, err = acc.Ingest([]byte("{\"a\":1}\n"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	acc.Reset()

	records, err := acc.Ingest([]byte("{\"a\":1}\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestAccumulator_OverflowBoundary(t *testing.T) {
	acc := NewAccumulator(WithMaxBufferSize(8))

	// Exactly at the limit is not an overflow
	records, err := acc.Ingest([]byte("12345678"))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 8, acc.Buffered())

	// One byte past the limit is
	_, err = acc.Ingest([]byte("9"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBufferOverflow)
	assert.Zero(t, acc.Buffered())
}

func TestAccumulator_CompleteRecordLargerThanLimit(t *testing.T) {
	// Extraction runs before the size check, so an oversized record that
	// arrives complete within one chunk still parses.
	acc := NewAccumulator(WithMaxBufferSize(8))

	records, err := acc.Ingest([]byte("{\"k\":\"0123456789\"}\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte(`{"k":"0123456789"}`), records[0])
}

func TestAccumulator_OverflowDiscardsPartialRecord(t *testing.T) {
	// A record split across chunks that grows past the limit is lost in
	// its entirety; the next complete record parses alone.
	acc := NewAccumulator(WithMaxBufferSize(8))

	_, err := acc.Ingest([]byte("{\"k\":\"0123"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBufferOverflow)

	records, err := acc.Ingest([]byte("456789\"}\n{\"a\":1}\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	// The tail of the discarded record is garbage but still a line;
	// the decoder downstream rejects it while {"a":1} survives.
	assert.Equal(t, []byte(`456789"}`), records[0])
	assert.Equal(t, []byte(`{"a":1}`), records[1])
}

func TestAccumulator_Defaults(t *testing.T) {
	acc := NewAccumulator()
	assert.Equal(t, DefaultMaxBufferSize, acc.MaxBufferSize())
	assert.Equal(t, OverflowReset, acc.Policy())
	assert.Equal(t, "reset", acc.Policy().String())
	assert.Equal(t, "fail", OverflowFail.String())
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowReset, p)

	p, err = ParseOverflowPolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, OverflowFail, p)

	_, err = ParseOverflowPolicy("truncate")
	assert.Error(t, err)
}
