package timestamp

import (
	"encoding/json"
	"testing"
	"time"
)

var (
	testTime   = time.Date(2023, 1, 15, 12, 30, 45, 123000000, time.UTC)
	testTimeMs = int64(1673785845123)
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{
			name:     "int64 milliseconds",
			input:    int64(1673785845123),
			expected: 1673785845123,
		},
		{
			name:     "int64 seconds",
			input:    int64(1673784645),
			expected: 1673784645000,
		},
		{
			name:     "int64 zero",
			input:    int64(0),
			expected: 0,
		},
		{
			name:     "float64 milliseconds",
			input:    float64(1673785845123),
			expected: 1673785845123,
		},
		{
			name:     "float64 seconds",
			input:    float64(1673784645),
			expected: 1673784645000,
		},
		{
			name:     "json.Number milliseconds",
			input:    json.Number("1673785845123"),
			expected: 1673785845123,
		},
		{
			name:     "json.Number seconds",
			input:    json.Number("1673784645"),
			expected: 1673784645000,
		},
		{
			name:     "json.Number fractional seconds",
			input:    json.Number("1673784645.5"),
			expected: 1673784645500,
		},
		{
			name:     "json.Number garbage",
			input:    json.Number("not-a-number"),
			expected: 0,
		},
		{
			name:     "RFC3339 string",
			input:    "2023-01-15T12:30:45Z",
			expected: 1673785845000,
		},
		{
			name:     "RFC3339 string with milliseconds",
			input:    "2023-01-15T12:30:45.123Z",
			expected: 1673785845123,
		},
		{
			name:     "unix string milliseconds",
			input:    "1673785845123",
			expected: 1673785845123,
		},
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:     "garbage string",
			input:    "not a timestamp",
			expected: 0,
		},
		{
			name:     "time.Time",
			input:    testTime,
			expected: testTimeMs,
		},
		{
			name:     "nil pointer",
			input:    (*time.Time)(nil),
			expected: 0,
		},
		{
			name:     "nil",
			input:    nil,
			expected: 0,
		},
		{
			name:     "unsupported type",
			input:    true,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			if result != tt.expected {
				t.Errorf("Parse(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected int64
	}{
		{
			name:     "normal time",
			input:    testTime,
			expected: testTimeMs,
		},
		{
			name:     "zero time",
			input:    time.Time{},
			expected: 0,
		},
		{
			name:     "unix epoch",
			input:    time.Unix(0, 0),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToUnixMs(tt.input)
			if result != tt.expected {
				t.Errorf("ToUnixMs(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToTime(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected time.Time
	}{
		{
			name:     "normal timestamp",
			input:    testTimeMs,
			expected: time.UnixMilli(testTimeMs),
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: time.Time{},
		},
		{
			name:     "negative timestamp",
			input:    -1000,
			expected: time.UnixMilli(-1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToTime(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("ToTime(%d) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToTimeRoundTrip(t *testing.T) {
	if got := ToUnixMs(ToTime(testTimeMs)); got != testTimeMs {
		t.Errorf("round trip = %d, expected %d", got, testTimeMs)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "millisecond precision",
			input:    testTimeMs,
			expected: "2023-01-15T12:30:45.123Z",
		},
		{
			name:     "whole second",
			input:    int64(1673785845000),
			expected: "2023-01-15T12:30:45Z",
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.input)
			if result != tt.expected {
				t.Errorf("Format(%d) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name     string
		start    int64
		end      int64
		expected time.Duration
	}{
		{"normal range", testTimeMs, testTimeMs + 250, 250 * time.Millisecond},
		{"reversed range", testTimeMs + 250, testTimeMs, -250 * time.Millisecond},
		{"zero start", 0, testTimeMs, 0},
		{"zero end", testTimeMs, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := Between(tt.start, tt.end); d != tt.expected {
				t.Errorf("Between(%d, %d) = %v, expected %v", tt.start, tt.end, d, tt.expected)
			}
		})
	}
}
