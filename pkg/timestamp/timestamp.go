// Package timestamp normalizes the timestamps feed records carry.
//
// Upstream services emit "ts" in whatever shape their stack produces:
// integer epoch seconds or milliseconds, float seconds, RFC3339
// strings, or json.Number values from a decoder running with UseNumber.
// Parse accepts all of them and lands on one canonical representation,
// int64 milliseconds since the Unix epoch (UTC). Zero means unset.
//
// Outbound encoding uses Format, which renders RFC3339 with sub-second
// precision.
package timestamp

import (
	"encoding/json"
	"strconv"
	"time"
)

// Parse converts a decoded "ts" field to Unix milliseconds. Numeric
// values above 1e12 are taken as milliseconds, below as seconds; the
// cutover sits in 2001 for seconds and 33658 for milliseconds, so feed
// data cannot be ambiguous in practice. Strings are tried as RFC3339,
// then as integer and float epochs.
//
// Returns 0 for nil, unrecognized shapes, or parse failures. A record
// without a usable timestamp still flows; it just has no latency.
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	switch v := input.(type) {
	case int64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return v
		}
		return v * 1000

	case float64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Parse(i)
		}
		if f, err := v.Float64(); err == nil {
			return Parse(f)
		}
		return 0

	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return ToUnixMs(t)
		}
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}
		return 0

	case time.Time:
		return ToUnixMs(v)

	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	default:
		return 0
	}
}

// ToUnixMs converts a time.Time to Unix milliseconds, zero time to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// ToTime converts Unix milliseconds back to a time.Time, 0 to the zero
// time.
func ToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders Unix milliseconds as RFC3339 in UTC, keeping
// sub-second precision when present. Returns "" for 0 so unset
// timestamps stay absent from encoded output.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// Between returns end minus start, or 0 when either side is unset.
// Latency figures stay absent rather than absurd when a feed omits
// timestamps.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}
