package monitor

import (
	"fmt"

	"github.com/c360/feedline/health"
)

// Default thresholds for deriving coarse health from flow samples.
const (
	DefaultFillWarning    = 0.80
	DefaultFillCritical   = 0.90
	DefaultDecodeWarning  = 0.95
	DefaultDecodeCritical = 0.50
)

// Thresholds define where a flow sample crosses from healthy into
// warning or critical. Ratios run 0 to 1.
type Thresholds struct {
	// FillWarning and FillCritical bound the queue fill ratio.
	FillWarning  float64 `json:"fill_warning,omitempty" yaml:"fill_warning,omitempty"`
	FillCritical float64 `json:"fill_critical,omitempty" yaml:"fill_critical,omitempty"`

	// DecodeWarning and DecodeCritical bound the decode success ratio
	// from below.
	DecodeWarning  float64 `json:"decode_warning,omitempty" yaml:"decode_warning,omitempty"`
	DecodeCritical float64 `json:"decode_critical,omitempty" yaml:"decode_critical,omitempty"`

	// MinEventsPerSecond is an optional throughput floor. Zero disables
	// it; below the floor the stream reports warning.
	MinEventsPerSecond float64 `json:"min_events_per_second,omitempty" yaml:"min_events_per_second,omitempty"`
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FillWarning:    DefaultFillWarning,
		FillCritical:   DefaultFillCritical,
		DecodeWarning:  DefaultDecodeWarning,
		DecodeCritical: DefaultDecodeCritical,
	}
}

// normalized fills zero fields with the defaults. MinEventsPerSecond
// stays as given since zero means disabled.
func (t Thresholds) normalized() Thresholds {
	if t.FillWarning <= 0 {
		t.FillWarning = DefaultFillWarning
	}
	if t.FillCritical <= 0 {
		t.FillCritical = DefaultFillCritical
	}
	if t.DecodeWarning <= 0 {
		t.DecodeWarning = DefaultDecodeWarning
	}
	if t.DecodeCritical <= 0 {
		t.DecodeCritical = DefaultDecodeCritical
	}
	return t
}

// Evaluate derives the health level for one sample. rateKnown reports
// whether enough samples exist for the throughput figure to mean
// anything; the floor is not applied before that. The returned reasons
// name every crossed threshold, worst first per concern.
func (t Thresholds) Evaluate(fill, decodeSuccess, rate float64, rateKnown bool) (health.Level, []string) {
	level := health.LevelHealthy
	var reasons []string

	raise := func(to health.Level, reason string) {
		if to.Severity() > level.Severity() {
			level = to
		}
		reasons = append(reasons, reason)
	}

	switch {
	case fill >= t.FillCritical:
		raise(health.LevelCritical, fmt.Sprintf("queue fill %.2f at or above critical %.2f", fill, t.FillCritical))
	case fill >= t.FillWarning:
		raise(health.LevelWarning, fmt.Sprintf("queue fill %.2f at or above warning %.2f", fill, t.FillWarning))
	}

	switch {
	case decodeSuccess < t.DecodeCritical:
		raise(health.LevelCritical, fmt.Sprintf("decode success %.2f below critical %.2f", decodeSuccess, t.DecodeCritical))
	case decodeSuccess < t.DecodeWarning:
		raise(health.LevelWarning, fmt.Sprintf("decode success %.2f below warning %.2f", decodeSuccess, t.DecodeWarning))
	}

	if t.MinEventsPerSecond > 0 && rateKnown && rate < t.MinEventsPerSecond {
		raise(health.LevelWarning, fmt.Sprintf("throughput %.2f/s below floor %.2f/s", rate, t.MinEventsPerSecond))
	}

	return level, reasons
}
