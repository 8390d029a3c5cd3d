package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/pkg/timestamp"
)

// Event is one decoded feed record. Events are the fundamental unit of
// data flow: the decode pipeline produces them in arrival order and they
// travel through the queue to the consumer unchanged.
//
// An Event is immutable after creation. The decode pipeline fills ID
// (generating one when the record carries none), Sequence (arrival index
// within the stream), Raw (the original record bytes), and DecodedAt.
// Synthetic events built with NewEvent get an ID and DecodedAt up front;
// Sequence and Raw stay zero until a pipeline assigns them.
//
// Construction using Functional Options:
//
//	// Simple event (most common)
//	evt := NewEvent(msgType, fields)
//
//	// With a fixed ID (replay/testing)
//	evt := NewEvent(msgType, fields, WithID("evt-42"))
//
//	// With the server-side emission time
//	evt := NewEvent(msgType, fields, WithEmittedAt(serverTime))
type Event struct {
	// ID uniquely identifies this event. Taken from the record's "id"
	// field when present, otherwise generated.
	ID string

	// Type is the structured event type used for routing and processing.
	Type Type

	// Sequence is the 1-based arrival index within one stream.
	// Zero means unassigned.
	Sequence uint64

	// EmittedAt is the server-side emission time from the record's "ts"
	// field. Zero when the record carries no timestamp.
	EmittedAt time.Time

	// Fields holds the decoded record object. Duplicate keys in the raw
	// JSON resolve last-value-wins per the underlying decoder.
	Fields map[string]any

	// Raw holds the original record bytes as received off the wire.
	Raw []byte

	// DecodedAt is when this event was produced by the decoder.
	DecodedAt time.Time
}

// Option is a functional option for configuring Event construction.
type Option func(*Event)

// WithID sets a specific event ID instead of generating one.
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithSequence sets the arrival index. Normally assigned by the pipeline.
func WithSequence(seq uint64) Option {
	return func(e *Event) {
		e.Sequence = seq
	}
}

// WithEmittedAt sets the server-side emission time.
func WithEmittedAt(t time.Time) Option {
	return func(e *Event) {
		e.EmittedAt = t
	}
}

// NewEvent creates a new Event with optional configuration.
//
// Parameters:
//   - msgType: Structured type information (domain, category, version)
//   - fields: The decoded record object, may be nil
//   - opts: Optional configuration functions
func NewEvent(msgType Type, fields map[string]any, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Type:      msgType,
		Fields:    fields,
		DecodedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Latency returns the transit time from server emission to decode.
// Returns 0 when the record carried no emission timestamp.
func (e *Event) Latency() time.Duration {
	return timestamp.Between(timestamp.ToUnixMs(e.EmittedAt), timestamp.ToUnixMs(e.DecodedAt))
}

// Hash returns a SHA256 hash of the event content, computed from the
// event type and payload bytes. Used for deduplication headers when
// events are republished.
func (e *Event) Hash() string {
	h := sha256.New()
	h.Write([]byte(e.Type.Key()))

	payload := e.Raw
	if payload == nil {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return ""
		}
		payload = data
	}
	h.Write(payload)

	return hex.EncodeToString(h.Sum(nil))
}

// Validate performs basic event validation.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Event", "Validate", "event ID cannot be empty")
	}

	if !e.Type.IsValid() {
		return errors.WrapInvalid(errors.ErrInvalidData, "Event", "Validate",
			fmt.Sprintf("invalid event type: %s", e.Type.String()))
	}

	return nil
}

// MarshalJSON implements json.Marshaler for Event.
//
// The wire form is one flat JSON object: the record fields with the
// envelope keys (id, type, seq, ts) overlaid. Timestamps are encoded as
// ISO-8601 strings with millisecond precision.
func (e *Event) MarshalJSON() ([]byte, error) {
	wire := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		wire[k] = v
	}

	if e.ID != "" {
		wire["id"] = e.ID
	}
	if e.Type.IsValid() {
		wire["type"] = e.Type.Key()
	}
	if e.Sequence > 0 {
		wire["seq"] = e.Sequence
	}
	if !e.EmittedAt.IsZero() {
		wire["ts"] = timestamp.Format(timestamp.ToUnixMs(e.EmittedAt))
	}

	return json.Marshal(wire)
}
