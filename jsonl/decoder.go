package jsonl

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/c360/feedline/message"
	"github.com/c360/feedline/pkg/timestamp"
)

// Decoder turns one raw JSONL record into a typed event. Decoding is
// strict: the line must be exactly one syntactically complete JSON
// object, nothing before or after. Envelope fields (id, type, ts) are
// extracted when present; everything else stays in the event's Fields.
//
// Decode holds no mutable state, so a Decoder is safe for concurrent
// use; ordering across records is the caller's concern.
type Decoder struct {
	defaultType message.Type
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDefaultType sets the type assigned to records that carry no
// parseable type field. Defaults to message.RecordType.
func WithDefaultType(typ message.Type) DecoderOption {
	return func(d *Decoder) {
		d.defaultType = typ
	}
}

// NewDecoder creates a Decoder with the given options.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		defaultType: message.RecordType,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode parses one record into an Event. Exactly one of the two
// return values is non-nil: a malformed record produces a DecodeFailure
// carrying the original line and a diagnostic, never an aborted stream.
//
// Numbers decode as json.Number so envelope extraction and downstream
// consumers see exact values. Duplicate keys resolve last-value-wins,
// delegated to encoding/json.
func (d *Decoder) Decode(line []byte) (*message.Event, *message.DecodeFailure) {
	if len(line) == 0 {
		failure := message.NewDecodeFailure(line, "empty record")
		return nil, &failure
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		failure := message.NewDecodeFailure(line, err.Error())
		return nil, &failure
	}
	if fields == nil {
		// "null" decodes into a nil map without error
		failure := message.NewDecodeFailure(line, "record is not a JSON object")
		return nil, &failure
	}
	if dec.More() {
		failure := message.NewDecodeFailure(line, "trailing data after record")
		return nil, &failure
	}

	evt := &message.Event{
		ID:        extractID(fields),
		Type:      d.extractType(fields),
		EmittedAt: timestamp.ToTime(timestamp.Parse(fields["ts"])),
		Fields:    fields,
		Raw:       append([]byte(nil), line...),
		DecodedAt: time.Now(),
	}

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	return evt, nil
}

// extractID pulls the record's own identifier when it has one.
// String and numeric ids are both accepted.
func extractID(fields map[string]any) string {
	switch v := fields["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// extractType resolves the record's declared type, falling back to the
// default for records without one. A type field that is not a dotted
// three-part string stays visible in Fields but does not reject the
// record.
func (d *Decoder) extractType(fields map[string]any) message.Type {
	if s, ok := fields["type"].(string); ok {
		if typ, err := message.ParseType(s); err == nil {
			return typ
		}
	}
	return d.defaultType
}
