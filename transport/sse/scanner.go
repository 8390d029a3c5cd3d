package sse

import (
	"bufio"
	"io"
	"strings"
)

// serverEvent is a single Server-Sent Event parsed off the wire.
type serverEvent struct {
	// Type is the value of the "event:" field, empty for the default
	// event type.
	Type string

	// Data is the payload assembled from the event's "data:" lines,
	// joined with newlines per the SSE specification.
	Data string

	// ID is the last-seen "id:" value at dispatch time. It persists
	// across events until the server sends a new one.
	ID string
}

// scanner reads Server-Sent Events from a stream. Events are delimited
// by blank lines; "data:" lines carry the payload, "event:" sets the
// type, "id:" updates the last-event-ID buffer, and comment lines
// (leading ":") are ignored. "retry:" hints are ignored too, because
// reconnection policy lives with the stream consumer, not here.
type scanner struct {
	reader  *bufio.Reader
	current serverEvent
	lastID  string
	err     error
}

func newScanner(r io.Reader) *scanner {
	return &scanner{
		reader: bufio.NewReaderSize(r, 64*1024),
	}
}

// next advances to the next event with data. It returns false at end
// of stream or on error; err distinguishes the two.
func (s *scanner) next() bool {
	s.current = serverEvent{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')

		// A partial last line with no trailing newline still dispatches
		// if the stream ends cleanly mid-event.
		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					s.current = serverEvent{
						Type: eventType,
						Data: strings.Join(dataLines, "\n"),
						ID:   s.lastID,
					}
					s.err = io.EOF
					return true
				}
				return false
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line dispatches the accumulated event.
		if line == "" {
			if hasData {
				s.current = serverEvent{
					Type: eventType,
					Data: strings.Join(dataLines, "\n"),
					ID:   s.lastID,
				}
				return true
			}
			// Nothing accumulated, keep scanning.
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		// "field: value" with the single leading space optional.
		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			s.lastID = value
		case "retry":
			// Ignored.
		default:
			// Unknown fields are ignored per the SSE specification.
		}
	}
}

// event returns the most recently parsed event. Valid only after next
// returned true.
func (s *scanner) event() serverEvent {
	return s.current
}

// scanErr returns the first error hit while scanning, with clean EOF
// reported as nil.
func (s *scanner) scanErr() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
