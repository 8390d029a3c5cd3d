package message

import (
	"fmt"
	"strings"

	"github.com/c360/feedline/errors"
)

// Type provides structured type information for feed events.
// It enables type-safe routing and processing by clearly identifying
// the domain, category, and version of each event.
//
// Feed records declare their type as a dotted string in the "type"
// field ("telemetry.position.v1"); records without one are assigned
// RecordType. Type constants for richer schemas should be defined in
// the packages that own them.
//
// Example definition in a domain package:
//
//	var PositionEvent = message.Type{
//	    Domain:   "telemetry",
//	    Category: "position",
//	    Version:  "v1",
//	}
type Type struct {
	// Domain identifies the business or system domain.
	// Examples: "telemetry", "feed", "market"
	Domain string

	// Category identifies the specific event type within the domain.
	// Examples: "position", "heartbeat", "trade"
	Category string

	// Version identifies the schema version.
	// Format: "v1", "v2", etc. Enables schema evolution.
	Version string
}

// RecordType is the well-known type assigned to feed records that do not
// declare a type field of their own. Components that process arbitrary
// JSON records match on this type.
var RecordType = Type{Domain: "feed", Category: "record", Version: "v1"}

// Key returns the dotted notation representation: "domain.category.version".
// Subject mapping and routing build on these keys.
func (mt Type) Key() string {
	return fmt.Sprintf("%s.%s.%s", mt.Domain, mt.Category, mt.Version)
}

// String returns the same as Key()
func (mt Type) String() string {
	return mt.Key()
}

// IsValid checks if the Type has all required fields populated
// with non-empty values.
func (mt Type) IsValid() bool {
	return mt.Domain != "" && mt.Category != "" && mt.Version != ""
}

// Equal compares two Type instances for equality.
// Returns true if all fields (Domain, Category, Version) are identical.
func (mt Type) Equal(other Type) bool {
	return mt.Domain == other.Domain &&
		mt.Category == other.Category &&
		mt.Version == other.Version
}

// ParseType creates a Type from dotted string format.
// Expects exactly 3 parts: domain.category.version
// Returns an error if the format is invalid.
func ParseType(s string) (Type, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Type{}, errors.WrapInvalid(errors.ErrInvalidData, "Type", "ParseType",
			fmt.Sprintf("expected 3 parts, got %d", len(parts)))
	}

	// Check that no part is empty
	for i, part := range parts {
		if part == "" {
			return Type{}, errors.WrapInvalid(errors.ErrInvalidData, "Type", "ParseType",
				fmt.Sprintf("part %d is empty", i+1))
		}
	}

	return Type{
		Domain:   parts[0],
		Category: parts[1],
		Version:  parts[2],
	}, nil
}
