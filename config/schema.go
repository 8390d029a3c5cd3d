package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema every config layer is checked
// against before merging. Top-level sections and their enumerable
// fields reject unknown keys so typos fail loudly instead of silently
// falling back to defaults. Duration fields accept either a Go
// duration string or raw nanoseconds.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "feedline configuration",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "stream": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "transport": {"type": "string"},
        "queue_capacity": {"type": "integer", "minimum": 0},
        "dequeue_interval": {"type": ["integer", "string"]},
        "recent_window": {"type": "integer", "minimum": 0},
        "shed_policy": {"enum": ["drop", "fail"]},
        "reconnect": {"$ref": "#/definitions/retry"}
      }
    },
    "transport": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["sse", "websocket"]},
        "max_line_bytes": {"type": "integer", "minimum": 0},
        "overflow_policy": {"enum": ["reset", "fail"]},
        "sse": {"type": "object"},
        "websocket": {"type": "object"}
      }
    },
    "monitor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "stream": {"type": "string"},
        "interval": {"type": ["integer", "string"]},
        "window": {"type": "integer", "minimum": 0},
        "thresholds": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "fill_warning": {"type": "number", "minimum": 0, "maximum": 1},
            "fill_critical": {"type": "number", "minimum": 0, "maximum": 1},
            "decode_warning": {"type": "number", "minimum": 0, "maximum": 1},
            "decode_critical": {"type": "number", "minimum": 0, "maximum": 1},
            "min_events_per_second": {"type": "number", "minimum": 0}
          }
        }
      }
    },
    "nats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "url": {"type": "string"},
        "name": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "token": {"type": "string"},
        "max_reconnects": {"type": "integer"},
        "reconnect_wait": {"type": ["integer", "string"]},
        "ping_interval": {"type": ["integer", "string"]},
        "connect_timeout": {"type": ["integer", "string"]},
        "drain_timeout": {"type": ["integer", "string"]},
        "health_interval": {"type": ["integer", "string"]},
        "circuit_threshold": {"type": "integer", "minimum": 1},
        "tls": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "cert_file": {"type": "string"},
            "key_file": {"type": "string"},
            "ca_file": {"type": "string"}
          }
        },
        "output": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "name": {"type": "string"},
            "subject_prefix": {"type": "string"},
            "retry": {"$ref": "#/definitions/retry"}
          }
        }
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string", "pattern": "^/"}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["json", "text"]}
      }
    },
    "security": {"type": "object"}
  },
  "definitions": {
    "retry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_attempts": {"type": "integer", "minimum": 0},
        "initial_delay": {"type": ["integer", "string"]},
        "max_delay": {"type": ["integer", "string"]},
        "multiplier": {"type": "number", "minimum": 0},
        "add_jitter": {"type": "boolean"}
      }
    }
  }
}`

// validateSchema checks one raw config layer against the schema.
func validateSchema(raw map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	b.WriteString("config schema violations:")
	for _, desc := range result.Errors() {
		fmt.Fprintf(&b, "\n  - %s: %s", desc.Field(), desc.Description())
	}
	return fmt.Errorf("%s", b.String())
}
