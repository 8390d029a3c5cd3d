package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// durationKeys names the config fields that accept Go duration strings
// ("500ms", "2s"). The loader converts them to nanoseconds before the
// struct unmarshal, wherever they appear in the tree.
var durationKeys = map[string]bool{
	"dequeue_interval": true,
	"connect_timeout":  true,
	"write_timeout":    true,
	"ping_interval":    true,
	"pong_timeout":     true,
	"reconnect_wait":   true,
	"drain_timeout":    true,
	"health_interval":  true,
	"interval":         true,
	"initial_delay":    true,
	"max_delay":        true,
}

// Loader handles configuration loading with layers and overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "FEEDLINE",
	}
}

// AddLayer adds a configuration file layer. Later layers override
// earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Layers returns the configured layer paths, first to last.
func (l *Loader) Layers() []string {
	out := make([]string, len(l.layers))
	copy(out, l.layers)
	return out
}

// EnableValidation enables or disables Config.Validate after loading.
// Schema validation of each file always runs.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers over the defaults,
// then applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, raw)
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw reads one layer into a map, accepting JSON or YAML by file
// extension, converting duration strings, and checking it against the
// config schema.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if isYAMLPath(path) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
		m, ok := normalizeYAML(doc).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("top level must be a mapping, got %T", doc)
		}
		raw = m
	} else {
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}

	if err := convertDurations("", raw); err != nil {
		return nil, err
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func isYAMLPath(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

// normalizeYAML rewrites yaml.v3's map[any]any mappings (produced for
// non-string keys) into string-keyed maps so the JSON round trip
// works.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}

// convertDurations rewrites duration strings to nanoseconds in place,
// recursing through nested sections.
func convertDurations(prefix string, m map[string]any) error {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := convertDurations(path, val); err != nil {
				return err
			}
		case string:
			if durationKeys[k] {
				d, err := time.ParseDuration(val)
				if err != nil {
					return fmt.Errorf("%s: invalid duration %q", path, val)
				}
				m[k] = d.Nanoseconds()
			}
		}
	}
	return nil
}

// mergeFromMap merges a raw layer over the base config, only
// overriding fields present in the map.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if len(override) == 0 {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedMap := deepMergeMaps(baseMap, override)

	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}
	return &merged
}

// deepMergeMaps recursively merges two maps, override winning.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies FEEDLINE_* environment variables on top of
// the merged config.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if val, err := l.envValue("TRANSPORT_KIND"); err != nil {
		return err
	} else if val != "" {
		cfg.Transport.Kind = strings.ToLower(val)
	}
	if val, err := l.envValue("TRANSPORT_URL"); err != nil {
		return err
	} else if val != "" {
		switch strings.ToLower(cfg.Transport.Kind) {
		case TransportWebSocket:
			cfg.Transport.WebSocket.URL = val
		default:
			cfg.Transport.SSE.URL = val
		}
	}
	if val, err := l.envValue("STREAM_NAME"); err != nil {
		return err
	} else if val != "" {
		cfg.Stream.Name = val
	}

	if val, err := l.envValue("NATS_ENABLED"); err != nil {
		return err
	} else if val != "" {
		enabled, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("%s_NATS_ENABLED: %w", l.envPrefix, perr)
		}
		cfg.NATS.Enabled = enabled
	}
	if val, err := l.envValue("NATS_URL"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.URL = val
	}
	if val, err := l.envValue("NATS_USERNAME"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.Username = val
	}
	if val, err := l.envValue("NATS_PASSWORD"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.Password = val
	}
	if val, err := l.envValue("NATS_TOKEN"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.Token = val
	}

	if val, err := l.envValue("METRICS_ENABLED"); err != nil {
		return err
	} else if val != "" {
		enabled, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("%s_METRICS_ENABLED: %w", l.envPrefix, perr)
		}
		cfg.Metrics.Enabled = enabled
	}
	if val, err := l.envValue("METRICS_PORT"); err != nil {
		return err
	} else if val != "" {
		port, perr := strconv.Atoi(val)
		if perr != nil {
			return fmt.Errorf("%s_METRICS_PORT: %w", l.envPrefix, perr)
		}
		cfg.Metrics.Port = port
	}

	if val, err := l.envValue("LOG_LEVEL"); err != nil {
		return err
	} else if val != "" {
		cfg.Log.Level = strings.ToLower(val)
	}
	if val, err := l.envValue("LOG_FORMAT"); err != nil {
		return err
	} else if val != "" {
		cfg.Log.Format = strings.ToLower(val)
	}

	return nil
}

// envValue reads one prefixed environment variable, empty when unset.
func (l *Loader) envValue(name string) (string, error) {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if val == "" {
		return "", nil
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", err
	}
	return val, nil
}
