package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/feedline/stream"
)

// writeConfig drops a fixture file into a temp dir and returns its path.
func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoaderLoadJSON(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.LoadFile("testdata/base.json")
	require.NoError(t, err)

	assert.Equal(t, "flights", cfg.Stream.Name)
	assert.Equal(t, 500, cfg.Stream.QueueCapacity)
	assert.Equal(t, 2*time.Millisecond, cfg.Stream.DequeueInterval)
	assert.Equal(t, stream.ShedDrop, cfg.Stream.ShedPolicy)

	assert.Equal(t, TransportSSE, cfg.Transport.Kind)
	assert.Equal(t, "https://feed.example.com/v1/stream", cfg.Transport.SSE.URL)
	assert.Equal(t, 10*time.Second, cfg.Transport.SSE.ConnectTimeout)

	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 0.8, cfg.Monitor.Thresholds.FillWarning)
	assert.Equal(t, 0.9, cfg.Monitor.Thresholds.FillCritical)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// fields the file does not mention keep their defaults
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoaderLoadYAML(t *testing.T) {
	path := writeConfig(t, "conf.yaml", `
stream:
  name: yaml-stream
  dequeue_interval: 5ms
transport:
  kind: sse
  sse:
    url: https://feed.example.com/v1/stream
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-stream", cfg.Stream.Name)
	assert.Equal(t, 5*time.Millisecond, cfg.Stream.DequeueInterval)
	assert.Equal(t, "https://feed.example.com/v1/stream", cfg.Transport.SSE.URL)
}

func TestLoaderLayerMerge(t *testing.T) {
	loader := NewLoader()
	loader.AddLayer("testdata/base.json")
	loader.AddLayer("testdata/override.yaml")

	cfg, err := loader.Load()
	require.NoError(t, err)

	// the override switches the transport
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, "wss://feed.example.com/v1/ws", cfg.Transport.WebSocket.URL)
	assert.Equal(t, 10*time.Second, cfg.Transport.WebSocket.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Transport.WebSocket.Keepalive.PingInterval)

	// untouched base fields survive the merge
	assert.Equal(t, "flights", cfg.Stream.Name)
	assert.Equal(t, "https://feed.example.com/v1/stream", cfg.Transport.SSE.URL)
	assert.Equal(t, "text", cfg.Log.Format)

	// overridden leaves win
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "feed.live", cfg.NATS.Output.SubjectPrefix)

	// sibling defaults inside an overridden section stay
	assert.Equal(t, "feedline", cfg.NATS.Output.Name)
}

func TestLoaderEmptyFile(t *testing.T) {
	path := writeConfig(t, "empty.json", `{}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().NATS.URL, cfg.NATS.URL)
	assert.Equal(t, DefaultConfig().Metrics.Port, cfg.Metrics.Port)
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("FEEDLINE_STREAM_NAME", "env-stream")
	t.Setenv("FEEDLINE_NATS_ENABLED", "true")
	t.Setenv("FEEDLINE_NATS_URL", "nats://env:4222")
	t.Setenv("FEEDLINE_NATS_PASSWORD", "envpass")
	t.Setenv("FEEDLINE_METRICS_ENABLED", "false")
	t.Setenv("FEEDLINE_LOG_LEVEL", "ERROR")

	cfg, err := NewLoader().LoadFile("testdata/base.json")
	require.NoError(t, err)

	assert.Equal(t, "env-stream", cfg.Stream.Name)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "envpass", cfg.NATS.Password)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoaderEnvTransportSwitch(t *testing.T) {
	t.Setenv("FEEDLINE_TRANSPORT_KIND", "websocket")
	t.Setenv("FEEDLINE_TRANSPORT_URL", "wss://env.example.com/ws")

	cfg, err := NewLoader().LoadFile("testdata/base.json")
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, "wss://env.example.com/ws", cfg.Transport.WebSocket.URL)
	// the SSE endpoint from the file is untouched
	assert.Equal(t, "https://feed.example.com/v1/stream", cfg.Transport.SSE.URL)
}

func TestLoaderEnvBadValues(t *testing.T) {
	t.Run("metrics port", func(t *testing.T) {
		t.Setenv("FEEDLINE_METRICS_PORT", "abc")
		_, err := NewLoader().Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FEEDLINE_METRICS_PORT")
	})

	t.Run("nats enabled", func(t *testing.T) {
		t.Setenv("FEEDLINE_NATS_ENABLED", "maybe")
		_, err := NewLoader().Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FEEDLINE_NATS_ENABLED")
	})
}

func TestLoaderBadDuration(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"stream": {"dequeue_interval": "fast"}}`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.dequeue_interval")
	assert.Contains(t, err.Error(), `"fast"`)
}

func TestLoaderRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "conf.toml", `kind = "sse"`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only JSON or YAML")
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.json")
}

func TestLoaderMalformedJSON(t *testing.T) {
	path := writeConfig(t, "broken.json", `{"stream": `)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
}

func TestLoaderMalformedYAML(t *testing.T) {
	path := writeConfig(t, "broken.yaml", "stream:\n  name: [unclosed")

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoaderYAMLScalarTopLevel(t *testing.T) {
	path := writeConfig(t, "scalar.yaml", `just a string`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top level must be a mapping")
}

func TestLoaderValidationGate(t *testing.T) {
	// schema-clean but semantically inverted thresholds
	path := writeConfig(t, "inverted.json", `{
  "transport": {"kind": "sse", "sse": {"url": "https://feed.example.com/v1/stream"}},
  "monitor": {"thresholds": {"fill_warning": 0.9, "fill_critical": 0.5}}
}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err, "validation is off by default")
	assert.Equal(t, 0.9, cfg.Monitor.Thresholds.FillWarning)

	strict := NewLoader()
	strict.EnableValidation(true)
	_, err = strict.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fill_warning cannot exceed fill_critical")
}

func TestLoaderLayersAccessor(t *testing.T) {
	loader := NewLoader()
	loader.AddLayer("a.json")
	loader.AddLayer("b.yaml")

	layers := loader.Layers()
	assert.Equal(t, []string{"a.json", "b.yaml"}, layers)

	layers[0] = "mutated"
	assert.Equal(t, []string{"a.json", "b.yaml"}, loader.Layers())
}

func TestDeepMergeMaps(t *testing.T) {
	base := map[string]any{
		"a": 1,
		"b": map[string]any{"x": "keep", "y": "old"},
		"c": "base",
	}
	override := map[string]any{
		"b": map[string]any{"y": "new", "z": "added"},
		"c": nil,
		"d": true,
	}

	merged := deepMergeMaps(base, override)

	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, map[string]any{"x": "keep", "y": "new", "z": "added"}, merged["b"])
	assert.Equal(t, "base", merged["c"], "nil override values are ignored")
	assert.Equal(t, true, merged["d"])

	// inputs are not mutated
	assert.Equal(t, "old", base["b"].(map[string]any)["y"])
}

func TestConvertDurations(t *testing.T) {
	raw := map[string]any{
		"interval": "500ms",
		"nested": map[string]any{
			"connect_timeout": "10s",
			"name":            "10s",
		},
		"window": 5,
	}

	require.NoError(t, convertDurations("", raw))
	assert.Equal(t, int64(500_000_000), raw["interval"])
	nested := raw["nested"].(map[string]any)
	assert.Equal(t, int64(10_000_000_000), nested["connect_timeout"])
	assert.Equal(t, "10s", nested["name"], "non-duration keys keep their strings")
	assert.Equal(t, 5, raw["window"])
}
