package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/c360/feedline/monitor"
	natsout "github.com/c360/feedline/output/nats"
	"github.com/c360/feedline/pkg/security"
	"github.com/c360/feedline/stream"
	"github.com/c360/feedline/transport/sse"
	"github.com/c360/feedline/transport/websocket"
)

// Transport kind constants
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Overflow policy names accepted by the transport section.
const (
	OverflowReset = "reset"
	OverflowFail  = "fail"
)

// Config is the complete daemon configuration: one stream, one
// transport, the flow monitor, an optional NATS bridge, the metrics
// server, and logging.
type Config struct {
	Stream    stream.Config   `json:"stream,omitempty" yaml:"stream,omitempty"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Monitor   monitor.Config  `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	NATS      NATSConfig      `json:"nats,omitempty" yaml:"nats,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Log       LogConfig       `json:"log,omitempty" yaml:"log,omitempty"`
	Security  security.Config `json:"security,omitempty" yaml:"security,omitempty"`
}

// TransportConfig selects and configures the wire transport.
type TransportConfig struct {
	// Kind picks the transport: "sse" or "websocket".
	Kind string `json:"kind" yaml:"kind"`

	// MaxLineBytes caps the line reassembly buffer. Zero takes the
	// pipeline default (1 MiB).
	MaxLineBytes int `json:"max_line_bytes,omitempty" yaml:"max_line_bytes,omitempty"`

	// OverflowPolicy is what happens when a record exceeds the cap:
	// "reset" (default) drops the partial and keeps going, "fail"
	// tears the stream down.
	OverflowPolicy string `json:"overflow_policy,omitempty" yaml:"overflow_policy,omitempty"`

	// SSE configures the SSE client. Used when Kind is "sse".
	SSE sse.Config `json:"sse,omitempty" yaml:"sse,omitempty"`

	// WebSocket configures the WebSocket client. Used when Kind is
	// "websocket".
	WebSocket websocket.Config `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

// ActiveURL returns the endpoint of the selected kind.
func (t TransportConfig) ActiveURL() string {
	if t.Kind == TransportWebSocket {
		return t.WebSocket.URL
	}
	return t.SSE.URL
}

// NATSConfig defines the outbound NATS connection and bridge.
type NATSConfig struct {
	// Enabled turns the NATS bridge on. Off by default; the daemon
	// runs fine as a pure consumer.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// URL is the server address. nats.go accepts a comma-separated
	// list for clusters.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Name identifies this client to the server.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`

	// MaxReconnects caps reconnection attempts (-1 = unlimited).
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	PingInterval  time.Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`

	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// DrainTimeout bounds the flush on shutdown.
	DrainTimeout time.Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`

	// HealthInterval is the RTT probe cadence. Zero disables probing.
	HealthInterval time.Duration `json:"health_interval,omitempty" yaml:"health_interval,omitempty"`

	// CircuitThreshold is how many consecutive dial failures open the
	// circuit breaker.
	CircuitThreshold int `json:"circuit_threshold,omitempty" yaml:"circuit_threshold,omitempty"`

	TLS NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	// Output configures the event bridge publishing to this server.
	Output natsout.Config `json:"output,omitempty" yaml:"output,omitempty"`
}

// NATSTLSConfig for secure NATS connections.
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// MetricsConfig defines the Prometheus/health HTTP server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig defines logging. Level changes apply on config reload;
// format changes need a restart.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is json or text.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
	}
}

// DefaultConfig returns the defaults the file layers merge over.
// Component packages default their own zero fields at construction;
// these are the knobs the config file owns outright.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: TransportSSE,
		},
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			PingInterval:     30 * time.Second,
			ConnectTimeout:   5 * time.Second,
			DrainTimeout:     30 * time.Second,
			HealthInterval:   10 * time.Second,
			CircuitThreshold: 5,
			Output:           natsout.DefaultConfig(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the config is runnable. It normalizes the transport
// kind to lowercase as a side effect.
func (c *Config) Validate() error {
	c.Transport.Kind = strings.ToLower(c.Transport.Kind)

	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Transport.Kind {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("transport.kind must be %q or %q, got %q",
			TransportSSE, TransportWebSocket, c.Transport.Kind)
	}

	endpoint := c.Transport.ActiveURL()
	if endpoint == "" {
		return fmt.Errorf("transport.%s.url is required", c.Transport.Kind)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("transport.%s.url: %w", c.Transport.Kind, err)
	}
	switch c.Transport.Kind {
	case TransportSSE:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("transport.sse.url scheme must be http or https, got %q", u.Scheme)
		}
	case TransportWebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("transport.websocket.url scheme must be ws or wss, got %q", u.Scheme)
		}
	}

	if c.Transport.MaxLineBytes < 0 {
		return errors.New("transport.max_line_bytes cannot be negative")
	}
	switch c.Transport.OverflowPolicy {
	case "", OverflowReset, OverflowFail:
	default:
		return fmt.Errorf("transport.overflow_policy must be %q or %q, got %q",
			OverflowReset, OverflowFail, c.Transport.OverflowPolicy)
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.QueueCapacity < 0 {
		return errors.New("stream.queue_capacity cannot be negative")
	}
	if c.Stream.RecentWindow < 0 {
		return errors.New("stream.recent_window cannot be negative")
	}
	if c.Stream.Reconnect.MaxAttempts < 0 {
		return errors.New("stream.reconnect.max_attempts cannot be negative")
	}
	if c.Stream.Reconnect.Multiplier < 0 {
		return errors.New("stream.reconnect.multiplier cannot be negative")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.Interval < 0 {
		return errors.New("monitor.interval cannot be negative")
	}
	if c.Monitor.Window < 0 {
		return errors.New("monitor.window cannot be negative")
	}
	t := c.Monitor.Thresholds
	if t.FillWarning < 0 || t.FillWarning > 1 || t.FillCritical < 0 || t.FillCritical > 1 {
		return errors.New("monitor.thresholds fill levels must be within [0, 1]")
	}
	if t.FillWarning != 0 && t.FillCritical != 0 && t.FillWarning > t.FillCritical {
		return errors.New("monitor.thresholds.fill_warning cannot exceed fill_critical")
	}
	if t.DecodeWarning < 0 || t.DecodeWarning > 1 || t.DecodeCritical < 0 || t.DecodeCritical > 1 {
		return errors.New("monitor.thresholds decode levels must be within [0, 1]")
	}
	if t.DecodeWarning != 0 && t.DecodeCritical != 0 && t.DecodeCritical > t.DecodeWarning {
		return errors.New("monitor.thresholds.decode_critical cannot exceed decode_warning")
	}
	if t.MinEventsPerSecond < 0 {
		return errors.New("monitor.thresholds.min_events_per_second cannot be negative")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if c.NATS.TLS.Enabled {
		if (c.NATS.TLS.CertFile == "") != (c.NATS.TLS.KeyFile == "") {
			return errors.New("nats.tls cert_file and key_file must be set together")
		}
	}
	if err := c.NATS.Output.Validate(); err != nil {
		return fmt.Errorf("nats.output: %w", err)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be within [1, 65535], got %d", c.Metrics.Port)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// validateSecurity validates the platform TLS configuration.
func (c *Config) validateSecurity() error {
	if c.Security.TLS.Server.Enabled {
		if c.Security.TLS.Server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.Server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLS.Server.CertFile); err != nil {
			return fmt.Errorf("tls.server.cert_file: %w", err)
		}
		if _, err := os.Stat(c.Security.TLS.Server.KeyFile); err != nil {
			return fmt.Errorf("tls.server.key_file: %w", err)
		}
		if c.Security.TLS.Server.MinVersion != "" {
			if err := validateTLSVersion(c.Security.TLS.Server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}
	if c.Security.TLS.Client.InsecureSkipVerify {
		fmt.Fprintln(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!")
	}
	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}
	return nil
}

// validateTLSVersion checks if a TLS version string is valid.
func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// TransportTLS resolves the client TLS config for the active
// transport: the transport's own section when set, otherwise the
// platform-wide client TLS.
func (c *Config) TransportTLS() security.ClientTLSConfig {
	var tls security.ClientTLSConfig
	switch c.Transport.Kind {
	case TransportWebSocket:
		tls = c.Transport.WebSocket.TLS
	default:
		tls = c.Transport.SSE.TLS
	}
	if isZeroClientTLS(tls) {
		return c.Security.TLS.Client
	}
	return tls
}

func isZeroClientTLS(tls security.ClientTLSConfig) bool {
	return len(tls.CAFiles) == 0 &&
		!tls.InsecureSkipVerify &&
		tls.MinVersion == "" &&
		!tls.MTLS.Enabled &&
		tls.MTLS.CertFile == "" &&
		tls.MTLS.KeyFile == ""
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// JSON round trip for the deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Redacted returns a copy safe for logging, with credentials masked.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "***"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "***"
	}
	return clone
}

// String returns an indented JSON representation with credentials
// masked.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
