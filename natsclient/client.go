package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Circuit breaker gauge values.
const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
)

// Status holds a snapshot of the client's runtime state
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int32
	RTT             time.Duration
}

// Client manages one NATS connection with a circuit breaker in front of
// dialing. Reconnection of an established connection is left to the
// nats.go client itself; the circuit only guards repeated dial failures.
type Client struct {
	url    string
	logger *slog.Logger

	status     atomic.Value // ConnectionStatus
	failures   atomic.Int32
	reconnects atomic.Int32

	conn *nats.Conn
	subs []*nats.Subscription

	// Circuit breaker
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication, cleared on Close
	username string
	password string
	token    string

	// TLS
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName  string
	compression bool

	metrics *metric.Metrics

	// Callbacks
	onDisconnect     func(error)
	onReconnect      func()
	onHealthChange   func(bool)
	onConnectionLost func(error)

	// Health monitoring
	healthTicker   *time.Ticker
	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a NATS client for the given server URL
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "NewClient", "server URL required")
	}

	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		healthInterval:   10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// Connection returns the underlying NATS connection, or nil before Connect
func (c *Client) Connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(status == StatusConnected)
	}
}

func (c *Client) recordCircuit(state int) {
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(state)
	}
}

// IsHealthy returns true if the connection is established
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the total dial failure count
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the current circuit backoff duration
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// recordFailure counts a dial failure and opens the circuit once the
// threshold is reached in the current round.
func (c *Client) recordFailure() {
	c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	circuitFailures := c.circuitFailures.Add(1)
	if circuitFailures < c.circuitThreshold {
		return
	}

	currentBackoff := c.backoff.Load().(time.Duration)
	nextBackoff := currentBackoff * 2
	if nextBackoff > c.maxBackoff {
		nextBackoff = c.maxBackoff
	}
	c.backoff.Store(nextBackoff)
	c.circuitFailures.Store(0)

	currentStatus := c.Status()
	if currentStatus != StatusCircuitOpen {
		// Only one goroutine wins the transition and schedules the probe.
		if c.status.CompareAndSwap(currentStatus, StatusCircuitOpen) {
			c.recordCircuit(circuitOpen)
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(false)
			}
			c.logger.Warn("NATS circuit breaker opened",
				"url", c.url, "failures", circuitFailures, "backoff", currentBackoff)
			time.AfterFunc(currentBackoff, c.probeCircuit)
		}
	} else {
		c.logger.Warn("NATS circuit breaker still open, backoff increased",
			"url", c.url, "backoff", nextBackoff)
	}
}

// resetCircuit clears failure tracking after a successful operation
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})
	c.recordCircuit(circuitClosed)

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// probeCircuit moves an open circuit to half-open so the next Connect
// attempt is allowed through.
func (c *Client) probeCircuit() {
	if c.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		c.recordCircuit(circuitHalfOpen)
		c.logger.Debug("NATS circuit breaker half-open, next dial allowed", "url", c.url)
	}
}

// WaitForConnection polls until the connection is healthy or the
// context expires
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "natsclient", "WaitForConnection", "await healthy connection")
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// ConnectionOptions returns the nats.Option set the client dials with
func (c *Client) ConnectionOptions() []nats.Option {
	return c.buildConnectionOptions()
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts
}

// GetStatus returns a snapshot of the client's runtime state
func (c *Client) GetStatus() *Status {
	status := &Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
		Reconnects:      c.reconnects.Load(),
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			status.RTT = rtt
		}
	}

	return status
}

type dialResult struct {
	conn *nats.Conn
	err  error
}

// Connect dials the NATS server. A dial refused by the open circuit
// returns ErrCircuitOpen without touching the network.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return errors.ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	opts := c.buildConnectionOptions()

	results := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		results <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			c.recordFailure()
			if c.Status() != StatusCircuitOpen {
				c.setStatus(StatusDisconnected)
				return errors.WrapTransient(res.err, "natsclient", "Connect", "dial server")
			}
			return errors.ErrCircuitOpen
		}
		c.mu.Lock()
		c.conn = res.conn
		c.mu.Unlock()
	case <-ctx.Done():
		// The dial may still succeed in the background; close it then.
		go func() {
			if res := <-results; res.conn != nil {
				res.conn.Close()
			}
		}()
		c.recordFailure()
		if c.Status() != StatusCircuitOpen {
			c.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "natsclient", "Connect", "dial cancelled")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("Connected to NATS", "url", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}

	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// Close drains and closes the connection. Credentials are cleared.
// Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.stopHealthMonitoring()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "natsclient", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		conn := c.conn
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "natsclient", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout),
				"natsclient", "Close", "drain connection"))
			c.logger.Warn("NATS drain timed out, forcing close", "timeout", drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "natsclient", "Close", "drain cancelled"))
		}

		c.conn.Close()
		c.conn = nil
	}

	// Clear credentials
	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)

	return stderrors.Join(errs...)
}

// RTT returns the round-trip time to the server
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, errors.ErrNotConnected
	}

	return conn.RTT()
}

// Subscribe subscribes to a subject. Each handler invocation gets a
// context derived from the parent with a 30-second processing timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Subscribe", "subscribe to subject")
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Publish publishes data to a subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.ErrNotConnected
	}

	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish message")
	}
	return nil
}

// PublishMsg publishes a prepared message, headers included
func (c *Client) PublishMsg(_ context.Context, msg *nats.Msg) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.ErrNotConnected
	}

	if err := conn.PublishMsg(msg); err != nil {
		return errors.WrapTransient(err, "natsclient", "PublishMsg", "publish message")
	}
	return nil
}

// Flush waits until all buffered publishes reach the server
func (c *Client) Flush() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.ErrNotConnected
	}

	return conn.Flush()
}

// Event handlers installed on the nats.Conn

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	if onHealthChange != nil {
		go onHealthChange(false)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.reconnects.Add(1)
	if c.metrics != nil {
		c.metrics.RecordNATSReconnect()
	}

	c.mu.RLock()
	onReconnect := c.onReconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	if onHealthChange != nil {
		go onHealthChange(true)
	}
}

func (c *Client) handleClosed(conn *nats.Conn) {
	c.setStatus(StatusDisconnected)

	c.mu.RLock()
	onHealthChange := c.onHealthChange
	onConnectionLost := c.onConnectionLost
	c.mu.RUnlock()

	if onHealthChange != nil {
		go onHealthChange(false)
	}
	// An unexpected close means the nats client gave up reconnecting.
	if onConnectionLost != nil && !c.closed.Load() {
		go onConnectionLost(conn.LastError())
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS async error", "error", err)
}

// startHealthMonitoring begins periodic RTT checks
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker := c.healthTicker
	done := c.healthDone
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		lastHealthy := c.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()

				if conn == nil {
					continue
				}

				healthy := conn.IsConnected()
				if rtt, err := conn.RTT(); err != nil {
					healthy = false
				} else if c.metrics != nil {
					c.metrics.RecordNATSRTT(rtt)
				}

				if healthy && c.Status() != StatusConnected {
					c.setStatus(StatusConnected)
				} else if !healthy && c.Status() == StatusConnected {
					c.setStatus(StatusReconnecting)
				}

				if healthy != lastHealthy && c.onHealthChange != nil {
					c.onHealthChange(healthy)
				}

				lastHealthy = healthy
			}
		}
	}()
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}
