// Package websocket implements the WebSocket feed transport.
//
// The client dials with gorilla/websocket, feeds text and binary
// frames to the shared line pipeline, and runs a sequenced ping/pong
// keepalive while connected. Three consecutive missed pongs mark the
// connection dead and move the client to the failed state; control
// frames never surface as application messages.
package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/pkg/security"
	"github.com/c360/feedline/pkg/tlsutil"
	"github.com/c360/feedline/transport"
)

// disconnectTimeout bounds how long Disconnect waits for the session
// goroutines to wind down.
const disconnectTimeout = 5 * time.Second

// DefaultReadLimit caps a single frame at 4 MiB. Larger frames close
// the connection rather than ballooning memory.
const DefaultReadLimit = 4 << 20

// Config configures a WebSocket client.
type Config struct {
	// URL is the stream endpoint (ws:// or wss://).
	URL string `json:"url" yaml:"url"`

	// Headers are sent with the handshake request.
	Headers http.Header `json:"headers,omitempty" yaml:"headers,omitempty"`

	// ConnectTimeout bounds the dial and handshake. Defaults to
	// transport.DefaultConnectTimeout.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// WriteTimeout bounds each outbound frame. Defaults to
	// transport.DefaultWriteTimeout.
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`

	// ReadLimit caps inbound frame size. Defaults to DefaultReadLimit.
	ReadLimit int64 `json:"read_limit,omitempty" yaml:"read_limit,omitempty"`

	// Keepalive tunes the ping/pong monitor. Zero fields take the
	// transport defaults.
	Keepalive transport.KeepaliveConfig `json:"keepalive,omitempty" yaml:"keepalive,omitempty"`

	// TLS is the client TLS configuration, used for wss endpoints.
	TLS security.ClientTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateHandler registers an observer for state transitions.
func WithStateHandler(h transport.StateHandler) Option {
	return func(c *Client) {
		c.userHandler = h
	}
}

// WithPipelineOptions forwards options to each session's pipeline, for
// callers that tune buffering or attach failure handlers.
func WithPipelineOptions(opts ...transport.PipelineOption) Option {
	return func(c *Client) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// Client is the WebSocket implementation of transport.Client.
type Client struct {
	config       Config
	logger       *slog.Logger
	tlsConfig    *tls.Config
	tracker      *transport.Tracker
	userHandler  transport.StateHandler
	pipelineOpts []transport.PipelineOption

	// lifecycleMu serializes Connect and Disconnect.
	lifecycleMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	pipeline  *transport.Pipeline
	keepalive *transport.Keepalive
	cancel    context.CancelFunc

	// writeMu serializes data frames; control frames go through
	// WriteControl, which gorilla allows concurrently.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

var _ transport.Client = (*Client)(nil)

// New creates a WebSocket client. The URL is required; zero timeouts
// and keepalive fields take their defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "websocket", "New", "stream URL required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = transport.DefaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = transport.DefaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.Keepalive.PingInterval <= 0 {
		cfg.Keepalive.PingInterval = transport.DefaultPingInterval
	}
	if cfg.Keepalive.PongTimeout <= 0 {
		cfg.Keepalive.PongTimeout = transport.DefaultPongTimeout
	}
	if cfg.Keepalive.MaxMissedPongs <= 0 {
		cfg.Keepalive.MaxMissedPongs = transport.DefaultMaxMissedPongs
	}

	var tlsConfig *tls.Config
	if len(cfg.TLS.CAFiles) > 0 || cfg.TLS.InsecureSkipVerify || cfg.TLS.MinVersion != "" || cfg.TLS.MTLS.Enabled {
		var err error
		tlsConfig, err = tlsutil.LoadClientTLSConfigWithMTLS(cfg.TLS, cfg.TLS.MTLS)
		if err != nil {
			return nil, errors.WrapInvalid(err, "websocket", "New", "load client TLS config")
		}
	}

	c := &Client{
		config:    cfg,
		logger:    slog.Default(),
		tlsConfig: tlsConfig,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.tracker = transport.NewTracker(func(from, to transport.State) {
		c.logger.Debug("Connection state changed",
			"transport", "websocket", "from", from.String(), "to", to.String())
		if c.userHandler != nil {
			c.userHandler(from, to)
		}
	})
	return c, nil
}

// Connect dials the endpoint. It blocks until the handshake completes
// or the connect timeout elapses; on timeout the client lands in
// StateFailed with a classified timeout error.
func (c *Client) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.tracker.BeginConnect(); err != nil {
		return errors.WrapInvalid(err, "websocket", "Connect", "begin session")
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.config.ConnectTimeout,
		TLSClientConfig:  c.tlsConfig,
		Proxy:            http.ProxyFromEnvironment,
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	dialCtx, dialCancel := context.WithTimeout(sessionCtx, c.config.ConnectTimeout)
	defer dialCancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.config.URL, c.config.Headers)
	if err != nil {
		if resp != nil && resp.Body != nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
		}
		cancel()
		var werr error
		netErr, ok := err.(net.Error)
		if dialCtx.Err() == context.DeadlineExceeded || (ok && netErr.Timeout()) {
			werr = errors.WrapTransient(errors.ErrConnectionTimeout, "websocket", "Connect",
				fmt.Sprintf("no handshake within %s", c.config.ConnectTimeout))
		} else {
			werr = errors.WrapTransient(err, "websocket", "Connect", "dial endpoint")
		}
		c.tracker.Fail(werr)
		return werr
	}

	conn.SetReadLimit(c.config.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(c.readWait()))

	p := transport.NewPipeline(c.pipelineOpts...)

	ka := transport.NewKeepalive(c.config.Keepalive,
		func(seq uint64) error {
			deadline := time.Now().Add(c.config.WriteTimeout)
			payload := []byte(strconv.FormatUint(seq, 10))
			return conn.WriteControl(websocket.PingMessage, payload, deadline)
		},
		func() {
			c.abort(sessionCtx, errors.WrapTransient(errors.ErrKeepaliveTimeout,
				"websocket", "keepalive",
				fmt.Sprintf("%d consecutive pongs missed", c.config.Keepalive.MaxMissedPongs)))
			conn.Close()
		})

	// Pongs echo the ping payload, so the sequence number correlates
	// them. The handler runs inside the read loop during ReadMessage.
	conn.SetPongHandler(func(appData string) error {
		if seq, perr := strconv.ParseUint(appData, 10, 64); perr == nil {
			ka.PongReceived(seq)
		}
		conn.SetReadDeadline(time.Now().Add(c.readWait()))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.pipeline = p
	c.keepalive = ka
	c.cancel = cancel
	c.mu.Unlock()

	ka.Start(sessionCtx)

	c.wg.Add(1)
	go c.watchdog(sessionCtx, conn)

	c.wg.Add(1)
	go c.readLoop(sessionCtx, cancel, conn, p, ka)

	c.tracker.Connected()
	c.logger.Info("Stream connected", "transport", "websocket", "url", c.config.URL)
	return nil
}

// watchdog closes the connection when the session ends, which is the
// only way to unblock a gorilla read.
func (c *Client) watchdog(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	<-ctx.Done()
	conn.Close()
}

// readLoop pumps data frames into the pipeline until the connection
// ends. Gorilla handles control frames inside ReadMessage, so only
// text and binary frames arrive here, and both carry feed bytes.
func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, p *transport.Pipeline, ka *transport.Keepalive) {
	defer c.wg.Done()
	defer p.Close()
	defer cancel()
	defer ka.Stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.readFailed(ctx, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.readWait()))

		if err := p.Ingest(data); err != nil {
			c.abort(ctx, err)
			conn.Close()
			return
		}
	}
}

// readFailed classifies a read error and records the session failure.
func (c *Client) readFailed(ctx context.Context, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.abort(ctx, errors.WrapTransient(errors.ErrStreamEnded, "websocket", "readLoop", "read frame"))
		return
	}
	c.abort(ctx, errors.WrapTransient(err, "websocket", "readLoop", "read frame"))
}

// abort records a session failure unless the session is already ending
// on purpose.
func (c *Client) abort(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if c.tracker.State() != transport.StateConnected {
		return
	}
	c.tracker.Fail(err)
	c.logger.Warn("Stream failed", "transport", "websocket", "error", err)
}

// readWait is the read deadline backstop. The keepalive monitor is the
// primary dead-peer detector; the deadline only catches a connection
// that dies while the monitor is mid-cycle.
func (c *Client) readWait() time.Duration {
	return c.config.Keepalive.DetectionDelay() + c.config.Keepalive.PingInterval
}

// Send JSON-encodes the payload and writes it as a text frame.
func (c *Client) Send(ctx context.Context, payload any) error {
	if c.tracker.State() != transport.StateConnected {
		return errors.WrapInvalid(errors.ErrNotConnected, "websocket", "Send", "check connection")
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.WrapInvalid(errors.ErrNotConnected, "websocket", "Send", "check connection")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "websocket", "Send", "encode payload")
	}

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "websocket", "Send", "write frame")
	}
	return nil
}

// Receive returns the delivery channel for the current session, or nil
// before the first Connect.
func (c *Client) Receive() <-chan message.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.Events()
}

// State returns the current connection state.
func (c *Client) State() transport.State {
	return c.tracker.State()
}

// Err returns the reason the client is in StateFailed, or nil.
func (c *Client) Err() error {
	return c.tracker.Err()
}

// Disconnect tears the stream down. Idempotent; always leaves the
// client in StateDisconnected.
func (c *Client) Disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.tracker.State() == transport.StateDisconnected {
		return nil
	}
	c.tracker.Disconnecting()

	c.mu.Lock()
	conn := c.conn
	ka := c.keepalive
	p := c.pipeline
	cancel := c.cancel
	c.conn = nil
	c.keepalive = nil
	c.cancel = nil
	c.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if conn != nil {
		// Best effort close frame so well-behaved servers see a clean end.
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Interrupt()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(disconnectTimeout):
		err = errors.WrapTransient(errors.ErrShuttingDown, "websocket", "Disconnect",
			"await session shutdown")
	}

	c.tracker.Disconnected()
	c.logger.Info("Stream disconnected", "transport", "websocket", "url", c.config.URL)
	return err
}
