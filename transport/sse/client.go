// Package sse implements the Server-Sent Events feed transport.
//
// The client opens a long-lived GET with the standard SSE headers,
// unwraps event framing, and hands each event's data payload to the
// shared line pipeline, so records parse identically to the WebSocket
// transport. Event IDs from the server are tracked and replayed via
// the Last-Event-ID header on the next Connect. Send publishes
// payloads back to the feed with a JSON POST.
package sse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/message"
	"github.com/c360/feedline/pkg/security"
	"github.com/c360/feedline/pkg/tlsutil"
	"github.com/c360/feedline/transport"
)

// disconnectTimeout bounds how long Disconnect waits for the read loop
// to wind down.
const disconnectTimeout = 5 * time.Second

// Config configures an SSE client.
type Config struct {
	// URL is the stream endpoint.
	URL string `json:"url" yaml:"url"`

	// PublishURL is the POST target for Send. Defaults to URL.
	PublishURL string `json:"publish_url,omitempty" yaml:"publish_url,omitempty"`

	// Headers are added to every request, stream and publish alike.
	Headers http.Header `json:"headers,omitempty" yaml:"headers,omitempty"`

	// ConnectTimeout bounds the whole connect phase: dial, TLS, and
	// response headers. Defaults to transport.DefaultConnectTimeout.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// TLS is the client TLS configuration.
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

// Client is the SSE implementation of transport.Client.
type Client struct {
	config       Config
	logger       *slog.Logger
	httpClient   *http.Client
	tracker      *transport.Tracker
	userHandler  transport.StateHandler
	pipelineOpts []transport.PipelineOption

	// lifecycleMu serializes Connect and Disconnect.
	lifecycleMu sync.Mutex

	mu          sync.Mutex
	pipeline    *transport.Pipeline
	cancel      context.CancelFunc
	lastEventID string

	wg sync.WaitGroup
}

var _ transport.Client = (*Client)(nil)

// New creates an SSE client. The URL is required; zero timeouts take
// their defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "sse", "New", "stream URL required")
	}
	if cfg.PublishURL == "" {
		cfg.PublishURL = cfg.URL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = transport.DefaultConnectTimeout
	}

	var tlsConfig *tls.Config
	if len(cfg.TLS.CAFiles) > 0 || cfg.TLS.InsecureSkipVerify || cfg.TLS.MinVersion != "" || cfg.TLS.MTLS.Enabled {
		var err error
		tlsConfig, err = tlsutil.LoadClientTLSConfigWithMTLS(cfg.TLS, cfg.TLS.MTLS)
		if err != nil {
			return nil, errors.WrapInvalid(err, "sse", "New", "load client TLS config")
		}
	}

	c := &Client{
		config: cfg,
		logger: slog.Default(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.tracker = transport.NewTracker(func(from, to transport.State) {
		c.logger.Debug("Connection state changed",
			"transport", "sse", "from", from.String(), "to", to.String())
		if c.userHandler != nil {
			c.userHandler(from, to)
		}
	})
	return c, nil
}

// Connect opens the stream. It blocks until response headers arrive or
// the connect timeout elapses; on timeout the client lands in
// StateFailed with a classified timeout error.
func (c *Client) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.tracker.BeginConnect(); err != nil {
		return errors.WrapInvalid(err, "sse", "Connect", "begin session")
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(sessionCtx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		cancel()
		werr := errors.WrapInvalid(err, "sse", "Connect", "build stream request")
		c.tracker.Fail(werr)
		return werr
	}
	applyHeaders(req, c.config.Headers)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if last := c.LastEventID(); last != "" {
		req.Header.Set("Last-Event-ID", last)
	}

	// One timer covers dial, TLS, and response headers together, so a
	// slow phase cannot stretch the overall connect beyond the budget.
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.config.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := c.httpClient.Do(req)
	timer.Stop()
	if err != nil {
		cancel()
		var werr error
		if timedOut.Load() {
			werr = errors.WrapTransient(errors.ErrConnectionTimeout, "sse", "Connect",
				fmt.Sprintf("no stream headers within %s", c.config.ConnectTimeout))
		} else {
			werr = errors.WrapTransient(err, "sse", "Connect", "open stream")
		}
		c.tracker.Fail(werr)
		return werr
	}

	if resp.StatusCode != http.StatusOK {
		drainAndClose(resp.Body)
		cancel()
		werr := errors.WrapTransient(
			fmt.Errorf("%w: status %s", errors.ErrHandshakeFailed, resp.Status),
			"sse", "Connect", "open stream")
		c.tracker.Fail(werr)
		return werr
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		drainAndClose(resp.Body)
		cancel()
		werr := errors.WrapInvalid(
			fmt.Errorf("%w: content type %q", errors.ErrHandshakeFailed, ct),
			"sse", "Connect", "open stream")
		c.tracker.Fail(werr)
		return werr
	}

	p := transport.NewPipeline(c.pipelineOpts...)
	c.mu.Lock()
	c.pipeline = p
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(sessionCtx, resp.Body, p)

	c.tracker.Connected()
	c.logger.Info("Stream connected", "transport", "sse", "url", c.config.URL)
	return nil
}

// readLoop unwraps SSE framing and feeds each event's data payload to
// the line pipeline. Multi-line payloads split into multiple records
// there, which is exactly what the line framing is for.
func (c *Client) readLoop(ctx context.Context, body io.ReadCloser, p *transport.Pipeline) {
	defer c.wg.Done()
	defer p.Close()
	defer body.Close()

	sc := newScanner(body)
	for sc.next() {
		ev := sc.event()
		if ev.ID != "" {
			c.setLastEventID(ev.ID)
		}
		if err := p.Ingest(append([]byte(ev.Data), '\n')); err != nil {
			c.abort(ctx, err)
			return
		}
	}

	if err := sc.scanErr(); err != nil {
		c.abort(ctx, errors.WrapTransient(err, "sse", "readLoop", "read stream"))
		return
	}
	c.abort(ctx, errors.WrapTransient(errors.ErrStreamEnded, "sse", "readLoop", "read stream"))
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
	c.logger.Warn("Stream failed", "transport", "sse", "error", err)
}

// Send publishes a payload with a JSON POST to the publish endpoint.
func (c *Client) Send(ctx context.Context, payload any) error {
	if c.tracker.State() != transport.StateConnected {
		return errors.WrapInvalid(errors.ErrNotConnected, "sse", "Send", "check connection")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "sse", "Send", "encode payload")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, transport.DefaultWriteTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.PublishURL, bytes.NewReader(data))
	if err != nil {
		return errors.WrapInvalid(err, "sse", "Send", "build publish request")
	}
	applyHeaders(req, c.config.Headers)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "sse", "Send", "publish payload")
	}
	drainAndClose(resp.Body)

	if resp.StatusCode >= 500 {
		return errors.WrapTransient(fmt.Errorf("unexpected status %s", resp.Status),
			"sse", "Send", "publish payload")
	}
	if resp.StatusCode >= 300 {
		return errors.WrapInvalid(fmt.Errorf("unexpected status %s", resp.Status),
			"sse", "Send", "publish payload")
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

// LastEventID returns the most recent event ID seen from the server.
// It survives disconnects so the next Connect can resume.
func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

func (c *Client) setLastEventID(id string) {
	c.mu.Lock()
	c.lastEventID = id
	c.mu.Unlock()
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
	cancel := c.cancel
	p := c.pipeline
	c.cancel = nil
	c.mu.Unlock()

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
		err = errors.WrapTransient(errors.ErrShuttingDown, "sse", "Disconnect",
			"await reader shutdown")
	}

	c.tracker.Disconnected()
	c.logger.Info("Stream disconnected", "transport", "sse", "url", c.config.URL)
	return err
}

func applyHeaders(req *http.Request, headers http.Header) {
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}

// drainAndClose bounds the drain so a streaming error response cannot
// hold the caller.
func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 4<<10))
	body.Close()
}
