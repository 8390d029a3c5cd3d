package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestClient is a connected Client backed by a disposable NATS
// container
type TestClient struct {
	container testcontainers.Container
	Client    *Client
	URL       string
	cleanup   func()
}

type testConfig struct {
	natsVersion  string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures the test container
type TestOption func(*testConfig)

// WithNATSVersion pins the NATS server image version
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithTestTimeout sets the client connection timeout
func WithTestTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = timeout
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// NewSharedTestClient starts a NATS container and connects a client.
// Unlike NewTestClient it returns errors instead of failing a test, so
// it fits TestMain.
func NewSharedTestClient(opts ...TestOption) (*TestClient, error) {
	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("mapped port: %w", err)
	}

	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := NewClient(url,
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("create client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		_ = client.Close(ctx)
		container.Terminate(ctx)
		return nil, fmt.Errorf("connection not ready: %w", err)
	}

	return &TestClient{
		container: container,
		Client:    client,
		URL:       url,
		cleanup: func() {
			_ = client.Close(context.Background())
			_ = container.Terminate(context.Background())
		},
	}, nil
}

// NewTestClient starts a NATS container for one test and registers
// cleanup. Accepts testing.TB so it works from benchmarks too.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	tc, err := NewSharedTestClient(opts...)
	if err != nil {
		t.Fatalf("NATS test container: %v", err)
	}

	t.Cleanup(tc.Terminate)
	return tc
}

// Terminate tears down the client and container. Idempotent.
func (tc *TestClient) Terminate() {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
}

// IsReady reports whether the connection is usable
func (tc *TestClient) IsReady() bool {
	return tc.Client.IsHealthy()
}

// NativeConnection exposes the raw NATS connection for direct
// subscriptions in tests
func (tc *TestClient) NativeConnection() *gonats.Conn {
	return tc.Client.Connection()
}
