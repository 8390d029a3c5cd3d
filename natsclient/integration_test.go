package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Connect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t)

	assert.True(t, tc.IsReady())
	assert.Equal(t, StatusConnected, tc.Client.Status())

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "feed.test", func(_ context.Context, data []byte) {
		received <- data
	}))

	require.NoError(t, tc.Client.Publish(ctx, "feed.test", []byte(`{"type":"feed.record.v1"}`)))
	require.NoError(t, tc.Client.Flush())

	select {
	case data := <-received:
		assert.JSONEq(t, `{"type":"feed.record.v1"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestIntegration_PublishMsgCarriesHeaders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan *nats.Msg, 1)
	sub, err := tc.NativeConnection().ChanSubscribe("feed.headers", received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg := &nats.Msg{
		Subject: "feed.headers",
		Data:    []byte("payload"),
		Header:  nats.Header{"Nats-Msg-Id": []string{"evt-1"}},
	}
	require.NoError(t, tc.Client.PublishMsg(ctx, msg))
	require.NoError(t, tc.Client.Flush())

	select {
	case got := <-received:
		assert.Equal(t, "evt-1", got.Header.Get("Nats-Msg-Id"))
		assert.Equal(t, []byte("payload"), got.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestIntegration_HealthMonitoring(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t)

	healthChanges := make(chan bool, 8)
	client, err := NewClient(tc.URL,
		WithHealthInterval(50*time.Millisecond),
		WithHealthChangeCallback(func(healthy bool) {
			healthChanges <- healthy
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Close(context.Background())

	select {
	case healthy := <-healthChanges:
		assert.True(t, healthy, "first health report after connect should be healthy")
	case <-time.After(2 * time.Second):
		t.Fatal("no health change reported")
	}

	// Let the RTT loop run a few rounds. The status must stay connected
	// against a live server.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StatusConnected, client.Status())
}
