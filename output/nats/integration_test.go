package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/feedline/message"
	"github.com/c360/feedline/natsclient"
)

func TestIntegration_BridgePublishesToNATS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t)

	received := make(chan *gonats.Msg, 8)
	sub, err := tc.NativeConnection().ChanSubscribe("feed.events.>", received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	source := make(chan message.Event, 8)
	out := NewOutput(DefaultConfig(), Deps{
		Publisher: tc.Client,
		Source:    source,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, out.Initialize())
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Stop(5 * time.Second) })

	evt := message.NewEvent(message.RecordType,
		map[string]any{"altitude": 1200.5},
		message.WithID("evt-int-1"), message.WithSequence(1),
		message.WithEmittedAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	source <- *evt

	select {
	case msg := <-received:
		assert.Equal(t, "feed.events.feed.record.v1", msg.Subject)
		assert.Equal(t, evt.Hash(), msg.Header.Get("Nats-Msg-Id"))
		assert.JSONEq(t,
			`{"id":"evt-int-1","type":"feed.record.v1","seq":1,"ts":"2026-01-02T03:04:05Z","altitude":1200.5}`,
			string(msg.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("bridged event not delivered")
	}

	require.Eventually(t, func() bool {
		return out.Stats().Published == 1
	}, time.Second, 10*time.Millisecond)
}
