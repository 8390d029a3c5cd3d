// Package transport defines the client surface for feed transports and
// the shared machinery every implementation builds on: the connection
// state machine, the keepalive monitor, and the byte-to-event pipeline.
//
// # Overview
//
// A feed server pushes newline-delimited JSON records over a long-lived
// connection. The two implementations, sse.Client and websocket.Client,
// differ only in framing; both hand their raw receive bytes to a
// Pipeline, which accumulates lines, decodes records, and delivers
// message.Event values in arrival order. Parse problems never interrupt
// the stream: decode failures and overflow diagnostics go to side
// handlers instead of the event channel.
//
// # Connection Lifecycle
//
// Clients move through disconnected, connecting, connected,
// disconnecting, and failed states. Connect blocks until the stream is
// ready or the connect timeout elapses; a timed-out or broken
// connection lands in StateFailed with the reason available through
// Err. Clients never retry on their own. Reconnection policy belongs
// to the owner, which sees the receive channel close, inspects Err,
// and calls Connect again when it chooses.
//
// # Usage
//
//	client, err := sse.New(sse.Config{URL: streamURL})
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Disconnect()
//
//	for evt := range client.Receive() {
//		process(evt)
//	}
package transport
