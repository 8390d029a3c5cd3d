// Package testutil provides test doubles and fixtures for feedline
// tests.
//
// # Core Components
//
// Mock Implementations:
//
// MockTransport - Scriptable transport.Client:
//   - Runs the real state tracker, so transitions and failure reasons
//     match the wire transports
//   - Emit delivers events into the open session
//   - EndSession simulates a dead upstream, with or without an error
//   - FailConnects scripts connect failures for reconnect tests
//
// MockNATSClient - In-memory Publisher:
//   - Thread-safe for concurrent use
//   - Stores published messages per subject for verification
//   - Exact and ".>" tail wildcard subscriptions
//   - Scripted publish failures, flush and call counters
//   - No external NATS server required
//
// FeedServer - In-process feed endpoint over real HTTP:
//   - Serves the same scripted JSONL lines as SSE (/stream) and
//     WebSocket (/ws)
//   - Push fans runtime lines out to live connections
//   - Captures publish POSTs for outbound assertions
//   - Fault injection: rejected connects, dropped connections,
//     silenced pongs
//
// Test Data:
//
//   - SampleLines, UntypedLine, DuplicateKeyLine: well-formed records
//   - MalformedLines: records that must each produce one decode failure
//   - GenerateLines, OversizedLine: volume and overflow fixtures
//   - SampleEvents: decoded events for tests that skip the pipeline
//
// # Usage
//
// Driving a consumer without a network:
//
//	mock := testutil.NewMockTransport(nil)
//	consumer := stream.NewConsumer(cfg, stream.Deps{
//	    ClientFactory: func() (transport.Client, error) { return mock, nil },
//	})
//	// ... start consumer ...
//	mock.Emit(testutil.SampleEvents(3)...)
//	mock.EndSession(nil)
//
// Driving the real transports:
//
//	srv := testutil.NewFeedServer()
//	defer srv.Close()
//	srv.SetScript(testutil.SampleLines...)
//
//	client, err := sse.New(sse.Config{URL: srv.StreamURL()})
//	// ... connect and read ...
//	srv.Push(`{"id":"evt-live","type":"telemetry.heartbeat.v1"}`)
//
// Verifying the NATS bridge:
//
//	client := testutil.NewMockNATSClient()
//	// ... run the output against client ...
//	msgs := client.GetMessages("feed.events.telemetry.position.v1")
//	require.Len(t, msgs, 3)
//
// # Mock vs Real Dependencies
//
// MockNATSClient covers unit tests; integration tests that need broker
// semantics boot a real server with natsclient.NewTestClient and
// testcontainers. FeedServer sits in between: it is a real HTTP server
// with scripted content, so transport code paths are exercised for
// real while the feed side stays deterministic.
//
// Semantic fixtures beyond the generic feed records belong in the test
// package that needs them, not here.
package testutil
