// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, designed
// to handle transient failures when dialing feed endpoints, publishing to NATS, and
// initializing components.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Dial(): 10 attempts, 500ms-30s delay (transport reconnection)
//   - Publish(): 3 attempts, 50ms-1s delay (per-message publishes)
//
// # Usage Examples
//
// Reconnecting a transport:
//
//	err := retry.Do(ctx, retry.Dial(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Retry with result:
//
//	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Error Classification
//
// Retries stop early for errors that repeating cannot fix:
//
//   - Errors classified fatal or invalid by the feedline errors package
//   - Errors wrapped with NonRetryable (for unclassified external errors)
//
// Transient classifications and plain errors use the full attempt budget.
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop
// retrying when the context is cancelled, either during operation execution or
// during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// thread-safe random source to avoid contention.
package retry
