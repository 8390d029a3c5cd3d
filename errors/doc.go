// Package errors provides standardized error handling patterns for feedline components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// streaming ingestion pipelines: Transient (temporary, retryable), Invalid
// (bad input, non-retryable), and Fatal (unrecoverable, stop processing).
//
// This classification lets components make informed decisions about retries,
// shedding, and failure recovery without hardcoded error string matching.
//
// # Error Classification
//
// Errors are classified based on their type or content:
//
//   - Transient: Network timeouts, connection issues, queue capacity (retry recommended)
//   - Invalid: Malformed records, oversized lines, bad configuration input (do not retry)
//   - Fatal: Resource exhaustion, missing configuration, unrecoverable states (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	if queueLen >= maxPending {
//	    return errors.ErrQueueFull
//	}
//
// Wrap errors with context for debugging:
//
//	if err := client.dial(ctx); err != nil {
//	    return errors.WrapTransient(err, "Client", "Connect", "dial")
//	}
//
// Check classification for retry logic:
//
//	if err := op(); err != nil {
//	    if errors.IsTransient(err) {
//	        // retry with backoff (see pkg/retry)
//	    } else if errors.IsFatal(err) {
//	        // stop processing, escalate
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and operational monitoring across
// the pipeline. Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For bad-input errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() preserves the original error's classification.
//
// # Feedline Taxonomy
//
// The pipeline's failure modes map onto the classes as follows:
//
//   - Line buffer overflow under the reset policy: Invalid (record lost, stream continues)
//   - Line buffer overflow under the fail-fast policy: Fatal (stream must terminate)
//   - Per-record decode failure: Invalid (record dropped, stream continues)
//   - Connect/handshake/keepalive failure: Transient (caller retries with backoff)
//   - Queue at capacity: Transient (room frees up after a dequeue)
//
// Context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient so context-based timeouts are handled like network timeouts.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access. ClassifiedError is safe to
// share across goroutines after creation.
package errors
