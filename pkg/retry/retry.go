// Package retry provides exponential backoff retry logic for feedline operations
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	cerrors "github.com/c360/feedline/errors"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried.
// Use this for errors that carry no classification of their own, such as
// raw errors from third-party clients.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// shouldStop reports whether an error rules out further attempts.
// Fatal and invalid classifications stop immediately: retrying a bad
// config or a malformed payload only repeats the failure.
func shouldStop(err error) bool {
	return IsNonRetryable(err) || cerrors.IsFatal(err) || cerrors.IsInvalid(err)
}

// Config provides retry configuration
type Config struct {
	// MaxAttempts caps the number of attempts (0 = no retry, just run once).
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	// Multiplier is the backoff multiplier (typically 2.0).
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	// AddJitter adds randomness to prevent thundering herd.
	AddJitter bool `json:"add_jitter,omitempty" yaml:"add_jitter,omitempty"`
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Do executes fn with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	// Validate configuration
	if cfg.InitialDelay < 0 {
		return errors.New("retry: InitialDelay cannot be negative")
	}
	if cfg.MaxDelay < 0 {
		return errors.New("retry: MaxDelay cannot be negative")
	}
	if cfg.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}
	// Prevent overflow with extremely large multipliers
	if cfg.Multiplier > 1000 {
		cfg.Multiplier = 1000
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1 // At least try once
	}

	// Set defaults if not specified
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}

	// Additional validation after defaults
	if cfg.MaxDelay > 0 && cfg.MaxDelay < cfg.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Try the operation
		err := fn()
		if err == nil {
			return nil // Success!
		}
		lastErr = err

		// Fatal, invalid, or explicitly marked errors fail immediately
		if shouldStop(err) {
			return err
		}

		// Check if context is cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		// Calculate sleep duration with optional jitter
		sleepDuration := delay
		if cfg.AddJitter {
			// Add up to 25% jitter using thread-safe random
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
			sleepDuration = delay + jitter
		}

		// Sleep with context cancellation support
		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
			// Timer fired, channel drained, no need to stop
		}

		// Calculate next delay with overflow protection
		nextDelay := float64(delay) * cfg.Multiplier
		// Check for overflow or exceeding MaxDelay
		if nextDelay > float64(cfg.MaxDelay) || nextDelay > float64(time.Duration(1<<63-1)) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(nextDelay)
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

// Dial returns a config for reconnecting transports. Attempts are spread
// out far enough that a flapping upstream is not hammered.
func Dial() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Publish returns a config for per-message publish retries. Delays stay
// short so a single slow publish does not stall the pipeline.
func Publish() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}
