package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// MockNATSClient is an in-memory stand-in for the NATS client, good
// enough for exercising the publish path of the output bridge. It
// records every published message with its headers and delivers to
// registered subscriptions. Thread-safe.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][]*nats.Msg
	subscriptions map[string][]func(context.Context, []byte)
	publishErrs   []error
	publishCalls  int
	flushes       int
	closed        bool
}

// NewMockNATSClient creates an empty mock client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][]*nats.Msg),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// FailPublishes scripts errors for upcoming publish calls, consumed in
// order. A nil entry means that call succeeds.
func (c *MockNATSClient) FailPublishes(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErrs = append(c.publishErrs, errs...)
}

func (c *MockNATSClient) nextPublishErr() error {
	if len(c.publishErrs) == 0 {
		return nil
	}
	err := c.publishErrs[0]
	c.publishErrs = c.publishErrs[1:]
	return err
}

// Publish records a plain message on a subject.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	return c.PublishMsg(ctx, &nats.Msg{Subject: subject, Data: data})
}

// PublishMsg records a message, headers included, and fans it out to
// matching subscriptions.
func (c *MockNATSClient) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	c.mu.Lock()
	c.publishCalls++

	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mock nats client closed")
	}
	if err := c.nextPublishErr(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.messages[msg.Subject] = append(c.messages[msg.Subject], msg)

	var handlers []func(context.Context, []byte)
	for pattern, subs := range c.subscriptions {
		if subjectMatches(pattern, msg.Subject) {
			handlers = append(handlers, subs...)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, msg.Data)
	}
	return nil
}

// subjectMatches supports exact subjects and the trailing ">" wildcard.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".>"); ok {
		return strings.HasPrefix(subject, prefix+".")
	}
	return false
}

// Subscribe registers a handler for a subject pattern.
func (c *MockNATSClient) Subscribe(_ context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("mock nats client closed")
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// Flush counts flush calls and succeeds while the client is open.
func (c *MockNATSClient) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("mock nats client closed")
	}
	c.flushes++
	return nil
}

// Flushes returns how many times Flush was called.
func (c *MockNATSClient) Flushes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flushes
}

// PublishCalls returns the total publish attempts, failures included.
func (c *MockNATSClient) PublishCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publishCalls
}

// IsHealthy reports whether the mock is open.
func (c *MockNATSClient) IsHealthy() bool {
	return !c.IsClosed()
}

// Messages returns all messages recorded for a subject.
func (c *MockNATSClient) Messages(subject string) []*nats.Msg {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([]*nats.Msg, len(msgs))
	copy(result, msgs)
	return result
}

// MessageCount returns the number of messages recorded for a subject.
func (c *MockNATSClient) MessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects returns every subject that received at least one message.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subjects := make([]string, 0, len(c.messages))
	for subject := range c.messages {
		subjects = append(subjects, subject)
	}
	return subjects
}

// Clear drops recorded messages for one subject.
func (c *MockNATSClient) Clear(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, subject)
}

// ClearAll drops every recorded message.
func (c *MockNATSClient) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][]*nats.Msg)
}

// Close marks the client closed; further publishes fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (c *MockNATSClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// WaitForMessage polls until a message arrives on a subject and returns
// the latest one.
func WaitForMessage(t *testing.T, client *MockNATSClient, subject string, timeout time.Duration) *nats.Msg {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for message on subject %s", subject)
			return nil
		case <-ticker.C:
			messages := client.Messages(subject)
			if len(messages) > 0 {
				return messages[len(messages)-1]
			}
		}
	}
}

// WaitForMessageCount polls until a subject has at least count messages.
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			got := client.MessageCount(subject)
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, got)
			return
		case <-ticker.C:
			if client.MessageCount(subject) >= count {
				return
			}
		}
	}
}
