package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepaliveConfigDefaults(t *testing.T) {
	config := DefaultKeepaliveConfig()

	if config.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", config.PingInterval, DefaultPingInterval)
	}
	if config.PongTimeout != DefaultPongTimeout {
		t.Errorf("PongTimeout = %v, want %v", config.PongTimeout, DefaultPongTimeout)
	}
	if config.MaxMissedPongs != DefaultMaxMissedPongs {
		t.Errorf("MaxMissedPongs = %d, want %d", config.MaxMissedPongs, DefaultMaxMissedPongs)
	}

	// 30s * 3 + 5s with the defaults.
	if delay := config.DetectionDelay(); delay != 95*time.Second {
		t.Errorf("DetectionDelay = %v, want 95s", delay)
	}
}

func TestKeepalivePingsOnInterval(t *testing.T) {
	var pingCount atomic.Int32
	var lastSeq atomic.Uint64

	config := KeepaliveConfig{
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    20 * time.Millisecond,
		MaxMissedPongs: 3,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error {
			pingCount.Add(1)
			lastSeq.Store(seq)
			return nil
		},
		func() {
			t.Error("timeout should not fire while pongs flow")
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	time.Sleep(60 * time.Millisecond)
	ka.PongReceived(lastSeq.Load())

	time.Sleep(60 * time.Millisecond)
	ka.PongReceived(lastSeq.Load())

	ka.Stop()

	if pingCount.Load() < 2 {
		t.Errorf("expected at least 2 pings, got %d", pingCount.Load())
	}
}

func TestKeepaliveTimeoutAfterMissedPongs(t *testing.T) {
	var timeoutCalled atomic.Bool

	config := KeepaliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error { return nil },
		func() { timeoutCalled.Store(true) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Never answer. Timeout lands around 2*20ms + slack.
	time.Sleep(150 * time.Millisecond)

	if !timeoutCalled.Load() {
		t.Fatal("expected timeout after missed pongs")
	}
	if ka.Running() {
		t.Error("monitor should stop itself after timeout")
	}
}

func TestKeepalivePongResetsMissCounter(t *testing.T) {
	config := KeepaliveConfig{
		PingInterval:   30 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 3,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error { return nil },
		func() { t.Error("timeout should not fire") },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Let one ping go unanswered, then answer the outstanding one.
	time.Sleep(50 * time.Millisecond)
	ka.PongReceived(ka.Stats().Sequence)

	time.Sleep(20 * time.Millisecond)
	if missed := ka.Stats().Missed; missed != 0 {
		t.Errorf("Missed = %d after pong, want 0", missed)
	}

	ka.Stop()
}

func TestKeepaliveStalePongIgnored(t *testing.T) {
	var timeoutCalled atomic.Bool

	config := KeepaliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error { return nil },
		func() { timeoutCalled.Store(true) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)

	// Pongs for sequences never pinged must not keep the connection
	// alive.
	for i := 0; i < 10; i++ {
		ka.PongReceived(9999 + uint64(i))
		time.Sleep(15 * time.Millisecond)
	}

	if !timeoutCalled.Load() {
		t.Fatal("stale pongs should not prevent the timeout")
	}
}

func TestKeepaliveStartStop(t *testing.T) {
	ka := NewKeepalive(DefaultKeepaliveConfig(),
		func(seq uint64) error { return nil },
		func() {},
	)

	if ka.Running() {
		t.Error("should not run before Start")
	}

	ctx := context.Background()
	ka.Start(ctx)
	if !ka.Running() {
		t.Error("should run after Start")
	}

	// Second Start is a no-op.
	ka.Start(ctx)
	if !ka.Running() {
		t.Error("should still run")
	}

	ka.Stop()
	time.Sleep(10 * time.Millisecond)
	if ka.Running() {
		t.Error("should not run after Stop")
	}

	// Second Stop is a no-op.
	ka.Stop()
}

func TestKeepaliveContextCancelStopsPings(t *testing.T) {
	var pingCount atomic.Int32

	config := KeepaliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 5,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error {
			pingCount.Add(1)
			return nil
		},
		func() {},
	)

	ctx, cancel := context.WithCancel(context.Background())
	ka.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	before := pingCount.Load()

	cancel()
	time.Sleep(50 * time.Millisecond)

	if after := pingCount.Load(); after > before+1 {
		t.Errorf("pings continued after cancel: before=%d, after=%d", before, after)
	}
}

func TestKeepaliveStats(t *testing.T) {
	config := KeepaliveConfig{
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    20 * time.Millisecond,
		MaxMissedPongs: 3,
	}

	ka := NewKeepalive(config,
		func(seq uint64) error { return nil },
		func() {},
	)

	stats := ka.Stats()
	if stats.Sequence != 0 {
		t.Errorf("initial Sequence = %d, want 0", stats.Sequence)
	}
	if stats.Missed != 0 {
		t.Errorf("initial Missed = %d, want 0", stats.Missed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	stats = ka.Stats()
	if stats.Sequence == 0 {
		t.Error("Sequence should advance after the first ping")
	}
	if stats.LastPing.IsZero() {
		t.Error("LastPing should be set")
	}

	ka.Stop()
}

func TestKeepaliveZeroConfigTakesDefaults(t *testing.T) {
	ka := NewKeepalive(KeepaliveConfig{},
		func(seq uint64) error { return nil },
		func() {},
	)

	if ka.config.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want default", ka.config.PingInterval)
	}
	if ka.config.PongTimeout != DefaultPongTimeout {
		t.Errorf("PongTimeout = %v, want default", ka.config.PongTimeout)
	}
	if ka.config.MaxMissedPongs != DefaultMaxMissedPongs {
		t.Errorf("MaxMissedPongs = %d, want default", ka.config.MaxMissedPongs)
	}
}
