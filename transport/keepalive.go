package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keepalive defaults. With these values a dead peer is detected within
// PingInterval*MaxMissedPongs + PongTimeout of the last pong.
const (
	// DefaultPingInterval is the spacing between keepalive pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is how long a ping may go unanswered before it
	// counts as missed.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is how many consecutive misses mark the
	// connection dead.
	DefaultMaxMissedPongs = 3
)

// KeepaliveConfig configures liveness monitoring on a connection.
type KeepaliveConfig struct {
	PingInterval   time.Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	PongTimeout    time.Duration `json:"pong_timeout,omitempty" yaml:"pong_timeout,omitempty"`
	MaxMissedPongs int           `json:"max_missed_pongs,omitempty" yaml:"max_missed_pongs,omitempty"`
}

// DefaultKeepaliveConfig returns the default keepalive configuration.
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the worst-case time between a peer dying silently
// and this configuration noticing.
func (c KeepaliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// Keepalive sends sequenced pings on an interval and counts unanswered
// ones. When MaxMissedPongs consecutive pings go unanswered it fires
// the timeout callback once and stops; the owning client decides what
// tearing down the connection looks like.
//
// Pongs are correlated by sequence number, so a stale pong from an
// earlier ping never masks a stalled connection.
type Keepalive struct {
	config KeepaliveConfig

	sendPing  func(seq uint64) error
	onTimeout func()

	sequence atomic.Uint64

	mu       sync.Mutex
	missed   int
	lastPing time.Time
	lastPong time.Time
	pending  uint64
	waiting  bool
	running  bool
	stop     chan struct{}

	pongs chan uint64
}

// NewKeepalive creates a keepalive monitor. Zero config fields take
// their defaults. sendPing is called from the monitor goroutine;
// onTimeout is called at most once per Start.
func NewKeepalive(config KeepaliveConfig, sendPing func(seq uint64) error, onTimeout func()) *Keepalive {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &Keepalive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stop:      make(chan struct{}),
		pongs:     make(chan uint64, 1),
	}
}

// Start begins monitoring. A second Start while running is a no-op.
func (k *Keepalive) Start(ctx context.Context) {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.stop = make(chan struct{})
	k.mu.Unlock()

	go k.loop(ctx)
}

// Stop ends monitoring. Safe to call multiple times.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return
	}
	k.running = false
	close(k.stop)
}

// PongReceived records a pong from the peer. Called from the owning
// client's read path.
func (k *Keepalive) PongReceived(seq uint64) {
	select {
	case k.pongs <- seq:
	default:
	}
}

// Running reports whether the monitor loop is active.
func (k *Keepalive) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}

// Stats returns a snapshot of the monitor's counters.
func (k *Keepalive) Stats() KeepaliveStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return KeepaliveStats{
		LastPing: k.lastPing,
		LastPong: k.lastPong,
		Missed:   k.missed,
		Sequence: k.sequence.Load(),
	}
}

// KeepaliveStats is a snapshot of keepalive activity.
type KeepaliveStats struct {
	LastPing time.Time
	LastPong time.Time
	Missed   int
	Sequence uint64
}

func (k *Keepalive) loop(ctx context.Context) {
	ticker := time.NewTicker(k.config.PingInterval)
	defer ticker.Stop()

	k.ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stop:
			return
		case <-ticker.C:
			if dead := k.tick(); dead {
				k.Stop()
				if k.onTimeout != nil {
					k.onTimeout()
				}
				return
			}
		case seq := <-k.pongs:
			k.pong(seq)
		}
	}
}

// ping sends the next sequenced ping. A failed send leaves the ping
// pending so the next tick counts it as missed; the read loop usually
// notices the dead connection first.
func (k *Keepalive) ping() {
	seq := k.sequence.Add(1)

	k.mu.Lock()
	k.lastPing = time.Now()
	k.pending = seq
	k.waiting = true
	k.mu.Unlock()

	k.sendPing(seq)
}

// tick checks whether the outstanding ping timed out and reports
// whether the connection should be considered dead. When it is not,
// the next ping goes out.
func (k *Keepalive) tick() bool {
	k.mu.Lock()
	if k.waiting && time.Since(k.lastPing) >= k.config.PongTimeout {
		k.missed++
		k.waiting = false

		if k.missed >= k.config.MaxMissedPongs {
			k.mu.Unlock()
			return true
		}
	}
	k.mu.Unlock()

	k.ping()
	return false
}

// pong matches a received pong against the outstanding ping. A match
// resets the miss counter; pongs for earlier sequences are ignored.
func (k *Keepalive) pong(seq uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.lastPong = time.Now()
	if k.waiting && seq == k.pending {
		k.waiting = false
		k.missed = 0
	}
}
