package transport

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPingInterval is the default interval between keep-alive pings.
const DefaultPingInterval = 5 * time.Second

// Pinger sends one keep-alive ping.
// Implemented by ClientConn.
type Pinger interface {
	Ping() error
}

// ResolveFunc returns the connection to ping, or false once its owner is
// gone. It is called on every wake, so a replaced connection is picked up.
type ResolveFunc func() (Pinger, bool)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// Interval is the time between pings (default: 5s).
	Interval time.Duration

	// Clock drives the ping ticker. Defaults to the wall clock.
	Clock clock.Clock

	// OnPing is called after every ping attempt with its result. Optional.
	OnPing func(err error)
}

// KeepAlive pings a connection on a fixed interval. A failed ping is not
// retried early; the next interval's ping serves as the retry.
type KeepAlive struct {
	config  KeepAliveConfig
	resolve ResolveFunc

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *clock.Ticker
	stats   KeepAliveStats
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastError    error
	PingsSent    uint64
	PingsFailed  uint64
}

// NewKeepAlive creates a keep-alive loop that pings whatever resolve returns.
func NewKeepAlive(config KeepAliveConfig, resolve ResolveFunc) *KeepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultPingInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &KeepAlive{
		config:  config,
		resolve: resolve,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the keep-alive loop. The ticker is armed before Start
// returns. Calling Start again has no effect.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.running {
		return
	}
	ka.running = true
	ka.ticker = ka.config.Clock.Ticker(ka.config.Interval)

	go ka.loop(ctx, ka.ticker)
}

// Stop stops the loop. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	select {
	case <-ka.stopCh:
	default:
		close(ka.stopCh)
	}
}

// Done is closed when the loop has exited.
func (ka *KeepAlive) Done() <-chan struct{} {
	return ka.doneCh
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

func (ka *KeepAlive) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(ka.doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if !ka.tick() {
				return
			}
		}
	}
}

// tick resolves the connection and pings it once. It returns false when
// the connection can no longer be resolved.
func (ka *KeepAlive) tick() bool {
	p, ok := ka.resolve()
	if !ok {
		return false
	}

	err := p.Ping()

	ka.mu.Lock()
	ka.stats.LastPingTime = ka.config.Clock.Now()
	ka.stats.LastError = err
	ka.stats.PingsSent++
	if err != nil {
		ka.stats.PingsFailed++
	}
	ka.mu.Unlock()

	if ka.config.OnPing != nil {
		ka.config.OnPing(err)
	}
	return true
}
