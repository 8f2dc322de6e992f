package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fakePinger struct {
	pings chan struct{}
	err   error
}

func newFakePinger(err error) *fakePinger {
	return &fakePinger{pings: make(chan struct{}, 16), err: err}
}

func (p *fakePinger) Ping() error {
	p.pings <- struct{}{}
	return p.err
}

func waitPing(t *testing.T, p *fakePinger) {
	t.Helper()
	select {
	case <-p.pings:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ping")
	}
}

func expectNoPing(t *testing.T, p *fakePinger) {
	t.Helper()
	select {
	case <-p.pings:
		t.Fatal("unexpected ping")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitDone(t *testing.T, ka *KeepAlive) {
	t.Helper()
	select {
	case <-ka.Done():
	case <-time.After(time.Second):
		t.Fatal("keep-alive loop did not exit")
	}
}

func TestKeepAliveDefaults(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, nil)
	if ka.config.Interval != DefaultPingInterval {
		t.Errorf("Interval = %v, want %v", ka.config.Interval, DefaultPingInterval)
	}
	if ka.config.Clock == nil {
		t.Error("Clock should default to the wall clock")
	}
}

func TestKeepAlivePingsEveryInterval(t *testing.T) {
	mock := clock.NewMock()
	pinger := newFakePinger(nil)

	ka := NewKeepAlive(KeepAliveConfig{Clock: mock}, func() (Pinger, bool) {
		return pinger, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	mock.Add(4 * time.Second)
	expectNoPing(t, pinger)

	mock.Add(time.Second)
	waitPing(t, pinger)

	for i := 0; i < 2; i++ {
		mock.Add(DefaultPingInterval)
		waitPing(t, pinger)
	}

	ka.Stop()
	waitDone(t, ka)

	stats := ka.Stats()
	if stats.PingsSent != 3 {
		t.Errorf("PingsSent = %d, want 3", stats.PingsSent)
	}
	if stats.PingsFailed != 0 {
		t.Errorf("PingsFailed = %d, want 0", stats.PingsFailed)
	}
	if !stats.LastPingTime.Equal(mock.Now()) {
		t.Errorf("LastPingTime = %v, want %v", stats.LastPingTime, mock.Now())
	}
}

func TestKeepAliveDiscardsPingErrors(t *testing.T) {
	mock := clock.NewMock()
	pingErr := errors.New("broken pipe")
	pinger := newFakePinger(pingErr)

	var reported atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{
		Clock: mock,
		OnPing: func(err error) {
			if errors.Is(err, pingErr) {
				reported.Add(1)
			}
		},
	}, func() (Pinger, bool) { return pinger, true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	for i := 0; i < 3; i++ {
		mock.Add(DefaultPingInterval)
		waitPing(t, pinger)
	}

	ka.Stop()
	waitDone(t, ka)

	stats := ka.Stats()
	if stats.PingsFailed != 3 {
		t.Errorf("PingsFailed = %d, want 3", stats.PingsFailed)
	}
	if !errors.Is(stats.LastError, pingErr) {
		t.Errorf("LastError = %v, want %v", stats.LastError, pingErr)
	}
	if reported.Load() != 3 {
		t.Errorf("OnPing saw %d errors, want 3", reported.Load())
	}
}

func TestKeepAliveExitsWhenUnresolved(t *testing.T) {
	mock := clock.NewMock()
	pinger := newFakePinger(nil)

	var alive atomic.Bool
	alive.Store(true)
	ka := NewKeepAlive(KeepAliveConfig{Clock: mock}, func() (Pinger, bool) {
		if !alive.Load() {
			return nil, false
		}
		return pinger, true
	})

	ka.Start(context.Background())

	mock.Add(DefaultPingInterval)
	waitPing(t, pinger)

	alive.Store(false)
	mock.Add(DefaultPingInterval)
	waitDone(t, ka)

	if got := ka.Stats().PingsSent; got != 1 {
		t.Errorf("PingsSent = %d, want 1", got)
	}
}

func TestKeepAliveFollowsReplacement(t *testing.T) {
	mock := clock.NewMock()
	first := newFakePinger(nil)
	second := newFakePinger(nil)

	var current atomic.Pointer[fakePinger]
	current.Store(first)
	ka := NewKeepAlive(KeepAliveConfig{Clock: mock}, func() (Pinger, bool) {
		return current.Load(), true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	mock.Add(DefaultPingInterval)
	waitPing(t, first)

	current.Store(second)
	mock.Add(DefaultPingInterval)
	waitPing(t, second)
	expectNoPing(t, first)
}

func TestKeepAliveStartStop(t *testing.T) {
	mock := clock.NewMock()
	ka := NewKeepAlive(KeepAliveConfig{Clock: mock}, func() (Pinger, bool) {
		return newFakePinger(nil), true
	})

	ctx := context.Background()
	ka.Start(ctx)
	ka.Start(ctx)

	ka.Stop()
	ka.Stop()
	waitDone(t, ka)
}

func TestKeepAliveContextCancel(t *testing.T) {
	mock := clock.NewMock()
	pinger := newFakePinger(nil)
	ka := NewKeepAlive(KeepAliveConfig{Clock: mock}, func() (Pinger, bool) {
		return pinger, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	ka.Start(ctx)
	cancel()
	waitDone(t, ka)

	if got := ka.Stats().PingsSent; got != 0 {
		t.Errorf("PingsSent = %d, want 0", got)
	}
}
