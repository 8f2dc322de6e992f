package client

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/mumble-protocol/mumble-go/pkg/connection"
	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/transport"
	"github.com/mumble-protocol/mumble-go/pkg/version"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// Conn is one control-channel connection as driven by a Session.
// Implemented by *transport.ClientConn.
type Conn interface {
	ID() string
	VersionExchange(v *wire.Version) error
	Authenticate(username, password string) error
	Ping() error
	Close() error
}

// Connector opens encrypted connections.
type Connector interface {
	Connect(ctx context.Context, host string, port uint16) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, host string, port uint16) (Conn, error)

// Connect calls f(ctx, host, port).
func (f ConnectorFunc) Connect(ctx context.Context, host string, port uint16) (Conn, error) {
	return f(ctx, host, port)
}

// transportConnector opens connections with a transport.Client.
type transportConnector struct {
	client *transport.Client
}

func (c transportConnector) Connect(ctx context.Context, host string, port uint16) (Conn, error) {
	conn, err := c.client.Connect(ctx, host, port)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config configures a Session.
type Config struct {
	// Transport configures connections opened by the default connector.
	Transport transport.ClientConfig

	// Connector replaces the default transport connector.
	Connector Connector

	// Retry wraps the startup sequence of New and Reconnect. Nil means a
	// single attempt. A policy without a Retryable predicate retries only
	// when the peer closed the session.
	Retry *connection.RetryPolicy

	// PingInterval is the keep-alive interval (default: 5s).
	PingInterval time.Duration

	// Clock drives the keep-alive and retry delays. Defaults to the wall clock.
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// ProtocolLogger receives session state and frame events. Optional.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() Config {
	return Config{
		PingInterval: transport.DefaultPingInterval,
	}
}

// Credentials identify the user. They are used to build one Authenticate
// message and are not kept on the Session.
type Credentials struct {
	Username string
	Password string
}

// Session is one authenticated control-channel session. Its connection may
// be replaced by Reconnect; the Session itself stays the same.
type Session struct {
	id        string
	slot      *connSlot
	state     atomic.Uint32
	connector Connector
	retry     *connection.RetryPolicy
	version   wire.Version

	logger   *slog.Logger
	protoLog log.Logger

	reconnectMu sync.Mutex
}

// connSlot is the part of a Session reachable from its cleanup. It must
// not point back at the Session.
type connSlot struct {
	current   atomic.Pointer[connRef]
	keepAlive *transport.KeepAlive
}

type connRef struct {
	conn Conn
}

func (sl *connSlot) release() {
	if sl.keepAlive != nil {
		sl.keepAlive.Stop()
	}
	if ref := sl.current.Swap(nil); ref != nil {
		ref.conn.Close()
	}
}

// New connects to host:port and authenticates with the default config.
func New(ctx context.Context, host string, port uint16, username, password string) (*Session, error) {
	return NewWithConfig(ctx, DefaultConfig(), host, port, username, password)
}

// NewWithConfig connects to host:port, exchanges versions and
// authenticates. On success exactly one keep-alive loop is running for the
// returned Session. On failure no Session is returned and any opened
// connection is closed.
//
// ctx bounds the startup sequence only.
func NewWithConfig(ctx context.Context, config Config, host string, port uint16, username, password string) (*Session, error) {
	if config.PingInterval <= 0 {
		config.PingInterval = transport.DefaultPingInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Connector == nil {
		tc := config.Transport
		if tc.Logger == nil {
			tc.Logger = config.Logger
		}
		if tc.ProtocolLogger == nil {
			tc.ProtocolLogger = config.ProtocolLogger
		}
		config.Connector = transportConnector{client: transport.NewClient(tc)}
	}

	s := &Session{
		id:        uuid.New().String(),
		slot:      &connSlot{},
		connector: config.Connector,
		version:   version.Descriptor(),
		protoLog:  config.ProtocolLogger,
	}
	s.logger = config.Logger.With(slog.String("session_id", s.id))

	if config.Retry != nil {
		retry := *config.Retry
		if retry.Retryable == nil {
			retry.Retryable = transport.IsPeerClosed
		}
		if retry.Clock == nil {
			retry.Clock = config.Clock
		}
		s.retry = &retry
	}

	conn, err := s.start(ctx, host, port, Credentials{Username: username, Password: password})
	if err != nil {
		s.setState(connection.StateIdle, err.Error())
		return nil, err
	}
	s.slot.current.Store(&connRef{conn: conn})
	s.setState(connection.StateReady, "")

	s.slot.keepAlive = transport.NewKeepAlive(transport.KeepAliveConfig{
		Interval: config.PingInterval,
		Clock:    config.Clock,
		OnPing:   s.pingResult(),
	}, keepAliveTarget(weak.Make(s)))
	s.slot.keepAlive.Start(context.Background())

	runtime.AddCleanup(s, func(sl *connSlot) { sl.release() }, s.slot)

	s.logger.Info("session ready",
		slog.String("addr", fmt.Sprintf("%s:%d", host, port)),
		slog.String("user", username),
		slog.String("conn_id", conn.ID()),
	)
	return s, nil
}

// keepAliveTarget resolves the Session's current connection, or reports
// false once the Session has been collected.
func keepAliveTarget(wp weak.Pointer[Session]) transport.ResolveFunc {
	return func() (transport.Pinger, bool) {
		s := wp.Value()
		if s == nil {
			return nil, false
		}
		ref := s.slot.current.Load()
		if ref == nil {
			return nil, false
		}
		return ref.conn, true
	}
}

// pingResult logs keep-alive failures without holding the Session.
func (s *Session) pingResult() func(error) {
	logger := s.logger
	return func(err error) {
		if err != nil {
			logger.Debug("keep-alive ping failed", slog.Any("error", err))
		}
	}
}

// Reconnect runs the startup sequence on a fresh connection and, once it
// has authenticated, makes it the Session's connection and closes the old
// one. If any step fails the old connection stays in place and usable.
func (s *Session) Reconnect(ctx context.Context, host string, port uint16, username, password string) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	conn, err := s.start(ctx, host, port, Credentials{Username: username, Password: password})
	if err != nil {
		s.setState(connection.StateReady, "reconnect failed: "+err.Error())
		return err
	}

	old := s.slot.current.Swap(&connRef{conn: conn})
	s.setState(connection.StateReady, "reconnected")

	if old != nil {
		old.conn.Close()
	}

	s.logger.Info("session reconnected",
		slog.String("addr", fmt.Sprintf("%s:%d", host, port)),
		slog.String("conn_id", conn.ID()),
	)
	return nil
}

// State returns the current session state.
func (s *Session) State() connection.State {
	return connection.State(s.state.Load())
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// ConnID returns the identifier of the current connection.
func (s *Session) ConnID() string {
	if ref := s.slot.current.Load(); ref != nil {
		return ref.conn.ID()
	}
	return ""
}

// KeepAliveStats returns the keep-alive statistics.
func (s *Session) KeepAliveStats() transport.KeepAliveStats {
	return s.slot.keepAlive.Stats()
}

// start runs the startup sequence, under the retry policy if one is set.
func (s *Session) start(ctx context.Context, host string, port uint16, creds Credentials) (Conn, error) {
	if s.retry == nil {
		return s.startOnce(ctx, host, port, creds)
	}

	var conn Conn
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		c, err := s.startOnce(ctx, host, port, creds)
		if err != nil {
			s.logger.Debug("startup attempt failed", slog.Any("error", err))
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// startOnce connects, exchanges versions and authenticates, stopping at
// the first failure. The new connection is closed on failure.
func (s *Session) startOnce(ctx context.Context, host string, port uint16, creds Credentials) (Conn, error) {
	s.setState(connection.StateConnecting, "")

	conn, err := s.connector.Connect(ctx, host, port)
	if err != nil {
		return nil, err
	}

	s.setState(connection.StateAuthenticating, "")

	v := s.version
	if err := conn.VersionExchange(&v); err != nil {
		conn.Close()
		return nil, fmt.Errorf("version exchange: %w", err)
	}

	if err := conn.Authenticate(creds.Username, creds.Password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	return conn, nil
}

func (s *Session) setState(state connection.State, reason string) {
	old := connection.State(s.state.Swap(uint32(state)))
	if old == state {
		return
	}

	s.logger.Debug("session state changed",
		slog.String("from", old.String()),
		slog.String("to", state.String()),
	)

	if s.protoLog != nil {
		s.protoLog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: s.ConnID(),
			Layer:        log.LayerSession,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: old.String(),
				NewState: state.String(),
				Reason:   reason,
			},
		})
	}
}
