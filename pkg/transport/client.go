package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// MaxHandshakeAttempts is the number of TLS handshake attempts made when
// the handshake is interrupted. Retrying only helps with a handshakeConn
// that does not cache its first failure; *tls.Conn caches the error and
// closes the stream once a handshake deadline fires.
const MaxHandshakeAttempts = 3

// handshakeConn is a stream that still has to complete its TLS handshake.
// Implemented by *tls.Conn.
type handshakeConn interface {
	net.Conn
	HandshakeContext(ctx context.Context) error
	ConnectionState() tls.ConnectionState
}

// ClientConfig configures a control-channel client.
type ClientConfig struct {
	// TLSConfig contains TLS settings. Nil means defaults.
	TLSConfig *TLSConfig

	// ConnectTimeout is the TCP connect timeout (default: 30s).
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds a single handshake attempt (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write (0 = no timeout).
	WriteTimeout time.Duration

	// MaxReadSize is the largest payload accepted by ReadFrame (default: 8 MB).
	MaxReadSize uint32

	// ProtocolLogger receives frame and state events. Optional.
	ProtocolLogger log.Logger

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Test hooks.
	dial      func(ctx context.Context, network, address string) (net.Conn, error)
	handshake func(conn net.Conn, config *tls.Config) handshakeConn
}

// Client opens control-channel connections.
type Client struct {
	config ClientConfig
}

// NewClient creates a new client.
func NewClient(config ClientConfig) *Client {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.MaxReadSize == 0 {
		config.MaxReadSize = DefaultMaxReadSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.dial == nil {
		dialer := &net.Dialer{}
		config.dial = dialer.DialContext
	}
	if config.handshake == nil {
		config.handshake = func(conn net.Conn, config *tls.Config) handshakeConn {
			return tls.Client(conn, config)
		}
	}
	return &Client{config: config}
}

// Connect dials host:port with a default client.
func Connect(ctx context.Context, host string, port uint16) (*ClientConn, error) {
	return NewClient(ClientConfig{}).Connect(ctx, host, port)
}

// Connect opens a TCP stream to host:port and upgrades it to TLS.
// Errors are *ConnectionError.
func (c *Client) Connect(ctx context.Context, host string, port uint16) (*ClientConn, error) {
	address := net.JoinHostPort(host, strconv.Itoa(int(port)))

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	raw, err := c.config.dial(dialCtx, "tcp", address)
	cancel()
	if err != nil {
		return nil, &ConnectionError{Kind: KindTransport, Addr: address, Err: err}
	}

	tlsConn := c.config.handshake(raw, NewClientTLSConfig(c.config.TLSConfig, host))
	if err := c.handshake(ctx, tlsConn, address); err != nil {
		tlsConn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	connID := uuid.New().String()

	c.config.Logger.Debug("control channel established",
		slog.String("conn_id", connID),
		slog.String("addr", address),
		slog.String("tls", TLSVersionName(state.Version)),
		slog.String("cipher", tls.CipherSuiteName(state.CipherSuite)),
	)

	var out io.Writer = tlsConn
	if c.config.WriteTimeout > 0 {
		out = &deadlineWriter{conn: tlsConn, timeout: c.config.WriteTimeout}
	}

	conn := &ClientConn{
		conn:     tlsConn,
		id:       connID,
		writer:   NewFrameWriter(out),
		reader:   NewFrameReaderWithMaxSize(tlsConn, c.config.MaxReadSize),
		tlsState: state,
		logger:   c.config.ProtocolLogger,
		closeCh:  make(chan struct{}),
	}
	if conn.logger != nil {
		conn.writer.SetLogger(conn.logger, connID)
		conn.reader.SetLogger(conn.logger, connID)
		conn.logState("", "CONNECTED", address)
	}

	return conn, nil
}

// handshake runs the TLS handshake on the same in-progress connection,
// retrying interrupted attempts up to MaxHandshakeAttempts in total.
// Hard failures are returned immediately.
func (c *Client) handshake(ctx context.Context, conn handshakeConn, address string) error {
	var lastErr error

	for attempt := 1; attempt <= MaxHandshakeAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
		err := conn.HandshakeContext(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ConnectionError{Kind: KindTransport, Addr: address, Attempts: attempt, Err: ctxErr}
		}
		if !isInterrupted(err) {
			return &ConnectionError{Kind: KindTLS, Addr: address, Attempts: attempt, Err: err}
		}

		lastErr = err
		c.config.Logger.Debug("tls handshake interrupted",
			slog.String("addr", address),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	return &ConnectionError{
		Kind:     KindHandshakeRetriesExceeded,
		Addr:     address,
		Attempts: MaxHandshakeAttempts,
		Err:      lastErr,
	}
}

// deadlineWriter arms a fresh write deadline before every write. The
// FrameWriter calls Write once per frame while holding its lock, so each
// frame gets the full timeout regardless of how long it queued.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	return w.conn.Write(p)
}

// ClientConn is one encrypted control-channel connection.
// It exclusively owns its TLS stream.
type ClientConn struct {
	conn     handshakeConn
	id       string
	writer   *FrameWriter
	reader   *FrameReader
	tlsState tls.ConnectionState
	logger   log.Logger

	closeCh   chan struct{}
	closeOnce sync.Once
	readMu    sync.Mutex
}

// ID returns the connection's unique identifier.
func (c *ClientConn) ID() string {
	return c.id
}

// TLSState returns the TLS connection state.
func (c *ClientConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendMessage frames msg as type t and writes it. Errors are *SendError.
func (c *ClientConn) SendMessage(t wire.MessageType, msg wire.Message) error {
	select {
	case <-c.closeCh:
		return &SendError{Kind: KindTransport, Type: t, Err: ErrConnectionClosed}
	default:
	}

	err := c.writer.WriteMessage(t, msg)
	if err != nil && c.logger != nil {
		c.logError(t, err)
	}
	return err
}

// VersionExchange sends the client's version descriptor.
func (c *ClientConn) VersionExchange(v *wire.Version) error {
	return c.SendMessage(wire.MessageTypeVersion, v)
}

// Authenticate sends the user's credentials, declaring Opus support.
func (c *ClientConn) Authenticate(username, password string) error {
	return c.SendMessage(wire.MessageTypeAuthenticate, &wire.Authenticate{
		Username: username,
		Password: password,
		Opus:     true,
	})
}

// Ping sends an empty keep-alive.
func (c *ClientConn) Ping() error {
	err := c.SendMessage(wire.MessageTypePing, &wire.Ping{})
	if c.logger != nil && err == nil {
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
		})
	}
	return err
}

// ReadFrame reads the next frame from the server, waiting at most timeout
// (0 = no timeout).
func (c *ClientConn) ReadFrame(timeout time.Duration) (wire.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return wire.Frame{}, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.reader.ReadFrame()
}

// Close closes the connection. Safe to call more than once.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		if c.logger != nil {
			c.logState("CONNECTED", "CLOSED", "")
		}
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *ClientConn) logState(oldState, newState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *ClientConn) logError(t wire.MessageType, err error) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: "send " + t.String(),
		},
	})
}
