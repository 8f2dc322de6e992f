// Package mock provides a mock Mumble server for testing the client.
package mock

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/transport"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

const handshakeTimeout = 5 * time.Second

// ServerConfig configures a mock server.
type ServerConfig struct {
	// Certificate is the server certificate. Nil generates a self-signed one.
	Certificate *tls.Certificate

	// MinVersion and MaxVersion bound the negotiated TLS version. Zero
	// values leave the Go defaults in place.
	MinVersion uint16
	MaxVersion uint16

	// RejectFirst closes the first RejectFirst connections before the
	// TLS handshake.
	RejectFirst int

	// CloseAfter closes each connection once it has received this many
	// frames. Zero means never.
	CloseAfter int

	// OnFrame is called for every received frame. Optional.
	OnFrame func(conn *ServerConn, f wire.Frame)
}

// Received is one frame recorded by the server.
type Received struct {
	// Conn is the index of the accepting connection, starting at 0.
	Conn int

	// Frame is the decoded frame.
	Frame wire.Frame
}

// Server is a mock Mumble server. It accepts TLS connections and records
// every frame its clients send.
type Server struct {
	config   ServerConfig
	cert     tls.Certificate
	listener net.Listener

	mu       sync.Mutex
	conns    []*ServerConn
	accepted int
	received chan Received

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewServer starts a mock server on 127.0.0.1 with an ephemeral port.
func NewServer(config ServerConfig) (*Server, error) {
	var cert tls.Certificate
	if config.Certificate != nil {
		cert = *config.Certificate
	} else {
		var err error
		if cert, err = GenerateCertificate(); err != nil {
			return nil, err
		}
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   config.MinVersion,
		MaxVersion:   config.MaxVersion,
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		cert:     cert,
		listener: listener,
		received: make(chan Received, 1024),
		closed:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop(tlsConfig)

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() uint16 {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.ParseUint(port, 10, 16)
	return uint16(p)
}

// CertPool returns a pool trusting the server certificate.
func (s *Server) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(s.cert.Leaf)
	return pool
}

// Accepted returns the number of TCP connections accepted so far,
// including rejected ones.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Connections returns the connections that completed the TLS handshake.
func (s *Server) Connections() []*ServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ServerConn(nil), s.conns...)
}

// WaitFrames waits until n more frames have been received, in arrival order.
func (s *Server) WaitFrames(n int, timeout time.Duration) ([]Received, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	frames := make([]Received, 0, n)
	for len(frames) < n {
		select {
		case r := <-s.received:
			frames = append(frames, r)
		case <-timer.C:
			return frames, ErrTimeout
		case <-s.closed:
			return frames, ErrServerClosed
		}
	}
	return frames, nil
}

// Close stops the server and closes every connection.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.listener.Close()

		for _, c := range s.Connections() {
			c.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *Server) acceptLoop(tlsConfig *tls.Config) {
	defer s.wg.Done()

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.accepted++
		reject := s.accepted <= s.config.RejectFirst
		s.mu.Unlock()

		if reject {
			raw.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(tls.Server(raw, tlsConfig))
	}
}

func (s *Server) serve(conn *tls.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.Handshake(); err != nil {
		return
	}
	conn.SetDeadline(time.Time{})

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return
	default:
	}
	sc := &ServerConn{
		index:  len(s.conns),
		conn:   conn,
		framer: transport.NewFramer(conn),
	}
	s.conns = append(s.conns, sc)
	s.mu.Unlock()

	for {
		f, err := sc.framer.ReadFrame()
		if err != nil {
			return
		}

		count := sc.record(f)
		if s.config.OnFrame != nil {
			s.config.OnFrame(sc, f)
		}

		select {
		case s.received <- Received{Conn: sc.index, Frame: f}:
		default:
		}

		if s.config.CloseAfter > 0 && count >= s.config.CloseAfter {
			return
		}
	}
}

// ServerConn is one accepted client connection.
type ServerConn struct {
	index  int
	conn   *tls.Conn
	framer *transport.Framer

	mu     sync.Mutex
	frames []wire.Frame
}

// Index returns the connection's position in accept order.
func (c *ServerConn) Index() int {
	return c.index
}

// Frames returns the frames received on this connection.
func (c *ServerConn) Frames() []wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Frame(nil), c.frames...)
}

// Send writes a message to the client.
func (c *ServerConn) Send(msg wire.Message) error {
	return c.framer.WriteMessage(msg.MessageType(), msg)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *ServerConn) record(f wire.Frame) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return len(c.frames)
}
