package transport

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// ControlConnection is a client-side control-channel connection.
// Implemented by ClientConn.
type ControlConnection interface {
	// ID returns the connection's unique identifier.
	ID() string

	// TLSState returns the TLS connection state.
	TLSState() tls.ConnectionState

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// SendMessage frames and writes a message.
	SendMessage(t wire.MessageType, msg wire.Message) error

	// VersionExchange sends the version descriptor.
	VersionExchange(v *wire.Version) error

	// Authenticate sends the user's credentials.
	Authenticate(username, password string) error

	// Ping sends a keep-alive.
	Ping() error

	// ReadFrame receives a frame with the specified timeout.
	ReadFrame(timeout time.Duration) (wire.Frame, error)

	// Close closes the connection.
	Close() error
}

// FrameWriteReader provides framed I/O.
type FrameWriteReader interface {
	// WriteFrame writes one frame.
	WriteFrame(t wire.MessageType, payload []byte) error

	// ReadFrame reads one frame.
	ReadFrame() (wire.Frame, error)
}

// Framer combines frame reading and writing over one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a new framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// Compile-time interface satisfaction checks.
var (
	_ ControlConnection = (*ClientConn)(nil)
	_ Pinger            = (*ClientConn)(nil)
	_ FrameWriteReader  = (*Framer)(nil)
)
