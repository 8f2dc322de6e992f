package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// ErrorKind classifies transport failures.
type ErrorKind uint8

const (
	// KindTransport is an I/O failure on the raw or encrypted stream.
	KindTransport ErrorKind = iota

	// KindTLS is a TLS handshake or crypto failure.
	KindTLS

	// KindHandshakeRetriesExceeded means every handshake attempt was interrupted.
	KindHandshakeRetriesExceeded

	// KindPayloadTooLarge means a payload does not fit the frame length field.
	KindPayloadTooLarge

	// KindPoisoned means a previous writer failed while holding the frame lock.
	KindPoisoned
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "TRANSPORT"
	case KindTLS:
		return "TLS"
	case KindHandshakeRetriesExceeded:
		return "HANDSHAKE_RETRIES_EXCEEDED"
	case KindPayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case KindPoisoned:
		return "POISONED"
	default:
		return "UNKNOWN"
	}
}

// Transport errors.
var (
	// ErrHandshakeRetriesExceeded is matched by a ConnectionError whose
	// handshake attempts were all interrupted.
	ErrHandshakeRetriesExceeded = errors.New("handshake retries exceeded")

	// ErrHandshakeInterrupted marks a transient handshake interruption.
	// Handshakes failing with it (or with a timeout) are retried.
	ErrHandshakeInterrupted = errors.New("handshake interrupted")

	// ErrPayloadTooLarge is matched by a SendError for oversized payloads.
	ErrPayloadTooLarge = wire.ErrPayloadTooLarge

	// ErrWriterPoisoned is returned by every send after a frame write
	// panicked or left a partial frame on the stream. The connection
	// must be discarded.
	ErrWriterPoisoned = errors.New("frame writer poisoned")

	// ErrConnectionClosed indicates the connection was closed locally.
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionError is returned when a connection cannot be established.
type ConnectionError struct {
	Kind ErrorKind

	// Addr is the address being connected to.
	Addr string

	// Attempts is the number of handshake attempts made.
	Attempts int

	// Err is the underlying cause.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Kind == KindHandshakeRetriesExceeded {
		return fmt.Sprintf("connect %s: %s after %d attempts: %v", e.Addr, ErrHandshakeRetriesExceeded, e.Attempts, e.Err)
	}
	return fmt.Sprintf("connect %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches ErrHandshakeRetriesExceeded for the retry exhaustion kind.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrHandshakeRetriesExceeded && e.Kind == KindHandshakeRetriesExceeded
}

// SendError is returned when a frame cannot be written.
type SendError struct {
	Kind ErrorKind

	// Type is the message type being sent.
	Type wire.MessageType

	// Err is the underlying cause.
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %s: %v", e.Type, e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Fatal reports whether the connection that produced the error is unusable.
func (e *SendError) Fatal() bool {
	if e.Kind == KindPoisoned {
		return true
	}
	return e.Kind == KindTransport && (IsPeerClosed(e.Err) || errors.Is(e.Err, ErrConnectionClosed))
}

// IsPeerClosed reports whether err shows the peer closed the session,
// as opposed to other transport failures. This is broader than an orderly
// close_notify: a reset (ECONNRESET) or a locally closed stream
// (net.ErrClosed) also counts, so reconnect policies built on this
// predicate retry on those too. Timeouts do not count.
func IsPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// isInterrupted reports whether a handshake error is transient.
func isInterrupted(err error) bool {
	if errors.Is(err, ErrHandshakeInterrupted) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
