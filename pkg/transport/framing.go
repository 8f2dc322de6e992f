package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// Framing constants.
const (
	// DefaultMaxReadSize is the default limit for received payloads (8 MB).
	DefaultMaxReadSize = 8 * 1024 * 1024

	// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
	// Larger frames are truncated in log events to avoid excessive memory usage.
	MaxLogFrameDataSize = 4096
)

// FrameWriter writes type+length prefixed frames to an underlying writer.
// Frames are written whole under one lock, so concurrent senders never
// interleave bytes.
type FrameWriter struct {
	w              io.Writer
	maxPayloadSize uint64

	mu       sync.Mutex
	poisoned bool

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		w:              w,
		maxPayloadSize: wire.MaxPayloadSize,
	}
}

// NewFrameWriterWithMaxSize creates a frame writer with a lower payload limit.
// Values above wire.MaxPayloadSize are clamped.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint64) *FrameWriter {
	fw := NewFrameWriter(w)
	if maxSize < fw.maxPayloadSize {
		fw.maxPayloadSize = maxSize
	}
	return fw
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteMessage marshals msg and writes it as a frame of type t.
// Marshalling happens before the frame lock is taken.
func (fw *FrameWriter) WriteMessage(t wire.MessageType, msg wire.Message) error {
	if size := uint64(msg.Size()); size > fw.maxPayloadSize {
		return &SendError{
			Kind: KindPayloadTooLarge,
			Type: t,
			Err:  fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, size, fw.maxPayloadSize),
		}
	}

	payload, err := msg.Marshal()
	if err != nil {
		return &SendError{Kind: KindTransport, Type: t, Err: fmt.Errorf("marshal failed: %w", err)}
	}
	return fw.WriteFrame(t, payload)
}

// WriteFrame writes one frame. Thread-safe: can be called from multiple goroutines.
//
// A panic or a partial write while the lock is held poisons the writer;
// every later call returns ErrWriterPoisoned without touching the stream.
func (fw *FrameWriter) WriteFrame(t wire.MessageType, payload []byte) error {
	if uint64(len(payload)) > fw.maxPayloadSize {
		return &SendError{
			Kind: KindPayloadTooLarge,
			Type: t,
			Err:  fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), fw.maxPayloadSize),
		}
	}

	frame, err := wire.EncodeFrame(t, payload)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, ErrPayloadTooLarge) {
			kind = KindPayloadTooLarge
		}
		return &SendError{Kind: kind, Type: t, Err: err}
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.poisoned {
		return &SendError{Kind: KindPoisoned, Type: t, Err: ErrWriterPoisoned}
	}

	defer func() {
		if r := recover(); r != nil {
			fw.poisoned = true
			panic(r)
		}
	}()

	n, err := fw.w.Write(frame)
	if err != nil {
		if n > 0 && n < len(frame) {
			// Stream is now misaligned.
			fw.poisoned = true
		}
		return &SendError{Kind: KindTransport, Type: t, Err: err}
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.connID, log.DirectionOut, t, frame))
	}

	return nil
}

// Poisoned reports whether the writer refuses further frames.
func (fw *FrameWriter) Poisoned() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.poisoned
}

// FrameReader reads frames from an underlying reader.
type FrameReader struct {
	r              io.Reader
	maxMessageSize uint32

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:              r,
		maxMessageSize: DefaultMaxReadSize,
	}
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom max size.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{
		r:              r,
		maxMessageSize: maxSize,
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame reads one frame.
func (fr *FrameReader) ReadFrame() (wire.Frame, error) {
	f, err := wire.ReadFrame(fr.r, fr.maxMessageSize)
	if err != nil {
		return wire.Frame{}, err
	}

	if fr.logger != nil {
		raw, _ := wire.EncodeFrame(f.Type, f.Payload)
		fr.logger.Log(makeFrameEvent(fr.connID, log.DirectionIn, f.Type, raw))
	}

	return f, nil
}

// makeFrameEvent creates a log event for a frame.
// Authenticate frames carry the password and are logged without data.
func makeFrameEvent(connID string, direction log.Direction, t wire.MessageType, frame []byte) log.Event {
	data := frame
	truncated := false
	redacted := false

	switch {
	case t == wire.MessageTypeAuthenticate:
		data = nil
		redacted = true
	case len(frame) > MaxLogFrameDataSize:
		data = frame[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Type:      t,
			Size:      len(frame),
			Data:      data,
			Truncated: truncated,
			Redacted:  redacted,
		},
	}
}
