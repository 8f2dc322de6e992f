package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Frame layout constants.
const (
	// TypeSize is the size of the message type field in bytes.
	TypeSize = 2

	// LengthSize is the size of the payload length field in bytes.
	LengthSize = 4

	// HeaderSize is the total frame header size.
	HeaderSize = TypeSize + LengthSize

	// MaxPayloadSize is the largest payload the length field can describe.
	MaxPayloadSize = math.MaxUint32
)

// Codec errors.
var (
	// ErrPayloadTooLarge indicates the payload does not fit the length field.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// Frame is one decoded wire unit.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// Size returns the encoded frame size including the header.
func (f Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// PutHeader writes the frame header for a payload of the given size into
// b, which must be at least HeaderSize long.
func PutHeader(b []byte, t MessageType, payloadSize uint64) error {
	if payloadSize > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, payloadSize, uint64(MaxPayloadSize))
	}
	binary.BigEndian.PutUint16(b[0:TypeSize], uint16(t))
	binary.BigEndian.PutUint32(b[TypeSize:HeaderSize], uint32(payloadSize))
	return nil
}

// ParseHeader decodes a frame header.
func ParseHeader(b []byte) (MessageType, uint32, error) {
	if len(b) < HeaderSize {
		return 0, 0, ErrFrameTruncated
	}
	t := MessageType(binary.BigEndian.Uint16(b[0:TypeSize]))
	n := binary.BigEndian.Uint32(b[TypeSize:HeaderSize])
	return t, n, nil
}

// EncodeFrame builds a complete frame around payload.
func EncodeFrame(t MessageType, payload []byte) ([]byte, error) {
	buf := make([]byte, HeaderSize+len(payload))
	if err := PutHeader(buf, t, uint64(len(payload))); err != nil {
		return nil, err
	}
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeMessage marshals msg and frames it.
func EncodeMessage(msg Message) ([]byte, error) {
	if size := uint64(msg.Size()); size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, size, uint64(MaxPayloadSize))
	}
	payload, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.MessageType(), err)
	}
	return EncodeFrame(msg.MessageType(), payload)
}

// ReadFrame reads one frame from r. Payloads longer than maxSize are
// rejected with ErrPayloadTooLarge; a maxSize of 0 means no limit.
// A clean end of stream before the header returns io.EOF.
func ReadFrame(r io.Reader, maxSize uint32) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrFrameTruncated
		}
		return Frame{}, fmt.Errorf("failed to read frame header: %w", err)
	}

	t, length, _ := ParseHeader(header[:])
	if maxSize > 0 && length > maxSize {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return Frame{}, ErrFrameTruncated
		}
		return Frame{}, fmt.Errorf("failed to read payload: %w", err)
	}

	return Frame{Type: t, Payload: payload}, nil
}
