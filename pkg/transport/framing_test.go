package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		msgType wire.MessageType
		payload []byte
	}{
		{
			name:    "empty ping",
			msgType: wire.MessageTypePing,
			payload: nil,
		},
		{
			name:    "small message",
			msgType: wire.MessageTypeVersion,
			payload: []byte("hello"),
		},
		{
			name:    "medium message",
			msgType: wire.MessageTypeAuthenticate,
			payload: bytes.Repeat([]byte("x"), 1000),
		},
		{
			name:    "binary data",
			msgType: wire.MessageTypeVersion,
			payload: []byte{0x00, 0xFF, 0x7F, 0x80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.msgType, tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			expectedSize := wire.HeaderSize + len(tt.payload)
			if buf.Len() != expectedSize {
				t.Errorf("frame size = %d, want %d", buf.Len(), expectedSize)
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}

			if got.Type != tt.msgType {
				t.Errorf("type = %v, want %v", got.Type, tt.msgType)
			}
			if !bytes.Equal(got.Payload, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got.Payload), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterHeaderBytes(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)

	if err := writer.WriteMessage(wire.MessageTypePing, &wire.Ping{}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	want := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame = % x, want % x", buf.Bytes(), want)
	}
}

type oversizedMessage struct{}

func (oversizedMessage) MessageType() wire.MessageType { return wire.MessageTypeVersion }
func (oversizedMessage) Size() int                     { return wire.MaxPayloadSize + 1 }
func (oversizedMessage) Marshal() ([]byte, error) {
	panic("Marshal must not be called for an oversized message")
}

func TestFrameWriterPayloadTooLarge(t *testing.T) {
	t.Run("Message", func(t *testing.T) {
		buf := new(bytes.Buffer)
		writer := NewFrameWriter(buf)

		err := writer.WriteMessage(wire.MessageTypeVersion, oversizedMessage{})

		var sendErr *SendError
		if !errors.As(err, &sendErr) || sendErr.Kind != KindPayloadTooLarge {
			t.Fatalf("expected SendError with KindPayloadTooLarge, got %v", err)
		}
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("wrote %d bytes, want 0", buf.Len())
		}
	})

	t.Run("LoweredLimit", func(t *testing.T) {
		buf := new(bytes.Buffer)
		writer := NewFrameWriterWithMaxSize(buf, 4)

		err := writer.WriteFrame(wire.MessageTypeVersion, []byte("hello"))
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("wrote %d bytes, want 0", buf.Len())
		}

		if err := writer.WriteFrame(wire.MessageTypeVersion, []byte("ok")); err != nil {
			t.Errorf("writer unusable after rejected frame: %v", err)
		}
	})
}

type panicWriter struct {
	calls int
}

func (w *panicWriter) Write(p []byte) (int, error) {
	w.calls++
	panic("stream corrupted")
}

func TestFrameWriterPoisonedAfterPanic(t *testing.T) {
	w := &panicWriter{}
	writer := NewFrameWriter(w)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		writer.WriteFrame(wire.MessageTypePing, nil)
	}()

	if !writer.Poisoned() {
		t.Fatal("writer should be poisoned")
	}

	err := writer.WriteMessage(wire.MessageTypePing, &wire.Ping{})
	if !errors.Is(err, ErrWriterPoisoned) {
		t.Fatalf("expected ErrWriterPoisoned, got %v", err)
	}

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Kind != KindPoisoned || !sendErr.Fatal() {
		t.Errorf("expected fatal SendError with KindPoisoned, got %v", err)
	}
	if w.calls != 1 {
		t.Errorf("underlying writer called %d times, want 1", w.calls)
	}
}

type shortWriter struct {
	n int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	return w.n, io.ErrShortWrite
}

func TestFrameWriterPoisonedAfterPartialWrite(t *testing.T) {
	writer := NewFrameWriter(&shortWriter{n: 3})

	err := writer.WriteFrame(wire.MessageTypeVersion, []byte("payload"))
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Kind != KindTransport {
		t.Fatalf("expected SendError with KindTransport, got %v", err)
	}

	err = writer.WriteFrame(wire.MessageTypePing, nil)
	if !errors.Is(err, ErrWriterPoisoned) {
		t.Errorf("expected ErrWriterPoisoned, got %v", err)
	}
}

func TestFrameWriterFailedWriteNotPoisoned(t *testing.T) {
	writer := NewFrameWriter(&shortWriter{n: 0})

	if err := writer.WriteFrame(wire.MessageTypePing, nil); err == nil {
		t.Fatal("expected write error")
	}
	if writer.Poisoned() {
		t.Error("writer should not be poisoned when nothing was written")
	}
}

func TestFrameWriterConcurrent(t *testing.T) {
	const (
		writers = 8
		frames  = 50
	)

	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{id}, 512)
			for j := 0; j < frames; j++ {
				if err := writer.WriteFrame(wire.MessageTypeVersion, payload); err != nil {
					t.Errorf("WriteFrame failed: %v", err)
					return
				}
			}
		}(byte(i + 1))
	}
	wg.Wait()

	reader := NewFrameReader(buf)
	count := 0
	for {
		f, err := reader.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed after %d frames: %v", count, err)
		}
		if len(f.Payload) != 512 {
			t.Fatalf("frame %d: payload size %d, want 512", count, len(f.Payload))
		}
		for _, b := range f.Payload {
			if b != f.Payload[0] {
				t.Fatalf("frame %d: interleaved payload", count)
			}
		}
		count++
	}

	if count != writers*frames {
		t.Errorf("read %d frames, want %d", count, writers*frames)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	t.Run("EOF", func(t *testing.T) {
		reader := NewFrameReader(bytes.NewReader(nil))
		if _, err := reader.ReadFrame(); err != io.EOF {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		reader := NewFrameReader(bytes.NewReader([]byte{0x00, 0x03, 0x00}))
		if _, err := reader.ReadFrame(); !errors.Is(err, wire.ErrFrameTruncated) {
			t.Errorf("expected ErrFrameTruncated, got %v", err)
		}
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x0A, 'a', 'b'}
		reader := NewFrameReader(bytes.NewReader(data))
		if _, err := reader.ReadFrame(); !errors.Is(err, wire.ErrFrameTruncated) {
			t.Errorf("expected ErrFrameTruncated, got %v", err)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00}
		reader := NewFrameReaderWithMaxSize(bytes.NewReader(data), 16)
		if _, err := reader.ReadFrame(); !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got %v", err)
		}
	})
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(event log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) Events() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

func TestFramerLogs(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &captureLogger{}

	framer := NewFramer(buf)
	framer.SetLogger(logger, "conn-1")

	if err := framer.WriteMessage(wire.MessageTypeVersion, &wire.Version{Release: "r"}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := framer.WriteMessage(wire.MessageTypeAuthenticate, &wire.Authenticate{Username: "alice", Password: "secret", Opus: true}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	for _, e := range events {
		if e.ConnectionID != "conn-1" {
			t.Errorf("ConnectionID = %q, want conn-1", e.ConnectionID)
		}
		if e.Category != log.CategoryMessage || e.Frame == nil {
			t.Errorf("expected message event with frame, got %+v", e)
		}
	}

	if events[0].Direction != log.DirectionOut || events[2].Direction != log.DirectionIn {
		t.Error("unexpected event directions")
	}

	auth := events[1].Frame
	if auth.Type != wire.MessageTypeAuthenticate || !auth.Redacted || auth.Data != nil {
		t.Errorf("authenticate frame not redacted: %+v", auth)
	}
	if bytes.Contains(events[0].Frame.Data, []byte("secret")) {
		t.Error("version frame leaked password")
	}
}

func TestFramerLogsTruncatedData(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &captureLogger{}

	writer := NewFrameWriter(buf)
	writer.SetLogger(logger, "conn-2")

	payload := bytes.Repeat([]byte("z"), MaxLogFrameDataSize*2)
	if err := writer.WriteFrame(wire.MessageTypeVersion, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	f := events[0].Frame
	if !f.Truncated || len(f.Data) != MaxLogFrameDataSize {
		t.Errorf("expected truncated data of %d bytes, got %d (truncated=%v)", MaxLogFrameDataSize, len(f.Data), f.Truncated)
	}
	if f.Size != wire.HeaderSize+len(payload) {
		t.Errorf("Size = %d, want %d", f.Size, wire.HeaderSize+len(payload))
	}
}
