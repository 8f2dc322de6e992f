package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func versionFrame(t *testing.T) []byte {
	t.Helper()
	v := &wire.Version{
		Version:   wire.PackVersion(1, 3, 0),
		Release:   "mumble-go v0.1.0",
		OS:        "mumble-go OS",
		OSVersion: "1.3.3.7",
	}
	frame, err := wire.EncodeMessage(v)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	return frame
}

func sessionEvents(t *testing.T) []log.Event {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	version := versionFrame(t)
	return []log.Event{
		{
			Timestamp: ts,
			Layer:     log.LayerSession,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: "IDLE",
				NewState: "CONNECTING",
			},
		},
		{
			Timestamp:    ts.Add(10 * time.Millisecond),
			ConnectionID: "0c1d2e3f-aaaa-bbbb-cccc-000000000001",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			RemoteAddr:   "127.0.0.1:64738",
			Frame:        &log.FrameEvent{Type: wire.MessageTypeVersion, Size: len(version), Data: version},
		},
		{
			Timestamp:    ts.Add(20 * time.Millisecond),
			ConnectionID: "0c1d2e3f-aaaa-bbbb-cccc-000000000001",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Username:     "alice",
			Frame:        &log.FrameEvent{Type: wire.MessageTypeAuthenticate, Size: 21, Redacted: true},
		},
		{
			Timestamp:    ts.Add(5 * time.Second),
			ConnectionID: "0c1d2e3f-aaaa-bbbb-cccc-000000000001",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryControl,
			Frame:        &log.FrameEvent{Type: wire.MessageTypePing, Size: 6, Data: []byte{0, 3, 0, 0, 0, 0}},
		},
		{
			Timestamp:    ts.Add(6 * time.Second),
			ConnectionID: "0c1d2e3f-aaaa-bbbb-cccc-000000000001",
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: "broken pipe", Context: "PING"},
		},
	}
}

func TestViewFormatsEvents(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"IDLE -> CONNECTING",
		"[conn:0c1d2e3f] OUT TRANSPORT VERSION",
		"Remote: 127.0.0.1:64738",
		"Version: 1.3.0",
		`Release: "mumble-go v0.1.0"`,
		"Data: (redacted)",
		"CTRL PING",
		"Data: 000300000000",
		"Message: broken pipe",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestViewFilterByMessageType(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	ping := wire.MessageTypePing
	var buf bytes.Buffer
	if err := RunView(path, log.Filter{MessageType: &ping}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "PING") {
		t.Error("expected PING frame in output")
	}
	if strings.Contains(output, "VERSION") || strings.Contains(output, "State") {
		t.Errorf("unexpected events in output:\n%s", output)
	}
}

func TestStatsSummary(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"SESSION:",
		"TRANSPORT:",
		"VERSION:",
		"AUTHENTICATE:",
		"Connections: 1",
		"User: alice",
		"Pings sent: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestFilterWritesMatchingEvents(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "filtered.mlog")

	var buf bytes.Buffer
	err := RunFilter(path, FilterOptions{Output: out, Layer: "transport", Direction: "out"}, &buf)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 3 events") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err != nil {
			break
		}
		if event.Layer != log.LayerTransport || event.Direction != log.DirectionOut {
			t.Errorf("unexpected event in output: %+v", event)
		}
		count++
	}
	if count != 3 {
		t.Errorf("read %d events, want 3", count)
	}
}

func TestBuildFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"bad layer", FilterOptions{Layer: "wire"}},
		{"bad direction", FilterOptions{Direction: "sideways"}},
		{"bad category", FilterOptions{Category: "snapshot"}},
		{"bad type", FilterOptions{MessageType: "textmessage"}},
		{"bad start", FilterOptions{TimeStart: "yesterday"}},
		{"bad end", FilterOptions{TimeEnd: "2026-13-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildFilter(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildFilterTimeRange(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))

	filter, err := BuildFilter(FilterOptions{
		TimeStart: "2026-03-02T09:00:01Z",
		TimeEnd:   "2026-03-02T09:00:06Z",
	})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "[conn:"); got != 1 {
		t.Errorf("got %d events, want 1 (the ping):\n%s", got, buf.String())
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := first["StateChange"]; !ok {
		t.Errorf("expected StateChange in first line: %s", lines[0])
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents(t))
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	output := string(data)

	if !strings.HasPrefix(output, "timestamp,connection_id,") {
		t.Errorf("missing header:\n%s", output)
	}
	if !strings.Contains(output, "state:CONNECTING") {
		t.Error("expected state row")
	}
	if !strings.Contains(output, "PING,6") {
		t.Error("expected ping row with size")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, nil)
	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}
