// Package commands implements the mumble-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// FilterOptions specifies filtering criteria as given on the command line.
type FilterOptions struct {
	Output      string
	ConnID      string
	TimeStart   string
	TimeEnd     string
	Layer       string
	Direction   string
	Category    string
	MessageType string
}

// BuildFilter converts command-line options to a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{ConnectionID: opts.ConnID}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if opts.MessageType != "" {
		mt, err := ParseMessageTypeFlag(opts.MessageType)
		if err != nil {
			return filter, err
		}
		filter.MessageType = &mt
	}
	return filter, nil
}

// RunFilter writes the events of path matching opts to opts.Output and
// reports the count on w.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	filter, err := BuildFilter(opts)
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, opts.Output)
	return nil
}

// ParseLayerFlag parses a layer name.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("unknown layer: %s (use: transport, session)", s)
	}
}

// ParseDirectionFlag parses a direction name.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s (use: in, out)", s)
	}
}

// ParseCategoryFlag parses a category name.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s (use: message, control, state, error)", s)
	}
}

// ParseMessageTypeFlag parses a frame message type name.
func ParseMessageTypeFlag(s string) (wire.MessageType, error) {
	switch strings.ToLower(s) {
	case "version":
		return wire.MessageTypeVersion, nil
	case "udptunnel", "udp_tunnel":
		return wire.MessageTypeUDPTunnel, nil
	case "authenticate", "auth":
		return wire.MessageTypeAuthenticate, nil
	case "ping":
		return wire.MessageTypePing, nil
	default:
		return 0, fmt.Errorf("unknown message type: %s (use: version, authenticate, ping)", s)
	}
}
