// Package interactive provides the interactive command-line interface
// for mumble-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mumble-protocol/mumble-go/pkg/client"
	"github.com/mumble-protocol/mumble-go/pkg/connection"
	"github.com/mumble-protocol/mumble-go/pkg/discovery"
	"github.com/mumble-protocol/mumble-go/pkg/transport"
)

// reconnectTimeout bounds one interactive reconnect.
const reconnectTimeout = 30 * time.Second

// Target provides the server and credentials the session uses. It lets the
// shell reconnect without depending on the main package's config.
type Target interface {
	// Server returns the current server.
	Server() (host string, port uint16)

	// SetServer records a new server after a successful reconnect.
	SetServer(host string, port uint16)

	// Credentials returns the credentials for the next Authenticate.
	Credentials() client.Credentials
}

// Session is the part of *client.Session the shell drives.
type Session interface {
	ID() string
	ConnID() string
	State() connection.State
	KeepAliveStats() transport.KeepAliveStats
	Reconnect(ctx context.Context, host string, port uint16, username, password string) error
}

// Shell handles interactive mode for mumble-client.
type Shell struct {
	browser discovery.Browser
	target  Target
	rl      *readline.Instance
	out     io.Writer
}

// New creates the shell and takes over the terminal.
func New(browser discovery.Browser, target Target) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mumble> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{browser: browser, target: target, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, end of input or ctx is cancelled.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc, session Session) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Execute(ctx, session, line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, session Session, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "st":
		s.cmdStatus(session)
	case "reconnect", "rc":
		s.cmdReconnect(ctx, session, args)
	case "servers", "discover":
		s.cmdServers(ctx)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `
Commands:
  status                   - Show session state and keep-alive statistics
  reconnect [host [port]]  - Reconnect, optionally to another server
  servers                  - List servers found with mDNS
  help                     - Show this help
  quit                     - Disconnect and exit
`)
}

func (s *Shell) cmdStatus(session Session) {
	host, port := s.target.Server()
	stats := session.KeepAliveStats()

	fmt.Fprintf(s.out, "Session:    %s\n", session.ID())
	fmt.Fprintf(s.out, "State:      %s\n", session.State())
	fmt.Fprintf(s.out, "Server:     %s:%d\n", host, port)
	fmt.Fprintf(s.out, "Connection: %s\n", session.ConnID())
	fmt.Fprintf(s.out, "Pings:      %d sent, %d failed\n", stats.PingsSent, stats.PingsFailed)
	if !stats.LastPingTime.IsZero() {
		fmt.Fprintf(s.out, "Last ping:  %s ago\n", time.Since(stats.LastPingTime).Round(time.Second))
	}
	if stats.LastError != nil {
		fmt.Fprintf(s.out, "Last error: %v\n", stats.LastError)
	}
}

func (s *Shell) cmdReconnect(ctx context.Context, session Session, args []string) {
	host, port := s.target.Server()
	if len(args) > 0 {
		host = args[0]
	}
	if len(args) > 1 {
		p, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || p == 0 {
			fmt.Fprintf(s.out, "Invalid port: %s\n", args[1])
			return
		}
		port = uint16(p)
	}

	ctx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	defer cancel()

	creds := s.target.Credentials()
	fmt.Fprintf(s.out, "Reconnecting to %s:%d...\n", host, port)
	if err := session.Reconnect(ctx, host, port, creds.Username, creds.Password); err != nil {
		fmt.Fprintf(s.out, "Reconnect failed, keeping the current connection: %v\n", err)
		return
	}
	s.target.SetServer(host, port)
	fmt.Fprintf(s.out, "Reconnected (connection %s)\n", session.ConnID())
}

func (s *Shell) cmdServers(ctx context.Context) {
	if s.browser == nil {
		fmt.Fprintln(s.out, "Discovery is not available")
		return
	}
	fmt.Fprintln(s.out, "Browsing...")
	servers, err := s.browser.List(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Discovery failed: %v\n", err)
		return
	}
	if len(servers) == 0 {
		fmt.Fprintln(s.out, "No servers found")
		return
	}
	for _, srv := range servers {
		fmt.Fprintf(s.out, "  %-24s %s:%d\n", srv.Instance, srv.DialHost(), srv.Port)
	}
}
