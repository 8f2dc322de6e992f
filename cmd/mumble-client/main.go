// Command mumble-client connects to a Mumble server's control channel,
// authenticates and keeps the session alive.
//
// Usage:
//
//	mumble-client [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-host string          Server host name or address
//	-port int             Server port (default: 64738)
//	-user string          Username
//	-password string      Password (also MUMBLE_PASSWORD, or prompted)
//	-prompt-password      Prompt for a password when none is configured (default: true)
//	-cert string          Client certificate (PEM)
//	-key string           Client certificate key (PEM)
//	-verify               Verify the server certificate
//	-retry int            Startup attempts when the server closes the session (default: 1)
//	-ping-interval        Keep-alive interval (default: 5s)
//	-discover             List servers found with mDNS and exit, or connect to the only one
//	-discover-instance    Connect to the mDNS-advertised server with this name
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-log-level string     Log level: debug, info, warn, error (default: info)
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Connect and stay connected until interrupted
//	mumble-client -host voice.example.org -user alice
//
//	# Connect to a LAN server by its advertised name
//	mumble-client -discover-instance "Team Server" -user alice -interactive
//
//	# Record all control traffic for inspection with mumble-log
//	mumble-client -config client.yaml -protocol-log client.mlog
//
// Interactive Commands:
//
//	status                  Show session state and keep-alive statistics
//	reconnect [host [port]] Reconnect, optionally to another server
//	servers                 List servers found with mDNS
//	help                    Show commands
//	quit                    Disconnect and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mumble-protocol/mumble-go/cmd/mumble-client/interactive"
	"github.com/mumble-protocol/mumble-go/pkg/client"
	"github.com/mumble-protocol/mumble-go/pkg/connection"
	"github.com/mumble-protocol/mumble-go/pkg/discovery"
	protolog "github.com/mumble-protocol/mumble-go/pkg/log"
	"github.com/mumble-protocol/mumble-go/pkg/transport"
	"github.com/mumble-protocol/mumble-go/pkg/version"
)

// Config holds the client configuration.
type Config struct {
	ConfigFile string

	Host           string
	Port           uint
	Username       string
	Password       string
	PromptPassword bool
	CertFile       string
	KeyFile        string
	VerifyPeer     bool

	Retry        int
	PingInterval time.Duration

	Discover         bool
	DiscoverInstance string

	ProtocolLog string
	LogLevel    string
	Interactive bool
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&config.Host, "host", "", "Server host name or address")
	flag.UintVar(&config.Port, "port", DefaultPort, "Server port")
	flag.StringVar(&config.Username, "user", "", "Username")
	flag.StringVar(&config.Password, "password", "", "Password (also "+PasswordEnv+", or prompted)")
	flag.BoolVar(&config.PromptPassword, "prompt-password", true, "Prompt for a password when none is configured")
	flag.StringVar(&config.CertFile, "cert", "", "Client certificate (PEM)")
	flag.StringVar(&config.KeyFile, "key", "", "Client certificate key (PEM)")
	flag.BoolVar(&config.VerifyPeer, "verify", false, "Verify the server certificate")
	flag.IntVar(&config.Retry, "retry", 1, "Startup attempts when the server closes the session")
	flag.DurationVar(&config.PingInterval, "ping-interval", transport.DefaultPingInterval, "Keep-alive interval")
	flag.BoolVar(&config.Discover, "discover", false, "List servers found with mDNS")
	flag.StringVar(&config.DiscoverInstance, "discover-instance", "", "Connect to the mDNS-advertised server with this name")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if config.ConfigFile != "" {
		fc, err := LoadFileConfig(config.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		config.Merge(fc, set)
	}

	setupLogging(config.LogLevel, os.Stderr)

	log.Println("mumble-client starting...")
	log.Printf("  Client:   %s (protocol %s)", version.Release(), version.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	if config.Discover && config.Host == "" && config.DiscoverInstance == "" {
		srv, err := pickServer(ctx, browser)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		if srv == nil {
			return
		}
		config.Host, config.Port = srv.DialHost(), uint(srv.Port)
	}
	if config.DiscoverInstance != "" {
		srv, err := browser.Lookup(ctx, config.DiscoverInstance)
		if err != nil {
			log.Fatalf("Failed to find server %q: %v", config.DiscoverInstance, err)
		}
		log.Printf("  Found:    %s", srv)
		config.Host, config.Port = srv.DialHost(), uint(srv.Port)
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}
	err := resolvePassword(&config, defaultPasswordSource())
	if err != nil {
		log.Fatalf("%v", err)
	}

	// The shell owns the terminal from here on; log through it.
	var shell *interactive.Shell
	out := io.Writer(os.Stderr)
	if config.Interactive {
		shell, err = interactive.New(browser, &sessionTarget{config: &config})
		if err != nil {
			log.Fatalf("Failed to create interactive shell: %v", err)
		}
		out = shell.Stderr()
	}
	logger := setupLogging(config.LogLevel, out)

	sessionConfig, closeLog, err := buildSessionConfig(&config, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeLog()

	log.Printf("  Server:   %s:%d", config.Host, config.Port)
	log.Printf("  User:     %s", config.Username)
	if !config.VerifyPeer {
		log.Println("  TLS:      server certificate NOT verified")
	}

	session, err := client.NewWithConfig(ctx, sessionConfig, config.Host, uint16(config.Port), config.Username, config.Password)
	if err != nil {
		var connErr *transport.ConnectionError
		if errors.As(err, &connErr) {
			log.Fatalf("Failed to connect (%s): %v", connErr.Kind, err)
		}
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("Session ready (state %s)", session.State())

	if shell != nil {
		go shell.Run(ctx, cancel, session)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	stats := session.KeepAliveStats()
	log.Printf("Shutting down... (%d pings sent, %d failed)", stats.PingsSent, stats.PingsFailed)
}

// buildSessionConfig turns the command-line configuration into a session
// configuration. The returned func closes the protocol log.
func buildSessionConfig(c *Config, logger *slog.Logger) (client.Config, func(), error) {
	cfg := client.DefaultConfig()
	cfg.Logger = logger
	cfg.PingInterval = c.PingInterval

	cert, err := c.LoadCertificate()
	if err != nil {
		return cfg, nil, err
	}
	cfg.Transport.TLSConfig = &transport.TLSConfig{
		Certificate: cert,
		VerifyPeer:  c.VerifyPeer,
	}

	if c.Retry > 1 {
		policy := connection.DefaultRetryPolicy(transport.IsPeerClosed)
		policy.MaxAttempts = c.Retry
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			log.Printf("Attempt %d failed (%v), retrying in %s", attempt, err, delay)
		}
		cfg.Retry = &policy
	}

	closeLog := func() {}
	if c.ProtocolLog != "" {
		fileLogger, err := protolog.NewFileLogger(c.ProtocolLog)
		if err != nil {
			return cfg, nil, fmt.Errorf("failed to create protocol log: %w", err)
		}
		log.Printf("  Protocol: logging to %s", c.ProtocolLog)
		closeLog = func() {
			if n := fileLogger.Dropped(); n > 0 {
				log.Printf("Protocol log dropped %d events", n)
			}
			fileLogger.Close()
		}

		var pl protolog.Logger = fileLogger
		if strings.ToLower(c.LogLevel) == "debug" {
			pl = protolog.NewMultiLogger(fileLogger, protolog.NewSlogAdapter(logger))
		}
		cfg.ProtocolLogger = pl
	}

	return cfg, closeLog, nil
}

// pickServer lists mDNS-advertised servers. It returns the server to use
// when exactly one is found, and nil after printing the list otherwise.
func pickServer(ctx context.Context, browser discovery.Browser) (*discovery.Server, error) {
	log.Printf("Browsing for %s servers...", discovery.ServiceType)
	servers, err := browser.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(servers) {
	case 0:
		return nil, discovery.ErrNotFound
	case 1:
		log.Printf("  Found:    %s", servers[0])
		return servers[0], nil
	}
	for _, s := range servers {
		fmt.Println(s)
	}
	fmt.Println("Several servers found; choose one with -discover-instance.")
	return nil, nil
}

// sessionTarget gives the interactive shell the current server and
// credentials. Reconnecting to another server updates it.
type sessionTarget struct {
	config *Config
}

func (t *sessionTarget) Server() (string, uint16) {
	return t.config.Host, uint16(t.config.Port)
}

func (t *sessionTarget) SetServer(host string, port uint16) {
	t.config.Host, t.config.Port = host, uint(port)
}

func (t *sessionTarget) Credentials() client.Credentials {
	return client.Credentials{Username: t.config.Username, Password: t.config.Password}
}

// setupLogging configures the standard logger and returns the operational
// logger handed to the session. Both write to w.
func setupLogging(level string, w io.Writer) *slog.Logger {
	log.SetOutput(w)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn":
		lvl = slog.LevelWarn
		log.SetFlags(log.Ltime)
	case "error":
		lvl = slog.LevelError
		log.SetFlags(log.Ltime)
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
