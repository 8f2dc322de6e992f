package transport

import (
	"crypto/tls"
	"crypto/x509"
)

// DefaultPort is the default Mumble server port.
const DefaultPort = 64738

// TLSConfig holds configuration for the control-channel TLS session.
type TLSConfig struct {
	// Certificate is an optional client certificate. Mumble servers use it
	// to identify registered users.
	Certificate *tls.Certificate

	// RootCAs is the pool of trusted CA certificates. Only used when
	// VerifyPeer is set. Nil means the host's root pool.
	RootCAs *x509.CertPool

	// ServerName is the expected server name. Defaults to the dialed host.
	ServerName string

	// VerifyPeer enables server certificate verification. It is off by
	// default: most Mumble servers run with self-signed certificates.
	VerifyPeer bool

	// MinVersion is the minimum TLS version (default TLS 1.0).
	MinVersion uint16
}

// NewClientTLSConfig creates a TLS configuration for connecting to host.
// A nil cfg yields the default: no verification, TLS 1.0 or newer.
func NewClientTLSConfig(cfg *TLSConfig, host string) *tls.Config {
	if cfg == nil {
		cfg = &TLSConfig{}
	}

	tlsConfig := &tls.Config{
		// Lowest version the server may negotiate; the maximum is left to Go
		MinVersion: tls.VersionTLS10,

		// Server name for SNI and, if enabled, verification
		ServerName: host,

		// Verification is opt-in
		InsecureSkipVerify: !cfg.VerifyPeer,

		RootCAs: cfg.RootCAs,
	}

	if cfg.MinVersion != 0 {
		tlsConfig.MinVersion = cfg.MinVersion
	}
	if cfg.ServerName != "" {
		tlsConfig.ServerName = cfg.ServerName
	}
	if cfg.Certificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*cfg.Certificate}
	}

	return tlsConfig
}

// TLSVersionName returns a human-readable name for a TLS version.
func TLSVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}
