// Package transport provides the Mumble control-channel transport.
//
// The transport layer handles:
//   - TCP connect and in-place TLS upgrade, with a bounded handshake retry
//   - Type+length prefixed message framing
//   - The Version, Authenticate and Ping control messages
//   - Keep-alive pings on a fixed interval
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│    Protocol Buffers payload    │
//	├────────────────────────────────┤
//	│ Type (2B) + Length (4B) header │
//	├────────────────────────────────┤
//	│     TLS 1.0 or negotiated      │
//	├────────────────────────────────┤
//	│              TCP               │
//	└────────────────────────────────┘
//
// No frame is ever sent before the TLS handshake completes.
//
// # Handshake Retry
//
// An interrupted handshake (timeout or would-block) is retried on the same
// connection, up to MaxHandshakeAttempts in total. Any other handshake
// failure aborts immediately with KindTLS.
//
// # Certificate Verification
//
// Server certificates are not verified unless TLSConfig.VerifyPeer is set.
//
// # Frame Writes
//
// Each frame is written whole under an exclusive lock. If a write panics or
// leaves a partial frame behind, the writer is poisoned and the connection
// must be discarded.
package transport
