// Package wire defines the Mumble control-channel wire format.
//
// Every control message is carried as a frame:
//
//	┌──────────────┬────────────────┬───────────────────────┐
//	│ type (2B BE) │ length (4B BE) │ payload (length bytes) │
//	└──────────────┴────────────────┴───────────────────────┘
//
// The payload is a Protocol Buffers message. This package encodes the
// subset of messages the client produces (Version, Authenticate, Ping)
// directly with protowire, using the field numbers of Mumble.proto.
//
// # Message Types
//
// Type identifiers are fixed by the protocol:
//   - Version: 0
//   - UDPTunnel: 1 (reserved, not produced by this client)
//   - Authenticate: 2
//   - Ping: 3
package wire
