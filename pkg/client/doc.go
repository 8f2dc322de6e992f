// Package client implements the Mumble control-channel session.
//
// A Session runs the startup sequence (connect, version exchange,
// authenticate) and then keeps the server from timing the session out by
// sending a Ping every five seconds.
//
// # Lifecycle
//
//	IDLE ──New──► CONNECTING ──► AUTHENTICATING ──► READY
//	                  ▲                               │
//	                  └────────── Reconnect ──────────┘
//
// A failed New returns no session. A failed Reconnect returns to READY
// with the previous connection still in place.
//
// # Teardown
//
// There is no Close. The keep-alive goroutine holds only a weak reference
// to the Session; once the caller drops its last reference, the next wake
// finds nothing to ping and the loop exits. A cleanup registered on the
// Session closes the last connection when it is collected.
//
// # Reconnect
//
// Reconnect runs the full startup sequence on a fresh connection and swaps
// it in only after authentication succeeds. The previous connection is
// closed after the swap. Concurrent senders and the keep-alive loop always
// load the current connection, so they never use a replaced one by
// accident for more than the send already in flight.
package client
