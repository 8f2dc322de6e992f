// Package connection provides session lifecycle building blocks: the
// session state machine, backoff delays and a retry policy for the
// connect + version exchange + authenticate sequence.
//
// # States
//
//	CONNECTING ──► AUTHENTICATING ──► READY
//	    ▲                               │
//	    └────────── reconnect ──────────┘
//
// A failure while CONNECTING or AUTHENTICATING ends the attempt. There is
// no automatic transition out of READY when the transport fails; callers
// detect that and reconnect.
//
// # Retry Policy
//
// RetryPolicy wraps the startup sequence. Only errors accepted by its
// Retryable predicate are retried; everything else is returned at once.
// The zero value makes a single attempt.
package connection
