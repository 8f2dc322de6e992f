package connection

// State represents the session state.
type State uint8

const (
	// StateIdle indicates no startup sequence has run yet.
	StateIdle State = iota

	// StateConnecting indicates TCP connect and TLS handshake are in progress.
	StateConnecting

	// StateAuthenticating indicates version exchange and authentication
	// are in progress.
	StateAuthenticating

	// StateReady indicates an authenticated session.
	StateReady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}
