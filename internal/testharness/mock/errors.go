package mock

import "errors"

// Mock package errors.
var (
	// ErrTimeout is returned when expected frames do not arrive in time.
	ErrTimeout = errors.New("timeout waiting for frames")

	// ErrServerClosed is returned when waiting on a closed server.
	ErrServerClosed = errors.New("server closed")
)
