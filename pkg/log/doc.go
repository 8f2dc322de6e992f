// Package log provides structured protocol logging for the control channel.
//
// Protocol capture is separate from operational logging (slog): it records
// a machine-readable trace of every frame, keep-alive, state change and
// error, keyed by connection ID.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For later analysis: write to a CBOR file, read with mumble-log
//	fileLogger, _ := log.NewFileLogger("/tmp/session.mlog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// Authenticate frames are recorded without their bytes, since they carry
// the user's password.
package log
