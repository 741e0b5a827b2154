package engine

import "errors"

// Engine errors are returned by the public API and can be checked with
// errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running engine.
	ErrAlreadyRunning = errors.New("enginekit: already running")

	// ErrNotRunning is returned when Close() is called on an engine that was never started.
	ErrNotRunning = errors.New("enginekit: not running")

	// ErrShutdownTimeout is returned when workers outlive the shutdown timeout.
	ErrShutdownTimeout = errors.New("enginekit: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("enginekit: invalid configuration")
)
