package domain

import "errors"

// Domain errors represent error conditions in the sensorsync domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("sensorsync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("sensorsync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("sensorsync: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("sensorsync: invalid configuration")

	// ErrUnknownStream is returned when a message names a stream that is not configured.
	ErrUnknownStream = errors.New("sensorsync: unknown stream")

	// ErrMalformedPayload is returned by decoders for payloads that cannot be decoded.
	ErrMalformedPayload = errors.New("sensorsync: malformed payload")

	// ErrSinkFailed wraps errors returned by a Sink while delivering a tuple.
	ErrSinkFailed = errors.New("sensorsync: sink failed")

	// ErrClosed is returned when delivering to a sink that has been closed.
	ErrClosed = errors.New("sensorsync: closed")
)
