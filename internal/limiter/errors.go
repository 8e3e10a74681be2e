package limiter

import "errors"

var (
	// ErrClosed is returned to callers still waiting when the bucket shuts down.
	ErrClosed = errors.New("limiter: closed")

	// ErrCanceled wraps the caller's context error when it stops waiting.
	ErrCanceled = errors.New("limiter: acquire canceled")

	// ErrInvalidConfig is returned by New for a non-positive ceiling or window.
	ErrInvalidConfig = errors.New("limiter: invalid config")
)
