package celebration

import "errors"

var (
	// ErrInvalidRequest is returned by Submit for malformed requests.
	ErrInvalidRequest = errors.New("celebration: invalid request")

	// ErrInvalidTier is returned when building a tier table fails validation.
	ErrInvalidTier = errors.New("celebration: invalid tier")

	// ErrRestoreFailed marks a restore that could not re-apply the captured
	// state. The engine still returns to idle.
	ErrRestoreFailed = errors.New("celebration: restore failed")

	// ErrClosed is returned by Submit after the engine has shut down.
	ErrClosed = errors.New("celebration: engine closed")

	// ErrInvalidTestOp is returned by TestCommand for an unknown or incomplete op.
	ErrInvalidTestOp = errors.New("celebration: invalid test op")
)
