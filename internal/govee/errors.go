package govee

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a failure worth retrying: timeouts, connection
	// resets, 5xx and 429 responses.
	ErrTransient = errors.New("govee: transient device failure")

	// ErrPermanent marks a failure that will not improve with retries:
	// 4xx responses, unknown devices, unsupported commands.
	ErrPermanent = errors.New("govee: permanent device failure")

	// ErrInvalidArgument is returned before any request is sent.
	ErrInvalidArgument = errors.New("govee: invalid argument")

	// ErrUnknownPattern is returned by RunPattern for ids outside the table.
	ErrUnknownPattern = errors.New("govee: unknown pattern")
)

// CommandError describes a command that ultimately failed.
// It wraps ErrTransient or ErrPermanent, so errors.Is works on the class.
type CommandError struct {
	Command    string
	Target     Target
	StatusCode int // HTTP status, or the vendor body code when HTTP was 200
	Attempts   int
	Err        error
}

func (e *CommandError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("govee %s %s: status %d after %d attempt(s): %v",
			e.Command, e.Target, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("govee %s %s: after %d attempt(s): %v", e.Command, e.Target, e.Attempts, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable device failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a non-retryable device failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrUnknownPattern)
}
