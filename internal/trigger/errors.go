package trigger

import "errors"

var (
	// ErrFetchFailed marks a poll whose upstream source could not be read.
	// The tick is skipped and the cursor stays where it was.
	ErrFetchFailed = errors.New("trigger: fetch failed")

	// ErrUnauthorized is a fetch failure caused by a rejected access token.
	ErrUnauthorized = errors.New("trigger: upstream rejected credentials")

	// ErrInvalidPush is returned for a push payload that cannot be parsed.
	ErrInvalidPush = errors.New("trigger: invalid push event")

	// ErrSchedulerRunning is returned by Run when the loop is already active.
	ErrSchedulerRunning = errors.New("trigger: scheduler already running")
)
