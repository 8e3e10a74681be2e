package tenant

import "errors"

var (
	// ErrUnknownTenant is returned when no tenant has the given id.
	ErrUnknownTenant = errors.New("tenant: unknown tenant")

	// ErrUnknownDevice is returned when the tenant has no device with the given id.
	ErrUnknownDevice = errors.New("tenant: unknown device")

	// ErrInvalidTenant is returned by NewRegistry for a malformed entry.
	ErrInvalidTenant = errors.New("tenant: invalid tenant")
)
