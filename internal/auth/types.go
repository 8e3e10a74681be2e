package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleTenant acts for a single tenant: celebrate, cancel, inspect, test.
	RoleTenant Role = "tenant"

	// RoleService is a trusted forwarder (payment webhook verifier, event
	// bridge) that may only push events for its tenant.
	RoleService Role = "service"

	// RoleAdmin may act for every tenant and run operational endpoints.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleTenant, RoleService, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Errors returned by token handling.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
