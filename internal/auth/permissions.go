package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermCelebrationRead   Permission = "celebration:read"
	PermCelebrationSubmit Permission = "celebration:submit"
	PermCelebrationCancel Permission = "celebration:cancel"
	PermDeviceRead        Permission = "device:read"
	PermDeviceTest        Permission = "device:test"
	PermPaymentPush       Permission = "payment:push"
	PermSchedulerRun      Permission = "scheduler:run"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleTenant: {
		PermCelebrationRead,
		PermCelebrationSubmit,
		PermCelebrationCancel,
		PermDeviceRead,
		PermDeviceTest,
		PermPaymentPush,
	},
	RoleService: {
		PermPaymentPush,
	},
	RoleAdmin: {
		PermCelebrationRead,
		PermCelebrationSubmit,
		PermCelebrationCancel,
		PermDeviceRead,
		PermDeviceTest,
		PermPaymentPush,
		PermSchedulerRun,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// IsTenantScoped returns true if the role may only act for the tenant in its token.
func IsTenantScoped(role Role) bool {
	return role != RoleAdmin
}
