package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleTenant, PermCelebrationSubmit, true},
		{RoleTenant, PermDeviceTest, true},
		{RoleTenant, PermSchedulerRun, false},
		{RoleService, PermPaymentPush, true},
		{RoleService, PermCelebrationCancel, false},
		{RoleAdmin, PermSchedulerRun, true},
		{"unknown", PermCelebrationRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleService)
	if len(perms) != 1 || perms[0] != PermPaymentPush {
		t.Errorf("PermissionsForRole(service) = %v", perms)
	}
	perms[0] = PermSchedulerRun
	if HasPermission(RoleService, PermSchedulerRun) {
		t.Error("PermissionsForRole must return a copy")
	}
	if PermissionsForRole("nobody") != nil {
		t.Error("unknown role should have no permissions")
	}
}
