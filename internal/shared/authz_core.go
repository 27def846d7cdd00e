package shared

// Core platform permissions guarding the access-control administration surface.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermAuditView,
	}
}

// CoreScopeDescriptions describes each core permission for seeding.
func CoreScopeDescriptions() map[string]string {
	return map[string]string{
		PermUsersView:       "View users and their role grants",
		PermUsersEdit:       "Assign and revoke user roles",
		PermRolesView:       "View roles and their permissions",
		PermRolesEdit:       "Manage roles and role permissions",
		PermPermissionsView: "View permissions",
		PermPermissionsEdit: "Manage permissions",
		PermAuditView:       "Read the access-control audit trail",
	}
}
