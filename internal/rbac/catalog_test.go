package rbac

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoleNormalisesName(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "  Cafe\u0301 Staff  ", Description: "kitchen"}, 4)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9 Staff", role.Name)
	assert.Equal(t, StateActive, role.State)
	assert.Equal(t, int64(4), role.CreatedBy)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "Caf\u00e9 Staff"}, 4)
	assert.ErrorIs(t, err, ErrDuplicateName)

	other, err := svc.CreateRole(ctx, RoleInput{Name: "caf\u00e9 staff"}, 4)
	require.NoError(t, err, "names are case-sensitive")
	assert.NotEqual(t, role.ID, other.ID)
}

func TestCreateRoleValidatesName(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateRole(context.Background(), RoleInput{Name: "   "}, 1)
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]rune, maxRoleNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.CreateRole(context.Background(), RoleInput{Name: string(long)}, 1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRevokeRoleInUse(t *testing.T) {
	svc := newTestService(activeUser(10, "Ana"))
	ctx := context.Background()
	role := svc.mustRole("Admin")
	_, err := svc.AssignUserRole(ctx, 10, role.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RevokeRole(ctx, role.ID, 1), ErrInUse)

	require.NoError(t, svc.RevokeUserRole(ctx, 10, role.ID, 1))
	require.NoError(t, svc.RevokeRole(ctx, role.ID, 1))
	assert.ErrorIs(t, svc.RevokeRole(ctx, role.ID, 1), ErrNotFound)

	stored, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRevoked, stored.State)

	reused, err := svc.CreateRole(ctx, RoleInput{Name: "Admin"}, 1)
	require.NoError(t, err, "revoked names may be reused")
	assert.NotEqual(t, role.ID, reused.ID)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, reused.ID, roles[0].ID)
}

func TestUpdateRole(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	role := svc.mustRole("Clerk")
	svc.mustRole("Manager")

	updated, err := svc.UpdateRole(ctx, role.ID, RoleInput{Name: "Senior Clerk", Description: "d"}, 6)
	require.NoError(t, err)
	assert.Equal(t, "Senior Clerk", updated.Name)
	assert.Equal(t, int64(6), updated.UpdatedBy)
	assert.Equal(t, role.CreatedAt, updated.CreatedAt)

	_, err = svc.UpdateRole(ctx, role.ID, RoleInput{Name: "Manager"}, 6)
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = svc.UpdateRole(ctx, 404, RoleInput{Name: "Ghost"}, 6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPermissionCatalog(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	role := svc.mustRole("Admin")

	perm, err := svc.CreatePermission(ctx, PermissionInput{Name: " salary.view ", Resource: "salary", Action: "view"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "salary.view", perm.Name)
	assert.Equal(t, "salary", perm.Resource)

	_, err = svc.CreatePermission(ctx, PermissionInput{Name: "salary.view"}, 2)
	assert.ErrorIs(t, err, ErrDuplicateName)

	updated, err := svc.UpdatePermission(ctx, perm.ID, PermissionInput{Name: "salary.read", Resource: "salary", Action: "read"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "read", updated.Action)

	_, err = svc.GrantRolePermission(ctx, role.ID, perm.ID, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RevokePermission(ctx, perm.ID, 1), ErrInUse)

	require.NoError(t, svc.RevokeRolePermission(ctx, role.ID, perm.ID, 1))
	require.NoError(t, svc.RevokePermission(ctx, perm.ID, 1))

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

// emptyCatalogRepository returns nil slices the way a driver does for zero rows.
type emptyCatalogRepository struct {
	*mockRepository
}

func (emptyCatalogRepository) ListRoles(context.Context) ([]Role, error) { return nil, nil }

func (emptyCatalogRepository) ListPermissions(context.Context) ([]Permission, error) {
	return nil, nil
}

func TestEmptyCatalogEncodesAsEmptyArray(t *testing.T) {
	svc := NewService(emptyCatalogRepository{newMockRepository()}, newMockUsers(), ServiceOptions{})
	ctx := context.Background()

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	body, err := json.Marshal(roles)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	body, err = json.Marshal(perms)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))
}
