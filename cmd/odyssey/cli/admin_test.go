package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type stubCatalog struct {
	roles       []rbac.Role
	permissions []rbac.Permission
	granted     map[int64]bool
	userRoles   map[int64]bool
	nextID      int64
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{granted: map[int64]bool{}, userRoles: map[int64]bool{}, nextID: 100}
}

func (s *stubCatalog) ListRoles(context.Context) ([]rbac.Role, error) { return s.roles, nil }

func (s *stubCatalog) CreateRole(_ context.Context, in rbac.RoleInput, _ int64) (rbac.Role, error) {
	s.nextID++
	role := rbac.Role{ID: s.nextID, Name: in.Name, Description: in.Description, State: rbac.StateActive}
	s.roles = append(s.roles, role)
	return role, nil
}

func (s *stubCatalog) ListPermissions(context.Context) ([]rbac.Permission, error) {
	return s.permissions, nil
}

func (s *stubCatalog) CreatePermission(_ context.Context, in rbac.PermissionInput, _ int64) (rbac.Permission, error) {
	s.nextID++
	perm := rbac.Permission{ID: s.nextID, Name: in.Name, Resource: in.Resource, Action: in.Action, State: rbac.StateActive}
	s.permissions = append(s.permissions, perm)
	return perm, nil
}

func (s *stubCatalog) BulkGrantRolePermissions(_ context.Context, _ int64, permIDs []int64, _ int64) (rbac.BulkResult, error) {
	var result rbac.BulkResult
	for _, id := range permIDs {
		if s.granted[id] {
			result.Skipped++
			continue
		}
		s.granted[id] = true
		result.Created++
	}
	return result, nil
}

func (s *stubCatalog) AssignUserRole(_ context.Context, userID, roleID, _ int64) (rbac.Grant, error) {
	if s.userRoles[userID] {
		return rbac.Grant{}, rbac.ErrAlreadyGranted
	}
	s.userRoles[userID] = true
	return rbac.Grant{SubjectID: userID, TargetID: roleID, State: rbac.StateActive}, nil
}

func TestSeedAdminCreatesRoleAndCatalog(t *testing.T) {
	catalog := newStubCatalog()
	admin := NewAdminCLI(nil, catalog)

	result, err := admin.SeedAdmin(context.Background(), 1, "")
	require.NoError(t, err)
	assert.True(t, result.RoleCreated)
	assert.Equal(t, len(shared.CoreScopes()), result.PermissionsCreated)
	assert.Equal(t, len(shared.CoreScopes()), result.Grants.Created)
	assert.True(t, result.UserGranted)
	require.Len(t, catalog.roles, 1)
	assert.Equal(t, DefaultAdminRole, catalog.roles[0].Name)

	for _, perm := range catalog.permissions {
		if perm.Name == shared.PermUsersEdit {
			assert.Equal(t, "users", perm.Resource)
			assert.Equal(t, "edit", perm.Action)
		}
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	catalog := newStubCatalog()
	admin := NewAdminCLI(nil, catalog)

	_, err := admin.SeedAdmin(context.Background(), 1, "admin")
	require.NoError(t, err)
	result, err := admin.SeedAdmin(context.Background(), 1, "admin")
	require.NoError(t, err)

	assert.False(t, result.RoleCreated)
	assert.Zero(t, result.PermissionsCreated)
	assert.Zero(t, result.Grants.Created)
	assert.Equal(t, len(shared.CoreScopes()), result.Grants.Skipped)
	assert.False(t, result.UserGranted)
	assert.Len(t, catalog.roles, 1)
}

func TestSeedAdminCommandValidatesUser(t *testing.T) {
	admin := NewAdminCLI(nil, newStubCatalog())
	stderr := new(bytes.Buffer)

	code := admin.SeedAdminCommand(context.Background(), SeedAdminOptions{CommandIO: CommandIO{Stdout: new(bytes.Buffer), Stderr: stderr}})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "--user")
}

func TestMigrateCommandAppliesUsersBeforeGrants(t *testing.T) {
	var applied []string
	admin := NewAdminCLI(func(_ context.Context, statements []string) error {
		applied = statements
		return nil
	}, nil)
	stdout := new(bytes.Buffer)

	code := admin.MigrateCommand(context.Background(), CommandIO{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.NotEmpty(t, applied)
	assert.Contains(t, applied[0], "users")
	assert.Contains(t, stdout.String(), "applied")
}

func TestMigrateCommandReportsFailure(t *testing.T) {
	admin := NewAdminCLI(func(context.Context, []string) error { return errors.New("boom") }, nil)
	stderr := new(bytes.Buffer)

	code := admin.MigrateCommand(context.Background(), CommandIO{Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "boom")
}
