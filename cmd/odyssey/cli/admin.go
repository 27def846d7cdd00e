package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/users"
)

// DefaultAdminRole is the role created by seed-admin when no name is given.
const DefaultAdminRole = "admin"

// Migrator applies ordered DDL statements.
type Migrator func(ctx context.Context, statements []string) error

// Catalog is the slice of the RBAC service used for bootstrapping.
type Catalog interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	CreateRole(ctx context.Context, in rbac.RoleInput, actorID int64) (rbac.Role, error)
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	CreatePermission(ctx context.Context, in rbac.PermissionInput, actorID int64) (rbac.Permission, error)
	BulkGrantRolePermissions(ctx context.Context, roleID int64, permIDs []int64, actorID int64) (rbac.BulkResult, error)
	AssignUserRole(ctx context.Context, userID, roleID, actorID int64) (rbac.Grant, error)
}

// AdminCLI offers schema and bootstrap helpers for operators.
type AdminCLI struct {
	migrate Migrator
	catalog Catalog
}

// NewAdminCLI constructs the helper. Either dependency may be nil when the
// corresponding command is not used.
func NewAdminCLI(migrate Migrator, catalog Catalog) *AdminCLI {
	return &AdminCLI{migrate: migrate, catalog: catalog}
}

// Migrations returns every statement in dependency order.
func Migrations() []string {
	out := make([]string, 0, len(users.Migrations)+len(rbac.Migrations))
	out = append(out, users.Migrations...)
	out = append(out, rbac.Migrations...)
	return out
}

// CommandIO carries the output streams of a command.
type CommandIO struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (o CommandIO) withDefaults() CommandIO {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// MigrateCommand applies the schema and reports the statement count.
func (c *AdminCLI) MigrateCommand(ctx context.Context, out CommandIO) int {
	out = out.withDefaults()
	if c == nil || c.migrate == nil {
		_, _ = fmt.Fprintln(out.Stderr, "migrate: database not configured")
		return 1
	}
	statements := Migrations()
	if err := c.migrate(ctx, statements); err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out.Stdout, "applied %d statements\n", len(statements))
	return 0
}

// SeedAdminOptions defines the flags of seed-admin.
type SeedAdminOptions struct {
	UserID   int64
	RoleName string
	CommandIO
}

// SeedAdminResult summarises what seed-admin changed.
type SeedAdminResult struct {
	RoleID             int64
	RoleCreated        bool
	PermissionsCreated int
	Grants             rbac.BulkResult
	UserGranted        bool
}

// SeedAdminCommand runs SeedAdmin and prints the outcome.
func (c *AdminCLI) SeedAdminCommand(ctx context.Context, opts SeedAdminOptions) int {
	out := opts.CommandIO.withDefaults()
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(out.Stderr, "seed-admin: --user is required and must be positive")
		return 1
	}
	result, err := c.SeedAdmin(ctx, opts.UserID, opts.RoleName)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "seed-admin: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out.Stdout, "role %d (created=%t) permissions created=%d grants created=%d reactivated=%d skipped=%d user granted=%t\n",
		result.RoleID, result.RoleCreated, result.PermissionsCreated,
		result.Grants.Created, result.Grants.Reactivated, result.Grants.Skipped, result.UserGranted)
	return 0
}

// SeedAdmin ensures the admin role carries every core permission and is held
// by userID. Running it again only fills gaps.
func (c *AdminCLI) SeedAdmin(ctx context.Context, userID int64, roleName string) (SeedAdminResult, error) {
	var result SeedAdminResult
	if c == nil || c.catalog == nil {
		return result, errors.New("rbac catalog not configured")
	}
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		roleName = DefaultAdminRole
	}

	role, created, err := c.ensureRole(ctx, roleName, userID)
	if err != nil {
		return result, err
	}
	result.RoleID, result.RoleCreated = role.ID, created

	permIDs, permsCreated, err := c.ensureCorePermissions(ctx, userID)
	if err != nil {
		return result, err
	}
	result.PermissionsCreated = permsCreated

	result.Grants, err = c.catalog.BulkGrantRolePermissions(ctx, role.ID, permIDs, userID)
	if err != nil {
		return result, fmt.Errorf("grant permissions: %w", err)
	}
	_, err = c.catalog.AssignUserRole(ctx, userID, role.ID, userID)
	switch {
	case err == nil:
		result.UserGranted = true
	case errors.Is(err, rbac.ErrAlreadyGranted):
	default:
		return result, fmt.Errorf("assign role: %w", err)
	}
	return result, nil
}

func (c *AdminCLI) ensureRole(ctx context.Context, name string, actorID int64) (rbac.Role, bool, error) {
	roles, err := c.catalog.ListRoles(ctx)
	if err != nil {
		return rbac.Role{}, false, fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return role, false, nil
		}
	}
	role, err := c.catalog.CreateRole(ctx, rbac.RoleInput{Name: name, Description: "Full access to identity administration"}, actorID)
	if err != nil {
		return rbac.Role{}, false, fmt.Errorf("create role: %w", err)
	}
	return role, true, nil
}

func (c *AdminCLI) ensureCorePermissions(ctx context.Context, actorID int64) ([]int64, int, error) {
	existing, err := c.catalog.ListPermissions(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	byName := make(map[string]int64, len(existing))
	for _, perm := range existing {
		byName[perm.Name] = perm.ID
	}
	descriptions := shared.CoreScopeDescriptions()
	scopes := shared.CoreScopes()
	ids := make([]int64, 0, len(scopes))
	created := 0
	for _, scope := range scopes {
		if id, ok := byName[scope]; ok {
			ids = append(ids, id)
			continue
		}
		resource, action, _ := strings.Cut(scope, ".")
		perm, err := c.catalog.CreatePermission(ctx, rbac.PermissionInput{
			Name:        scope,
			Description: descriptions[scope],
			Resource:    resource,
			Action:      action,
		}, actorID)
		if err != nil {
			return nil, 0, fmt.Errorf("create permission %s: %w", scope, err)
		}
		ids = append(ids, perm.ID)
		created++
	}
	return ids, created, nil
}
