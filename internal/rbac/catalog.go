package rbac

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const (
	maxRoleNameLen       = 100
	maxPermissionNameLen = 150
)

// CreateRole adds a role to the catalog.
func (s *Service) CreateRole(ctx context.Context, in RoleInput, actorID int64) (Role, error) {
	name, err := checkName(in.Name, maxRoleNameLen)
	if err != nil {
		return Role{}, err
	}
	now := s.now()
	role, err := s.repo.CreateRole(ctx, Role{
		Name:        name,
		Description: in.Description,
		State:       StateActive,
		Audit:       Audit{CreatedBy: actorID, CreatedAt: now, UpdatedBy: actorID, UpdatedAt: now},
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes an active role.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput, actorID int64) (Role, error) {
	name, err := checkName(in.Name, maxRoleNameLen)
	if err != nil {
		return Role{}, err
	}
	var updated Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		role, err := repo.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if !role.Active() {
			return ErrNotFound
		}
		role.Name = name
		role.Description = in.Description
		role.UpdatedBy = actorID
		role.UpdatedAt = s.now()
		updated, err = repo.UpdateRole(ctx, role)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", "role", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// GetRole returns a role in any state.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns the active roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(roles))
	for _, role := range roles {
		if role.Active() {
			out = append(out, role)
		}
	}
	return out, nil
}

// RevokeRole soft-deletes a role that no active user grant references.
func (s *Service) RevokeRole(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		role, err := repo.LockRole(ctx, id, LockUpdate)
		if err != nil {
			return err
		}
		if !role.Active() {
			return ErrNotFound
		}
		inUse, err := repo.CountActiveGrantsByTarget(ctx, KindUserRole, id)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("%w: %d active user grants", ErrInUse, inUse)
		}
		return repo.RevokeRole(ctx, id, actorID, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "role.revoke", "role", id, nil)
	return nil
}

// CreatePermission adds a permission to the catalog.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput, actorID int64) (Permission, error) {
	name, err := checkName(in.Name, maxPermissionNameLen)
	if err != nil {
		return Permission{}, err
	}
	now := s.now()
	perm, err := s.repo.CreatePermission(ctx, Permission{
		Name:        name,
		Description: in.Description,
		Resource:    in.Resource,
		Action:      in.Action,
		State:       StateActive,
		Audit:       Audit{CreatedBy: actorID, CreatedAt: now, UpdatedBy: actorID, UpdatedAt: now},
	})
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, actorID, "permission.create", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// UpdatePermission edits an active permission.
func (s *Service) UpdatePermission(ctx context.Context, id int64, in PermissionInput, actorID int64) (Permission, error) {
	name, err := checkName(in.Name, maxPermissionNameLen)
	if err != nil {
		return Permission{}, err
	}
	var updated Permission
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		perm, err := repo.GetPermission(ctx, id)
		if err != nil {
			return err
		}
		if !perm.Active() {
			return ErrNotFound
		}
		perm.Name = name
		perm.Description = in.Description
		perm.Resource = in.Resource
		perm.Action = in.Action
		perm.UpdatedBy = actorID
		perm.UpdatedAt = s.now()
		updated, err = repo.UpdatePermission(ctx, perm)
		return err
	})
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, actorID, "permission.update", "permission", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// GetPermission returns a permission in any state.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// ListPermissions returns the active permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		if perm.Active() {
			out = append(out, perm)
		}
	}
	return out, nil
}

// RevokePermission soft-deletes a permission that no active role grant references.
func (s *Service) RevokePermission(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		perm, err := repo.LockPermission(ctx, id, LockUpdate)
		if err != nil {
			return err
		}
		if !perm.Active() {
			return ErrNotFound
		}
		inUse, err := repo.CountActiveGrantsByTarget(ctx, KindRolePermission, id)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("%w: %d active role grants", ErrInUse, inUse)
		}
		return repo.RevokePermission(ctx, id, actorID, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.revoke", "permission", id, nil)
	return nil
}

func checkName(raw string, max int) (string, error) {
	name := normalizeName(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > max {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrValidation, max)
	}
	return name, nil
}
