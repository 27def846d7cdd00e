package rbac

import (
	"context"
	"errors"
	"sort"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// EffectivePermissions resolves the distinct permission names reachable from userID
// over active grants, active roles and active permissions. A user without roles yields an empty slice.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	names, err := s.repo.EffectivePermissionNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sortedUnique(names), nil
}

// EffectiveRoles resolves the distinct active role names held by userID.
func (s *Service) EffectiveRoles(ctx context.Context, userID int64) ([]string, error) {
	names, err := s.repo.EffectiveRoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sortedUnique(names), nil
}

// ResolveSnapshot resolves the effective roles and permissions of userID from one
// consistent view of the store, so both sets reflect the same committed grants.
func (s *Service) ResolveSnapshot(ctx context.Context, userID int64) (roles, perms []string, err error) {
	err = s.repo.WithReadSnapshot(ctx, func(ctx context.Context, repo Repository) error {
		roleNames, err := repo.EffectiveRoleNames(ctx, userID)
		if err != nil {
			return err
		}
		permNames, err := repo.EffectivePermissionNames(ctx, userID)
		if err != nil {
			return err
		}
		roles, perms = sortedUnique(roleNames), sortedUnique(permNames)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return roles, perms, nil
}

// ListUserRoles returns the active roles held by userID, ordered by name.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrantsBySubject(ctx, KindUserRole, userID, true)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.GetRolesByIDs(ctx, targetIDs(grants))
	if err != nil {
		return nil, err
	}
	out := roles[:0]
	for _, role := range roles {
		if role.Active() {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListRolePermissions returns the active permissions attached to roleID, ordered by name.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.activeRole(ctx, roleID); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrantsBySubject(ctx, KindRolePermission, roleID, true)
	if err != nil {
		return nil, err
	}
	perms, err := s.repo.GetPermissionsByIDs(ctx, targetIDs(grants))
	if err != nil {
		return nil, err
	}
	out := perms[:0]
	for _, perm := range perms {
		if perm.Active() {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListRoleUsers returns the users actively holding roleID, ordered by name.
func (s *Service) ListRoleUsers(ctx context.Context, roleID int64) ([]Subject, error) {
	if _, err := s.activeRole(ctx, roleID); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListActiveGrantsByTarget(ctx, KindUserRole, roleID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return []Subject{}, nil
	}
	ids := make([]int64, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.SubjectID)
	}
	subjects, err := s.users.Subjects(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// ListPermissionRoles returns the active roles carrying permID, ordered by name.
func (s *Service) ListPermissionRoles(ctx context.Context, permID int64) ([]Role, error) {
	perm, err := s.repo.GetPermission(ctx, permID)
	if err != nil {
		return nil, err
	}
	if !perm.Active() {
		return nil, ErrNotFound
	}
	grants, err := s.repo.ListActiveGrantsByTarget(ctx, KindRolePermission, permID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.SubjectID)
	}
	roles, err := s.repo.GetRolesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := roles[:0]
	for _, role := range roles {
		if role.Active() {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GrantHistory returns every grant row of subjectID for kind, revoked ones included.
func (s *Service) GrantHistory(ctx context.Context, kind GrantKind, subjectID int64) ([]Grant, error) {
	switch kind {
	case KindUserRole:
		if err := s.requireUser(ctx, subjectID); err != nil {
			return nil, err
		}
	case KindRolePermission:
		if _, err := s.repo.GetRole(ctx, subjectID); err != nil {
			return nil, err
		}
	default:
		return nil, ErrValidation
	}
	return s.repo.ListGrantsBySubject(ctx, kind, subjectID, false)
}

func (s *Service) requireUser(ctx context.Context, userID int64) error {
	subject, err := s.users.Subject(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if subject.Deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) activeRole(ctx context.Context, roleID int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if !role.Active() {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func targetIDs(grants []Grant) []int64 {
	ids := make([]int64, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.TargetID)
	}
	return ids
}

func sortedUnique(names []string) []string {
	set := shared.NewPermissionSet(names)
	return set.Names()
}
