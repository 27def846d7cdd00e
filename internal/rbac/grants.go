package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type transition string

// errTargetRevoked reports a target revoked between validation and the grant write.
var errTargetRevoked = errors.New("rbac: target revoked")

const (
	transitionCreated     transition = "created"
	transitionReactivated transition = "reactivated"
	transitionSkipped     transition = "skipped"
)

// grantSpec binds the shared lifecycle algorithm to one grant kind.
type grantSpec struct {
	kind   GrantKind
	entity string
	// checkSubject returns ErrNotFound or ErrInactiveSubject when the subject cannot receive grants.
	checkSubject func(ctx context.Context, s *Service, id int64) error
	// missingTargets returns the ids that do not resolve to a non-revoked target.
	missingTargets func(ctx context.Context, s *Service, ids []int64) ([]int64, error)
}

var userRoleSpec = grantSpec{
	kind:   KindUserRole,
	entity: "user_role",
	checkSubject: func(ctx context.Context, s *Service, id int64) error {
		subject, err := s.users.Subject(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, shared.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if subject.Deleted {
			return ErrNotFound
		}
		if !subject.Active {
			return ErrInactiveSubject
		}
		return nil
	},
	missingTargets: func(ctx context.Context, s *Service, ids []int64) ([]int64, error) {
		roles, err := s.repo.GetRolesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		found := make(map[int64]bool, len(roles))
		for _, role := range roles {
			found[role.ID] = role.Active()
		}
		return missingFrom(ids, found), nil
	},
}

var rolePermissionSpec = grantSpec{
	kind:   KindRolePermission,
	entity: "role_permission",
	checkSubject: func(ctx context.Context, s *Service, id int64) error {
		role, err := s.repo.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if !role.Active() {
			return ErrNotFound
		}
		return nil
	},
	missingTargets: func(ctx context.Context, s *Service, ids []int64) ([]int64, error) {
		perms, err := s.repo.GetPermissionsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		found := make(map[int64]bool, len(perms))
		for _, perm := range perms {
			found[perm.ID] = perm.Active()
		}
		return missingFrom(ids, found), nil
	},
}

func missingFrom(ids []int64, found map[int64]bool) []int64 {
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// AssignUserRole grants roleID to userID. A revoked grant for the pair is reactivated.
func (s *Service) AssignUserRole(ctx context.Context, userID, roleID, actorID int64) (Grant, error) {
	return s.assign(ctx, userRoleSpec, userID, roleID, actorID)
}

// BulkAssignUserRoles grants every role in roleIDs to userID, skipping active pairs.
func (s *Service) BulkAssignUserRoles(ctx context.Context, userID int64, roleIDs []int64, actorID int64) (BulkResult, error) {
	return s.bulkAssign(ctx, userRoleSpec, userID, roleIDs, actorID)
}

// ReplaceUserRoles makes roleIDs the exact active role set of userID.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64, actorID int64) (ReplaceResult, error) {
	return s.replace(ctx, userRoleSpec, userID, roleIDs, actorID)
}

// RevokeUserRole revokes the active grant of roleID to userID.
func (s *Service) RevokeUserRole(ctx context.Context, userID, roleID, actorID int64) error {
	return s.revoke(ctx, userRoleSpec, userID, roleID, actorID)
}

// GrantRolePermission attaches permID to roleID. A revoked grant for the pair is reactivated.
func (s *Service) GrantRolePermission(ctx context.Context, roleID, permID, actorID int64) (Grant, error) {
	return s.assign(ctx, rolePermissionSpec, roleID, permID, actorID)
}

// BulkGrantRolePermissions attaches every permission in permIDs to roleID, skipping active pairs.
func (s *Service) BulkGrantRolePermissions(ctx context.Context, roleID int64, permIDs []int64, actorID int64) (BulkResult, error) {
	return s.bulkAssign(ctx, rolePermissionSpec, roleID, permIDs, actorID)
}

// ReplaceRolePermissions makes permIDs the exact active permission set of roleID.
func (s *Service) ReplaceRolePermissions(ctx context.Context, roleID int64, permIDs []int64, actorID int64) (ReplaceResult, error) {
	return s.replace(ctx, rolePermissionSpec, roleID, permIDs, actorID)
}

// RevokeRolePermission revokes the active grant of permID to roleID.
func (s *Service) RevokeRolePermission(ctx context.Context, roleID, permID, actorID int64) error {
	return s.revoke(ctx, rolePermissionSpec, roleID, permID, actorID)
}

func (s *Service) assign(ctx context.Context, spec grantSpec, subjectID, targetID, actorID int64) (Grant, error) {
	if err := spec.checkSubject(ctx, s, subjectID); err != nil {
		s.count(spec.kind, "assign", outcomeOf(err))
		return Grant{}, err
	}
	missing, err := spec.missingTargets(ctx, s, []int64{targetID})
	if err != nil {
		s.count(spec.kind, "assign", "error")
		return Grant{}, err
	}
	if len(missing) > 0 {
		s.count(spec.kind, "assign", "rejected")
		return Grant{}, ErrNotFound
	}
	grant, result, err := s.transition(ctx, spec.kind, subjectID, targetID, actorID)
	if errors.Is(err, errTargetRevoked) {
		err = ErrNotFound
	}
	if err != nil {
		s.count(spec.kind, "assign", outcomeOf(err))
		return Grant{}, err
	}
	if result == transitionSkipped {
		s.count(spec.kind, "assign", "conflict")
		return Grant{}, ErrAlreadyGranted
	}
	s.count(spec.kind, "assign", string(result))
	s.record(ctx, actorID, spec.entity+".assign", spec.entity, grant.ID, map[string]any{
		"subject_id": subjectID,
		"target_id":  targetID,
		"transition": string(result),
	})
	return grant, nil
}

func (s *Service) bulkAssign(ctx context.Context, spec grantSpec, subjectID int64, targetIDs []int64, actorID int64) (BulkResult, error) {
	targets, err := s.validateBatch(ctx, spec, subjectID, targetIDs)
	if err != nil {
		s.count(spec.kind, "bulk_assign", outcomeOf(err))
		return BulkResult{}, err
	}
	var result BulkResult
	for _, targetID := range targets {
		_, outcome, err := s.transition(ctx, spec.kind, subjectID, targetID, actorID)
		if errors.Is(err, errTargetRevoked) {
			s.count(spec.kind, "bulk_assign", "rejected")
			return result, &InvalidTargetError{Kind: spec.kind, IDs: []int64{targetID}}
		}
		if err != nil {
			s.count(spec.kind, "bulk_assign", outcomeOf(err))
			return result, fmt.Errorf("bulk assign %s %d->%d: %w", spec.kind, subjectID, targetID, err)
		}
		switch outcome {
		case transitionCreated:
			result.Created++
		case transitionReactivated:
			result.Reactivated++
		default:
			result.Skipped++
		}
	}
	s.count(spec.kind, "bulk_assign", "ok")
	s.record(ctx, actorID, spec.entity+".bulk_assign", spec.entity, subjectID, map[string]any{
		"target_ids":  targets,
		"created":     result.Created,
		"reactivated": result.Reactivated,
		"skipped":     result.Skipped,
	})
	return result, nil
}

func (s *Service) replace(ctx context.Context, spec grantSpec, subjectID int64, targetIDs []int64, actorID int64) (ReplaceResult, error) {
	targets, err := s.validateBatch(ctx, spec, subjectID, targetIDs)
	if err != nil {
		s.count(spec.kind, "replace", outcomeOf(err))
		return ReplaceResult{}, err
	}
	desired := make(map[int64]struct{}, len(targets))
	for _, id := range targets {
		desired[id] = struct{}{}
	}
	current, err := s.repo.ListGrantsBySubject(ctx, spec.kind, subjectID, true)
	if err != nil {
		s.count(spec.kind, "replace", "error")
		return ReplaceResult{}, err
	}

	var result ReplaceResult
	for _, grant := range current {
		if _, keep := desired[grant.TargetID]; keep {
			continue
		}
		revoked, err := s.revokePair(ctx, spec.kind, subjectID, grant.TargetID, actorID)
		if err != nil {
			s.count(spec.kind, "replace", "error")
			return result, fmt.Errorf("replace revoke %s %d->%d: %w", spec.kind, subjectID, grant.TargetID, err)
		}
		if revoked {
			result.Removed++
		}
	}
	for _, targetID := range targets {
		_, outcome, err := s.transition(ctx, spec.kind, subjectID, targetID, actorID)
		if errors.Is(err, errTargetRevoked) {
			s.count(spec.kind, "replace", "rejected")
			return result, &InvalidTargetError{Kind: spec.kind, IDs: []int64{targetID}}
		}
		if err != nil {
			s.count(spec.kind, "replace", outcomeOf(err))
			return result, fmt.Errorf("replace assign %s %d->%d: %w", spec.kind, subjectID, targetID, err)
		}
		switch outcome {
		case transitionCreated:
			result.Assigned++
		case transitionReactivated:
			result.Reactivated++
		}
	}
	s.count(spec.kind, "replace", "ok")
	s.record(ctx, actorID, spec.entity+".replace", spec.entity, subjectID, map[string]any{
		"target_ids":  targets,
		"removed":     result.Removed,
		"assigned":    result.Assigned,
		"reactivated": result.Reactivated,
	})
	return result, nil
}

func (s *Service) revoke(ctx context.Context, spec grantSpec, subjectID, targetID, actorID int64) error {
	var revoked Grant
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		grant, err := repo.FindGrant(ctx, spec.kind, subjectID, targetID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrGrantNotFound
			}
			return err
		}
		if !grant.Active() {
			return ErrGrantNotFound
		}
		revoked, err = repo.RevokeGrant(ctx, spec.kind, grant.ID, actorID, s.now())
		return err
	})
	if err != nil {
		s.count(spec.kind, "revoke", outcomeOf(err))
		return err
	}
	s.count(spec.kind, "revoke", "revoked")
	s.record(ctx, actorID, spec.entity+".revoke", spec.entity, revoked.ID, map[string]any{
		"subject_id": subjectID,
		"target_id":  targetID,
	})
	return nil
}

// validateBatch checks the subject and every target before any write.
func (s *Service) validateBatch(ctx context.Context, spec grantSpec, subjectID int64, targetIDs []int64) ([]int64, error) {
	if err := spec.checkSubject(ctx, s, subjectID); err != nil {
		return nil, err
	}
	targets := uniqueIDs(targetIDs)
	if len(targets) == 0 {
		return targets, nil
	}
	missing, err := spec.missingTargets(ctx, s, targets)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &InvalidTargetError{Kind: spec.kind, IDs: missing}
	}
	return targets, nil
}

// lockEndpoints share-locks the catalog rows a grant references and re-checks they are active.
// A concurrent RevokeRole or RevokePermission either waits for this transaction or is observed here.
func lockEndpoints(ctx context.Context, repo Repository, kind GrantKind, subjectID, targetID int64) error {
	switch kind {
	case KindUserRole:
		role, err := repo.LockRole(ctx, targetID, LockShare)
		if errors.Is(err, ErrNotFound) || (err == nil && !role.Active()) {
			return errTargetRevoked
		}
		return err
	case KindRolePermission:
		role, err := repo.LockRole(ctx, subjectID, LockShare)
		if err != nil {
			return err
		}
		if !role.Active() {
			return ErrNotFound
		}
		perm, err := repo.LockPermission(ctx, targetID, LockShare)
		if errors.Is(err, ErrNotFound) || (err == nil && !perm.Active()) {
			return errTargetRevoked
		}
		return err
	default:
		return fmt.Errorf("%w: unknown grant kind %q", ErrValidation, kind)
	}
}

// transition applies the per-pair state machine in its own transaction.
// An active pair, including one created by a concurrent writer, is reported as skipped.
func (s *Service) transition(ctx context.Context, kind GrantKind, subjectID, targetID, actorID int64) (Grant, transition, error) {
	var (
		grant  Grant
		result transition
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := lockEndpoints(ctx, repo, kind, subjectID, targetID); err != nil {
			return err
		}
		existing, err := repo.FindGrant(ctx, kind, subjectID, targetID)
		switch {
		case errors.Is(err, ErrNotFound):
			now := s.now()
			grant, err = repo.InsertGrant(ctx, Grant{
				Kind:      kind,
				SubjectID: subjectID,
				TargetID:  targetID,
				State:     StateActive,
				Audit:     Audit{CreatedBy: actorID, CreatedAt: now, UpdatedBy: actorID, UpdatedAt: now},
			})
			result = transitionCreated
			return err
		case err != nil:
			return err
		case existing.Active():
			grant, result = existing, transitionSkipped
			return nil
		default:
			grant, err = repo.ReactivateGrant(ctx, kind, existing.ID, actorID, s.now())
			result = transitionReactivated
			return err
		}
	})
	if errors.Is(err, errActiveGrantExists) {
		s.logger.Debug("rbac grant race lost",
			slog.String("kind", string(kind)),
			slog.Int64("subject_id", subjectID),
			slog.Int64("target_id", targetID))
		return Grant{}, transitionSkipped, nil
	}
	if err != nil {
		return Grant{}, "", err
	}
	return grant, result, nil
}

// revokePair revokes the active grant for the pair if one still exists.
func (s *Service) revokePair(ctx context.Context, kind GrantKind, subjectID, targetID, actorID int64) (bool, error) {
	revoked := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		grant, err := repo.FindGrant(ctx, kind, subjectID, targetID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !grant.Active() {
			return nil
		}
		if _, err := repo.RevokeGrant(ctx, kind, grant.ID, actorID, s.now()); err != nil {
			return err
		}
		revoked = true
		return nil
	})
	return revoked, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyGranted):
		return "conflict"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrGrantNotFound),
		errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrInactiveSubject):
		return "rejected"
	default:
		return "error"
	}
}
