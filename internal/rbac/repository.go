package rbac

import (
	"context"
	"time"
)

// LockMode selects the row lock LockRole and LockPermission hold until the transaction ends.
type LockMode int

const (
	// LockShare blocks concurrent revocation while a grant referencing the row is written.
	LockShare LockMode = iota
	// LockUpdate blocks concurrent grant writers while the row is revoked.
	LockUpdate
)

// Repository is the grant store: roles, permissions and the two grant collections.
// Lookups by id return rows in any state; callers decide what revoked means for them.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// WithReadSnapshot runs fn read-only against a single consistent view of the store.
	WithReadSnapshot(ctx context.Context, fn func(context.Context, Repository) error) error

	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RevokeRole(ctx context.Context, id, actorID int64, at time.Time) error
	// LockRole reads the role under a row lock. Only meaningful inside WithTx.
	LockRole(ctx context.Context, id int64, mode LockMode) (Role, error)

	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RevokePermission(ctx context.Context, id, actorID int64, at time.Time) error
	// LockPermission reads the permission under a row lock. Only meaningful inside WithTx.
	LockPermission(ctx context.Context, id int64, mode LockMode) (Permission, error)

	// FindGrant returns the row for the pair, preferring the active one, and locks it
	// for the surrounding transaction. ErrNotFound when the pair was never granted.
	FindGrant(ctx context.Context, kind GrantKind, subjectID, targetID int64) (Grant, error)
	// InsertGrant creates an active grant. errActiveGrantExists when a concurrent writer won.
	InsertGrant(ctx context.Context, grant Grant) (Grant, error)
	// ReactivateGrant flips a revoked row back to active. errActiveGrantExists on conflict.
	ReactivateGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error)
	RevokeGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error)
	ListGrantsBySubject(ctx context.Context, kind GrantKind, subjectID int64, activeOnly bool) ([]Grant, error)
	ListActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) ([]Grant, error)
	CountActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) (int, error)

	// EffectiveRoleNames joins active user grants to active roles.
	EffectiveRoleNames(ctx context.Context, userID int64) ([]string, error)
	// EffectivePermissionNames joins both hops over active grants, roles and permissions.
	EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// UserDirectory exposes the externally owned user identities.
type UserDirectory interface {
	Subject(ctx context.Context, id int64) (Subject, error)
	Subjects(ctx context.Context, ids []int64) ([]Subject, error)
}
