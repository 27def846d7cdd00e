package rbac

import "time"

// State is the lifecycle tag carried by roles, permissions and grants.
// Revoked rows are history, not absence: they stay in the store and may be reactivated.
type State string

const (
	StateActive  State = "active"
	StateRevoked State = "revoked"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	return s == StateActive || s == StateRevoked
}

// Audit carries the who/when metadata shared by every managed row.
type Audit struct {
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy int64      `json:"updated_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	RevokedBy *int64     `json:"revoked_by,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       State  `json:"state"`
	Audit
}

// Active reports whether the role has not been revoked.
func (r Role) Active() bool { return r.State == StateActive }

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource,omitempty"`
	Action      string `json:"action,omitempty"`
	State       State  `json:"state"`
	Audit
}

// Active reports whether the permission has not been revoked.
func (p Permission) Active() bool { return p.State == StateActive }

// GrantKind selects which edge collection a grant belongs to.
type GrantKind string

const (
	// KindUserRole links a user (subject) to a role (target).
	KindUserRole GrantKind = "user_role"
	// KindRolePermission links a role (subject) to a permission (target).
	KindRolePermission GrantKind = "role_permission"
)

// Grant is a directed subject -> target edge with its own lifecycle.
type Grant struct {
	ID        int64     `json:"id"`
	Kind      GrantKind `json:"kind"`
	SubjectID int64     `json:"subject_id"`
	TargetID  int64     `json:"target_id"`
	State     State     `json:"state"`
	Audit
}

// Active reports whether the grant currently confers access.
func (g Grant) Active() bool { return g.State == StateActive }

// Subject is the view of an external user identity consumed by the grant manager.
type Subject struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Active  bool   `json:"active"`
	Deleted bool   `json:"-"`
}

// BulkResult summarises a bulk assignment.
type BulkResult struct {
	Created     int `json:"created"`
	Reactivated int `json:"reactivated"`
	Skipped     int `json:"skipped"`
}

// ReplaceResult summarises a replace-all operation.
type ReplaceResult struct {
	Removed     int `json:"removed"`
	Assigned    int `json:"assigned"`
	Reactivated int `json:"reactivated"`
}

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// PermissionInput carries the editable fields of a permission.
type PermissionInput struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=500"`
	Resource    string `json:"resource" validate:"max=100"`
	Action      string `json:"action" validate:"max=50"`
}
