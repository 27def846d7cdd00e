package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// grantTable maps a grant kind onto its edge table.
type grantTable struct {
	name        string
	subjectCol  string
	targetCol   string
	activeIndex string
}

var grantTables = map[GrantKind]grantTable{
	KindUserRole:       {name: "user_roles", subjectCol: "user_id", targetCol: "role_id", activeIndex: "user_roles_active_key"},
	KindRolePermission: {name: "role_permissions", subjectCol: "role_id", targetCol: "permission_id", activeIndex: "role_permissions_active_key"},
}

func tableFor(kind GrantKind) (grantTable, error) {
	t, ok := grantTables[kind]
	if !ok {
		return grantTable{}, fmt.Errorf("%w: unknown grant kind %q", ErrValidation, kind)
	}
	return t, nil
}

// PGRepository is the PostgreSQL grant store.
type PGRepository struct {
	db   dbtx
	pool *pgxpool.Pool
	inTx bool
}

// NewPGRepository constructs a repository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool, pool: pool}
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx, pool: r.pool, inTx: true})
	})
}

// WithReadSnapshot runs fn in a read-only REPEATABLE READ transaction.
func (r *PGRepository) WithReadSnapshot(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithTxOptions(ctx, r.pool, db.ReadSnapshot, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx, pool: r.pool, inTx: true})
	})
}

func lockClause(mode LockMode) string {
	if mode == LockUpdate {
		return "FOR UPDATE"
	}
	return "FOR SHARE"
}

const roleColumns = `id, name, description, state, created_by, created_at, updated_by, updated_at, revoked_by, revoked_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.State,
		&role.CreatedBy, &role.CreatedAt, &role.UpdatedBy, &role.UpdatedAt, &role.RevokedBy, &role.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO roles (name, description, state, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, 'active', $3, $4, $3, $4) RETURNING `+roleColumns,
		role.Name, role.Description, role.CreatedBy, role.CreatedAt)
	created, err := scanRole(row)
	if db.IsUniqueViolation(err, "roles_name_active_key") {
		return Role{}, ErrDuplicateName
	}
	return created, err
}

func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.db.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_by = $4, updated_at = $5
WHERE id = $1 AND state = 'active' RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.UpdatedBy, role.UpdatedAt)
	updated, err := scanRole(row)
	if db.IsUniqueViolation(err, "roles_name_active_key") {
		return Role{}, ErrDuplicateName
	}
	return updated, err
}

func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (r *PGRepository) LockRole(ctx context.Context, id int64, mode LockMode) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 `+lockClause(mode), id))
}

func (r *PGRepository) GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return []Role{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY name, id`, ids)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (r *PGRepository) RevokeRole(ctx context.Context, id, actorID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE roles SET state = 'revoked', revoked_by = $2, revoked_at = $3, updated_by = $2, updated_at = $3
WHERE id = $1 AND state = 'active'`, id, actorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const permissionColumns = `id, name, description, resource, action, state, created_by, created_at, updated_by, updated_at, revoked_by, revoked_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Resource, &perm.Action, &perm.State,
		&perm.CreatedBy, &perm.CreatedAt, &perm.UpdatedBy, &perm.UpdatedAt, &perm.RevokedBy, &perm.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return perm, err
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	perms := []Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO permissions (name, description, resource, action, state, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, $3, $4, 'active', $5, $6, $5, $6) RETURNING `+permissionColumns,
		perm.Name, perm.Description, perm.Resource, perm.Action, perm.CreatedBy, perm.CreatedAt)
	created, err := scanPermission(row)
	if db.IsUniqueViolation(err, "permissions_name_active_key") {
		return Permission{}, ErrDuplicateName
	}
	return created, err
}

func (r *PGRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.db.QueryRow(ctx, `UPDATE permissions SET name = $2, description = $3, resource = $4, action = $5, updated_by = $6, updated_at = $7
WHERE id = $1 AND state = 'active' RETURNING `+permissionColumns,
		perm.ID, perm.Name, perm.Description, perm.Resource, perm.Action, perm.UpdatedBy, perm.UpdatedAt)
	updated, err := scanPermission(row)
	if db.IsUniqueViolation(err, "permissions_name_active_key") {
		return Permission{}, ErrDuplicateName
	}
	return updated, err
}

func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
}

func (r *PGRepository) LockPermission(ctx context.Context, id int64, mode LockMode) (Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1 `+lockClause(mode), id))
}

func (r *PGRepository) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return []Permission{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1) ORDER BY name, id`, ids)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (r *PGRepository) RevokePermission(ctx context.Context, id, actorID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE permissions SET state = 'revoked', revoked_by = $2, revoked_at = $3, updated_by = $2, updated_at = $3
WHERE id = $1 AND state = 'active'`, id, actorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func grantColumns(t grantTable) string {
	return `id, ` + t.subjectCol + `, ` + t.targetCol + `, state, created_by, created_at, updated_by, updated_at, revoked_by, revoked_at`
}

func scanGrant(kind GrantKind, row pgx.Row) (Grant, error) {
	grant := Grant{Kind: kind}
	err := row.Scan(&grant.ID, &grant.SubjectID, &grant.TargetID, &grant.State,
		&grant.CreatedBy, &grant.CreatedAt, &grant.UpdatedBy, &grant.UpdatedAt, &grant.RevokedBy, &grant.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, ErrNotFound
	}
	return grant, err
}

func collectGrants(kind GrantKind, rows pgx.Rows) ([]Grant, error) {
	defer rows.Close()
	grants := []Grant{}
	for rows.Next() {
		grant, err := scanGrant(kind, rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (r *PGRepository) FindGrant(ctx context.Context, kind GrantKind, subjectID, targetID int64) (Grant, error) {
	t, err := tableFor(kind)
	if err != nil {
		return Grant{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2
ORDER BY (state = 'active') DESC, updated_at DESC, id DESC LIMIT 1 FOR UPDATE`,
		grantColumns(t), t.name, t.subjectCol, t.targetCol)
	return scanGrant(kind, r.db.QueryRow(ctx, query, subjectID, targetID))
}

func (r *PGRepository) InsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	t, err := tableFor(grant.Kind)
	if err != nil {
		return Grant{}, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, state, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, 'active', $3, $4, $3, $4) RETURNING %s`,
		t.name, t.subjectCol, t.targetCol, grantColumns(t))
	created, err := scanGrant(grant.Kind, r.db.QueryRow(ctx, query, grant.SubjectID, grant.TargetID, grant.CreatedBy, grant.CreatedAt))
	if db.IsUniqueViolation(err, t.activeIndex) {
		return Grant{}, errActiveGrantExists
	}
	return created, err
}

func (r *PGRepository) ReactivateGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error) {
	t, err := tableFor(kind)
	if err != nil {
		return Grant{}, err
	}
	query := fmt.Sprintf(`UPDATE %s SET state = 'active', revoked_by = NULL, revoked_at = NULL, updated_by = $2, updated_at = $3
WHERE id = $1 AND state = 'revoked' RETURNING %s`, t.name, grantColumns(t))
	grant, err := scanGrant(kind, r.db.QueryRow(ctx, query, id, actorID, at))
	if db.IsUniqueViolation(err, t.activeIndex) {
		return Grant{}, errActiveGrantExists
	}
	return grant, err
}

func (r *PGRepository) RevokeGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error) {
	t, err := tableFor(kind)
	if err != nil {
		return Grant{}, err
	}
	query := fmt.Sprintf(`UPDATE %s SET state = 'revoked', revoked_by = $2, revoked_at = $3, updated_by = $2, updated_at = $3
WHERE id = $1 AND state = 'active' RETURNING %s`, t.name, grantColumns(t))
	grant, err := scanGrant(kind, r.db.QueryRow(ctx, query, id, actorID, at))
	if errors.Is(err, ErrNotFound) {
		return Grant{}, ErrGrantNotFound
	}
	return grant, err
}

func (r *PGRepository) ListGrantsBySubject(ctx context.Context, kind GrantKind, subjectID int64, activeOnly bool) ([]Grant, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND ($2 = FALSE OR state = 'active') ORDER BY created_at, id`,
		grantColumns(t), t.name, t.subjectCol)
	rows, err := r.db.Query(ctx, query, subjectID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectGrants(kind, rows)
}

func (r *PGRepository) ListActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) ([]Grant, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND state = 'active' ORDER BY created_at, id`,
		grantColumns(t), t.name, t.targetCol)
	rows, err := r.db.Query(ctx, query, targetID)
	if err != nil {
		return nil, err
	}
	return collectGrants(kind, rows)
}

func (r *PGRepository) CountActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) (int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND state = 'active'`, t.name, t.targetCol)
	err = r.db.QueryRow(ctx, query, targetID).Scan(&n)
	return n, err
}

func (r *PGRepository) EffectiveRoleNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.state = 'active'
WHERE ur.user_id = $1 AND ur.state = 'active'
ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGRepository) EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.state = 'active'
JOIN role_permissions rp ON rp.role_id = r.id AND rp.state = 'active'
JOIN permissions p ON p.id = rp.permission_id AND p.state = 'active'
WHERE ur.user_id = $1 AND ur.state = 'active'
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ Repository = (*PGRepository)(nil)
