package rbac

// Migrations creates the grant store schema. The users table must exist first.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'revoked')),
		created_by  BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by  BIGINT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_by  BIGINT,
		revoked_at  TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS roles_name_active_key ON roles (name) WHERE state = 'active'`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		resource    TEXT NOT NULL DEFAULT '',
		action      TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'revoked')),
		created_by  BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by  BIGINT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_by  BIGINT,
		revoked_at  TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS permissions_name_active_key ON permissions (name) WHERE state = 'active'`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users (id),
		role_id     BIGINT NOT NULL REFERENCES roles (id),
		state       TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'revoked')),
		created_by  BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by  BIGINT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_by  BIGINT,
		revoked_at  TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS user_roles_active_key ON user_roles (user_id, role_id) WHERE state = 'active'`,
	`CREATE INDEX IF NOT EXISTS user_roles_user_idx ON user_roles (user_id)`,
	`CREATE INDEX IF NOT EXISTS user_roles_role_idx ON user_roles (role_id)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		id            BIGSERIAL PRIMARY KEY,
		role_id       BIGINT NOT NULL REFERENCES roles (id),
		permission_id BIGINT NOT NULL REFERENCES permissions (id),
		state         TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'revoked')),
		created_by    BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by    BIGINT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_by    BIGINT,
		revoked_at    TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS role_permissions_active_key ON role_permissions (role_id, permission_id) WHERE state = 'active'`,
	`CREATE INDEX IF NOT EXISTS role_permissions_role_idx ON role_permissions (role_id)`,
	`CREATE INDEX IF NOT EXISTS role_permissions_permission_idx ON role_permissions (permission_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		actor_id    BIGINT NOT NULL,
		action      TEXT NOT NULL,
		entity      TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		meta        JSONB,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity, entity_id)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		id          TEXT PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users (id),
		ip          TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at  TIMESTAMPTZ NOT NULL,
		ended_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS user_sessions_user_idx ON user_sessions (user_id)`,
}
