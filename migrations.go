package permkit

import (
	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required for PermKit.
// Use db.Migrate(ctx, service.Migrations()) to run migrations.
//
// Principal pivot rows cascade when their permission, role or group is
// hard-deleted. Principals themselves are not our tables: soft-deleting a
// principal leaves its pivot rows in place; on hard delete call
// FlushPrincipal to mirror the cascade.
func (s *Service) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "permkit-001",
			Description: "Create permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL,
                    guard_name TEXT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (name, guard_name)
                )`,
		},
		{
			ID:          "permkit-002",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL,
                    guard_name TEXT NOT NULL,
                    team_id TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE NULLS NOT DISTINCT (name, guard_name, team_id)
                )`,
		},
		{
			ID:          "permkit-003",
			Description: "Create groups table",
			SQL: `
                CREATE TABLE IF NOT EXISTS groups (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL,
                    guard_name TEXT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (name, guard_name)
                )`,
		},
		{
			ID:          "permkit-004",
			Description: "Create role_has_permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_has_permissions (
                    permission_id UUID NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
                    role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    PRIMARY KEY (permission_id, role_id)
                )`,
		},
		{
			ID:          "permkit-005",
			Description: "Create group_has_permissions and group_has_roles tables",
			SQL: `
                CREATE TABLE IF NOT EXISTS group_has_permissions (
                    permission_id UUID NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
                    group_id UUID NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
                    PRIMARY KEY (permission_id, group_id)
                );
                CREATE TABLE IF NOT EXISTS group_has_roles (
                    role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    group_id UUID NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
                    PRIMARY KEY (role_id, group_id)
                )`,
		},
		{
			ID:          "permkit-006",
			Description: "Create model_has_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS model_has_roles (
                    role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    model_type TEXT NOT NULL,
                    model_id TEXT NOT NULL,
                    team_id TEXT NOT NULL DEFAULT '',
                    PRIMARY KEY (role_id, model_type, model_id, team_id)
                );
                CREATE INDEX IF NOT EXISTS model_has_roles_model_idx
                    ON model_has_roles (model_type, model_id)`,
		},
		{
			ID:          "permkit-007",
			Description: "Create model_has_permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS model_has_permissions (
                    permission_id UUID NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
                    model_type TEXT NOT NULL,
                    model_id TEXT NOT NULL,
                    team_id TEXT NOT NULL DEFAULT '',
                    PRIMARY KEY (permission_id, model_type, model_id, team_id)
                );
                CREATE INDEX IF NOT EXISTS model_has_permissions_model_idx
                    ON model_has_permissions (model_type, model_id)`,
		},
		{
			ID:          "permkit-008",
			Description: "Create model_has_groups table",
			SQL: `
                CREATE TABLE IF NOT EXISTS model_has_groups (
                    group_id UUID NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
                    model_type TEXT NOT NULL,
                    model_id TEXT NOT NULL,
                    team_id TEXT NOT NULL DEFAULT '',
                    PRIMARY KEY (group_id, model_type, model_id, team_id)
                )`,
		},
		{
			ID:          "permkit-009",
			Description: "Create access_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS access_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    model_type TEXT NOT NULL,
                    model_id TEXT NOT NULL,
                    entity_kind TEXT NOT NULL,
                    entity_names TEXT[],
                    guard_name TEXT,
                    team_id TEXT,
                    previous_names TEXT[],
                    new_names TEXT[],
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
	}
}
