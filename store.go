package permkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// loadGraph is the cache's fall-through: the full permission graph from
// the store in three selects, with permission->role links rebuilt against
// shared *Role instances.
func (s *Service) loadGraph(ctx context.Context) ([]*Permission, []*Role, error) {
	var permissions []*Permission
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&permissions).
		Order("name ASC").
		Scan(ctx), "LoadPermissions").Err()
	if err != nil {
		return nil, nil, NewError(ErrDatabaseError, "failed to load permissions")
	}

	var roles []*Role
	err = dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&roles).
		Order("name ASC").
		Scan(ctx), "LoadRoles").Err()
	if err != nil {
		return nil, nil, NewError(ErrDatabaseError, "failed to load roles")
	}

	var pivots []RoleHasPermission
	err = dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&pivots).
		Scan(ctx), "LoadRolePermissions").Err()
	if err != nil {
		return nil, nil, NewError(ErrDatabaseError, "failed to load role permission links")
	}

	rolesByID := make(map[string]*Role, len(roles))
	for _, role := range roles {
		rolesByID[role.ID] = role
	}
	permissionsByID := make(map[string]*Permission, len(permissions))
	for _, permission := range permissions {
		permission.Roles = nil
		permissionsByID[permission.ID] = permission
	}
	for _, pivot := range pivots {
		permission, ok := permissionsByID[pivot.PermissionID]
		if !ok {
			continue
		}
		if role, ok := rolesByID[pivot.RoleID]; ok {
			permission.Roles = append(permission.Roles, role)
		}
	}

	return permissions, roles, nil
}

// rolesForPrincipal loads the principal's role tuples from the store:
// team-scoped pivot rows plus globally visible roles assigned without a
// team, guard filtered.
func (s *Service) rolesForPrincipal(ctx context.Context, principal Authorizable, guard, teamID string) ([]EntityRef, error) {
	var refs []EntityRef
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(`
        SELECT DISTINCT r.id, r.name, r.guard_name AS guard FROM roles r
        JOIN model_has_roles mhr ON mhr.role_id = r.id
        WHERE mhr.model_type = ? AND mhr.model_id = ? AND r.guard_name = ?
          AND (mhr.team_id = ? OR r.team_id IS NULL)`,
		principal.ModelType(), principal.ModelID(), guard, teamID).
		Scan(ctx, &refs), "RolesForPrincipal").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load principal roles").
			WithModel(principal.ModelType(), principal.ModelID())
	}
	sortRefsByName(refs)
	return refs, nil
}

// permissionsForPrincipal loads the principal's direct permission tuples
// from the store, guard and team filtered.
func (s *Service) permissionsForPrincipal(ctx context.Context, principal Authorizable, guard, teamID string) ([]EntityRef, error) {
	var refs []EntityRef
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(`
        SELECT DISTINCT p.id, p.name, p.guard_name AS guard FROM permissions p
        JOIN model_has_permissions mhp ON mhp.permission_id = p.id
        WHERE mhp.model_type = ? AND mhp.model_id = ? AND p.guard_name = ? AND mhp.team_id = ?`,
		principal.ModelType(), principal.ModelID(), guard, teamID).
		Scan(ctx, &refs), "PermissionsForPrincipal").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load principal permissions").
			WithModel(principal.ModelType(), principal.ModelID())
	}
	sortRefsByName(refs)
	return refs, nil
}

// CountPermissions returns the number of stored permissions.
func (s *Service) CountPermissions(ctx context.Context) (int, error) {
	return dbkit.Count[Permission](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}

// CountRoles returns the number of stored roles.
func (s *Service) CountRoles(ctx context.Context) (int, error) {
	return dbkit.Count[Role](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}
