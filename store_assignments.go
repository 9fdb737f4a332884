package permkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// PRINCIPAL ASSIGNMENTS
// ============================================================================

// AssignRole assigns roles to a principal. Every reference resolves
// against the principal's guard before anything is written; with teams
// enabled the pivot rows bind to the active team. Assigning an already
// held role is a no-op.
//
// Assigning a role does not change the permission graph, so only the
// principal's relation snapshot is evicted, never the graph cache.
func (s *Service) AssignRole(ctx context.Context, principal Authorizable, refs ...RoleRef) error {
	guard := s.guardFor(principal, "")
	roles, err := s.resolveRoles(ctx, guard, refs)
	if err != nil {
		return err
	}

	team := s.activeTeam()
	assigned := make([]string, 0, len(roles))
	for _, role := range roles {
		pivot := &ModelHasRole{
			RoleID:    role.ID,
			ModelType: principal.ModelType(),
			ModelID:   principal.ModelID(),
			TeamID:    team,
		}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (role_id, model_type, model_id, team_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "AssignRole").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to assign role").
				WithRole(role.Name).
				WithModel(principal.ModelType(), principal.ModelID())
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			assigned = append(assigned, role.Name)
		}
	}

	if len(assigned) > 0 {
		s.cache.ForgetPrincipal(principal)
		s.auditAssignment(ctx, principal, auditKindRole, AuditActionAssigned, guard, assigned)
	}
	return nil
}

// RemoveRole removes roles from a principal under the active team.
func (s *Service) RemoveRole(ctx context.Context, principal Authorizable, refs ...RoleRef) error {
	guard := s.guardFor(principal, "")
	roles, err := s.resolveRoles(ctx, guard, refs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
		names = append(names, role.Name)
	}

	result, err := s.conn(ctx).NewDelete().
		Table("model_has_roles").
		Where("model_type = ? AND model_id = ? AND team_id = ?",
			principal.ModelType(), principal.ModelID(), s.activeTeam()).
		Where("role_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RemoveRole").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to remove roles").
			WithModel(principal.ModelType(), principal.ModelID())
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		s.cache.ForgetPrincipal(principal)
		s.auditAssignment(ctx, principal, auditKindRole, AuditActionRevoked, guard, names)
	}
	return nil
}

// SyncRoles makes the principal's role set exactly the given references,
// under the active team. Only the symmetric difference is written.
func (s *Service) SyncRoles(ctx context.Context, principal Authorizable, refs ...RoleRef) error {
	guard := s.guardFor(principal, "")
	roles, err := s.resolveRoles(ctx, guard, refs)
	if err != nil {
		return err
	}

	current, err := s.assignedIDs(ctx, "model_has_roles", "role_id", principal)
	if err != nil {
		return err
	}

	team := s.activeTeam()
	wanted := make(map[string]*Role, len(roles))
	for _, role := range roles {
		wanted[role.ID] = role
	}

	var toAttach []*ModelHasRole
	for id := range wanted {
		if _, ok := current[id]; !ok {
			toAttach = append(toAttach, &ModelHasRole{
				RoleID:    id,
				ModelType: principal.ModelType(),
				ModelID:   principal.ModelID(),
				TeamID:    team,
			})
		}
	}
	var toDetach []string
	for id := range current {
		if _, ok := wanted[id]; !ok {
			toDetach = append(toDetach, id)
		}
	}

	if len(toAttach) == 0 && len(toDetach) == 0 {
		return nil
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if len(toAttach) > 0 {
			result, err := s.conn(ctx).NewInsert().Model(&toAttach).Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncRolesAttach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to attach roles").
					WithModel(principal.ModelType(), principal.ModelID())
			}
		}
		if len(toDetach) > 0 {
			result, err := s.conn(ctx).NewDelete().
				Table("model_has_roles").
				Where("model_type = ? AND model_id = ? AND team_id = ?",
					principal.ModelType(), principal.ModelID(), team).
				Where("role_id IN (?)", bun.In(toDetach)).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncRolesDetach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to detach roles").
					WithModel(principal.ModelType(), principal.ModelID())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.ForgetPrincipal(principal)
	names := make([]string, 0, len(wanted))
	for _, role := range wanted {
		names = append(names, role.Name)
	}
	s.auditSync(ctx, principal, auditKindRole, guard, s.roleNamesByID(ctx, current), names)
	return nil
}

// GivePermissionTo grants permissions directly to a principal.
func (s *Service) GivePermissionTo(ctx context.Context, principal Authorizable, refs ...PermissionRef) error {
	guard := s.guardFor(principal, "")
	permissions, err := s.resolvePermissions(ctx, guard, refs)
	if err != nil {
		return err
	}

	team := s.activeTeam()
	granted := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		pivot := &ModelHasPermission{
			PermissionID: permission.ID,
			ModelType:    principal.ModelType(),
			ModelID:      principal.ModelID(),
			TeamID:       team,
		}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (permission_id, model_type, model_id, team_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "GivePermissionTo").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to grant permission").
				WithPermission(permission.Name).
				WithModel(principal.ModelType(), principal.ModelID())
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			granted = append(granted, permission.Name)
		}
	}

	if len(granted) > 0 {
		s.cache.ForgetPrincipal(principal)
		s.auditAssignment(ctx, principal, auditKindPermission, AuditActionGranted, guard, granted)
	}
	return nil
}

// RevokePermissionTo revokes direct permissions from a principal under
// the active team.
func (s *Service) RevokePermissionTo(ctx context.Context, principal Authorizable, refs ...PermissionRef) error {
	guard := s.guardFor(principal, "")
	permissions, err := s.resolvePermissions(ctx, guard, refs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(permissions))
	names := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		ids = append(ids, permission.ID)
		names = append(names, permission.Name)
	}

	result, err := s.conn(ctx).NewDelete().
		Table("model_has_permissions").
		Where("model_type = ? AND model_id = ? AND team_id = ?",
			principal.ModelType(), principal.ModelID(), s.activeTeam()).
		Where("permission_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RevokePermissionTo").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to revoke permissions").
			WithModel(principal.ModelType(), principal.ModelID())
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		s.cache.ForgetPrincipal(principal)
		s.auditAssignment(ctx, principal, auditKindPermission, AuditActionRevoked, guard, names)
	}
	return nil
}

// SyncPermissions makes the principal's direct permission set exactly the
// given references, under the active team. Only the symmetric difference
// is written: syncing the same set twice issues no writes the second
// time, and syncing an empty list detaches everything.
func (s *Service) SyncPermissions(ctx context.Context, principal Authorizable, refs ...PermissionRef) error {
	guard := s.guardFor(principal, "")
	permissions, err := s.resolvePermissions(ctx, guard, refs)
	if err != nil {
		return err
	}

	current, err := s.assignedIDs(ctx, "model_has_permissions", "permission_id", principal)
	if err != nil {
		return err
	}

	team := s.activeTeam()
	wanted := make(map[string]*Permission, len(permissions))
	for _, permission := range permissions {
		wanted[permission.ID] = permission
	}

	var toAttach []*ModelHasPermission
	for id := range wanted {
		if _, ok := current[id]; !ok {
			toAttach = append(toAttach, &ModelHasPermission{
				PermissionID: id,
				ModelType:    principal.ModelType(),
				ModelID:      principal.ModelID(),
				TeamID:       team,
			})
		}
	}
	var toDetach []string
	for id := range current {
		if _, ok := wanted[id]; !ok {
			toDetach = append(toDetach, id)
		}
	}

	if len(toAttach) == 0 && len(toDetach) == 0 {
		return nil
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if len(toAttach) > 0 {
			result, err := s.conn(ctx).NewInsert().Model(&toAttach).Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncPermissionsAttach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to attach permissions").
					WithModel(principal.ModelType(), principal.ModelID())
			}
		}
		if len(toDetach) > 0 {
			result, err := s.conn(ctx).NewDelete().
				Table("model_has_permissions").
				Where("model_type = ? AND model_id = ? AND team_id = ?",
					principal.ModelType(), principal.ModelID(), team).
				Where("permission_id IN (?)", bun.In(toDetach)).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncPermissionsDetach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to detach permissions").
					WithModel(principal.ModelType(), principal.ModelID())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.ForgetPrincipal(principal)
	names := make([]string, 0, len(wanted))
	for _, permission := range wanted {
		names = append(names, permission.Name)
	}
	s.auditSync(ctx, principal, auditKindPermission, guard, s.permissionNamesByID(ctx, current), names)
	return nil
}

// SyncRoleModels makes the set of principals of one model type holding a
// role exactly the given ids, under the active team.
func (s *Service) SyncRoleModels(ctx context.Context, role *Role, modelType string, modelIDs []string) error {
	var current []string
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(
		"SELECT model_id FROM model_has_roles WHERE role_id = ? AND model_type = ? AND team_id = ?",
		role.ID, modelType, s.activeTeam()).
		Scan(ctx, &current), "SyncRoleModelsCurrent").Err()
	if err != nil {
		return NewError(ErrDatabaseError, "failed to load role members").WithRole(role.Name)
	}

	team := s.activeTeam()
	wanted := make(map[string]struct{}, len(modelIDs))
	for _, id := range modelIDs {
		wanted[id] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	var toAttach []*ModelHasRole
	for id := range wanted {
		if _, ok := currentSet[id]; !ok {
			toAttach = append(toAttach, &ModelHasRole{
				RoleID:    role.ID,
				ModelType: modelType,
				ModelID:   id,
				TeamID:    team,
			})
		}
	}
	var toDetach []string
	for id := range currentSet {
		if _, ok := wanted[id]; !ok {
			toDetach = append(toDetach, id)
		}
	}

	if len(toAttach) == 0 && len(toDetach) == 0 {
		return nil
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if len(toAttach) > 0 {
			result, err := s.conn(ctx).NewInsert().Model(&toAttach).Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncRoleModelsAttach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to attach role members").WithRole(role.Name)
			}
		}
		if len(toDetach) > 0 {
			result, err := s.conn(ctx).NewDelete().
				Table("model_has_roles").
				Where("role_id = ? AND model_type = ? AND team_id = ?", role.ID, modelType, team).
				Where("model_id IN (?)", bun.In(toDetach)).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncRoleModelsDetach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to detach role members").WithRole(role.Name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, pivot := range toAttach {
		s.cache.ForgetPrincipal(Principal{Type: pivot.ModelType, ID: pivot.ModelID})
	}
	for _, id := range toDetach {
		s.cache.ForgetPrincipal(Principal{Type: modelType, ID: id})
	}
	return nil
}

// RoleMembers returns the (model_type, model_id) pairs holding a role
// under the active team.
func (s *Service) RoleMembers(ctx context.Context, role *Role) ([]Principal, error) {
	var pivots []ModelHasRole
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&pivots).
		Where("role_id = ? AND team_id = ?", role.ID, s.activeTeam()).
		Scan(ctx), "RoleMembers").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load role members").WithRole(role.Name)
	}
	members := make([]Principal, 0, len(pivots))
	for _, pivot := range pivots {
		members = append(members, Principal{Type: pivot.ModelType, ID: pivot.ModelID})
	}
	return members, nil
}

// FlushPrincipal removes every role, permission and group assignment of a
// principal across all teams. Call it when the principal is hard-deleted;
// soft deletion should leave the rows in place.
func (s *Service) FlushPrincipal(ctx context.Context, principal Authorizable) error {
	err := s.Transaction(ctx, func(ctx context.Context) error {
		for _, table := range []string{"model_has_roles", "model_has_permissions", "model_has_groups"} {
			result, err := s.conn(ctx).NewDelete().
				Table(table).
				Where("model_type = ? AND model_id = ?", principal.ModelType(), principal.ModelID()).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "FlushPrincipal").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to flush principal assignments").
					WithModel(principal.ModelType(), principal.ModelID())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.ForgetPrincipal(principal)
	return nil
}

// assignedIDs returns the pivot entity ids currently attached to a
// principal under the active team.
func (s *Service) assignedIDs(ctx context.Context, table, column string, principal Authorizable) (map[string]struct{}, error) {
	var ids []string
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(
		"SELECT "+column+" FROM "+table+" WHERE model_type = ? AND model_id = ? AND team_id = ?",
		principal.ModelType(), principal.ModelID(), s.activeTeam()).
		Scan(ctx, &ids), "AssignedIDs").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load assignments").
			WithModel(principal.ModelType(), principal.ModelID())
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
