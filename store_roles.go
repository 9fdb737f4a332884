package permkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// ROLE CRUD
// ============================================================================

// CreateRole creates a role. With teams enabled the role binds to the
// active team; use CreateGlobalRole for a role visible under every team.
// Returns ErrRoleAlreadyExists when (name, guard, team) is taken.
func (s *Service) CreateRole(ctx context.Context, name, guard string) (*Role, error) {
	return s.createRole(ctx, name, guard, s.activeTeam())
}

// CreateGlobalRole creates a role not scoped to any team.
func (s *Service) CreateGlobalRole(ctx context.Context, name, guard string) (*Role, error) {
	return s.createRole(ctx, name, guard, "")
}

func (s *Service) createRole(ctx context.Context, name, guard, teamID string) (*Role, error) {
	guard = s.cfg.guardOrDefault(guard)
	role := &Role{Name: name, GuardName: guard, TeamID: teamID}

	result, err := s.conn(ctx).NewInsert().Model(role).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateRole").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return nil, NewError(ErrRoleAlreadyExists, "a role with this name already exists for this guard and team").
				WithRole(name).
				WithGuard(guard).
				WithTeam(teamID)
		}
		return nil, NewError(ErrDatabaseError, "failed to create role").
			WithRole(name).
			WithGuard(guard)
	}

	s.cache.Forget(ctx)
	return role, nil
}

// FindRoleByName finds a role by (name, guard) through the cached graph.
// With teams enabled, a role scoped to the active team wins over a global
// role of the same name.
func (s *Service) FindRoleByName(ctx context.Context, name, guard string) (*Role, error) {
	guard = s.cfg.guardOrDefault(guard)
	roles, err := s.cache.Roles(ctx)
	if err != nil {
		return nil, err
	}

	team := s.activeTeam()
	var global *Role
	for _, r := range roles {
		if r.Name != name || r.GuardName != guard {
			continue
		}
		if r.TeamID == team && team != "" {
			return r, nil
		}
		if r.IsGlobal() {
			global = r
		}
	}
	if global != nil {
		return global, nil
	}
	return nil, NewError(ErrRoleDoesNotExist, "no role with this name for this guard").
		WithRole(name).
		WithGuard(guard).
		WithTeam(team)
}

// FindRoleByID finds a role by id through the cached graph.
func (s *Service) FindRoleByID(ctx context.Context, id string) (*Role, error) {
	roles, err := s.cache.Roles(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, NewError(ErrRoleDoesNotExist, "no role with this id")
}

// FindOrCreateRole finds a role by (name, guard, active team), creating
// it when absent. Idempotent.
func (s *Service) FindOrCreateRole(ctx context.Context, name, guard string) (*Role, error) {
	role, err := s.FindRoleByName(ctx, name, guard)
	if err == nil {
		return role, nil
	}
	if !IsDoesNotExist(err) {
		return nil, err
	}

	role, err = s.CreateRole(ctx, name, guard)
	if err == nil {
		return role, nil
	}
	if IsAlreadyExists(err) {
		return s.FindRoleByName(ctx, name, guard)
	}
	return nil, err
}

// RenameRole changes a role's name and invalidates the caches.
func (s *Service) RenameRole(ctx context.Context, role *Role, newName string) error {
	result, err := s.conn(ctx).NewUpdate().
		Table("roles").
		Set("name = ?", newName).
		Set("updated_at = current_timestamp").
		Where("id = ?", role.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RenameRole").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrRoleAlreadyExists, "a role with this name already exists for this guard and team").
				WithRole(newName).
				WithGuard(role.GuardName)
		}
		return NewError(ErrDatabaseError, "failed to rename role").WithRole(role.Name)
	}

	role.Name = newName
	s.cache.Forget(ctx)
	return nil
}

// DeleteRole removes a role. Pivot rows cascade.
func (s *Service) DeleteRole(ctx context.Context, ref RoleRef) error {
	role, err := s.resolveRole(ctx, "", ref, false)
	if err != nil {
		return err
	}

	result, err := s.conn(ctx).NewDelete().Table("roles").Where("id = ?", role.ID).Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeleteRole").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to delete role").WithRole(role.Name)
	}

	s.cache.Forget(ctx)
	return nil
}

// ============================================================================
// ROLE <-> PERMISSION PIVOTS
// ============================================================================

// GrantToRole attaches permissions to a role. References resolve against
// the role's guard; a resolved entity under another guard fails with
// ErrGuardMismatch before anything is written. Granting an already
// attached permission is a no-op.
func (s *Service) GrantToRole(ctx context.Context, role *Role, refs ...PermissionRef) error {
	permissions, err := s.resolvePermissions(ctx, role.GuardName, refs)
	if err != nil {
		return err
	}

	attached, err := s.rolePermissionIDs(ctx, role.ID)
	if err != nil {
		return err
	}

	granted := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		if _, ok := attached[permission.ID]; ok {
			continue
		}
		pivot := &RoleHasPermission{PermissionID: permission.ID, RoleID: role.ID}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (permission_id, role_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "GrantToRole").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to attach permission to role").
				WithRole(role.Name).
				WithPermission(permission.Name)
		}
		granted = append(granted, permission.Name)
	}

	if len(granted) > 0 {
		s.cache.Forget(ctx)
		s.auditRoleGrant(ctx, role, AuditActionGranted, granted)
	}
	return nil
}

// RevokeFromRole detaches permissions from a role. Revoking a permission
// the role does not hold is a no-op.
func (s *Service) RevokeFromRole(ctx context.Context, role *Role, refs ...PermissionRef) error {
	permissions, err := s.resolvePermissions(ctx, role.GuardName, refs)
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
		Table("role_has_permissions").
		Where("role_id = ?", role.ID).
		Where("permission_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RevokeFromRole").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to detach permissions from role").
			WithRole(role.Name)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.cache.Forget(ctx)
		s.auditRoleGrant(ctx, role, AuditActionRevoked, names)
	}
	return nil
}

// SyncRolePermissions makes the role's permission set exactly the given
// references. Only the symmetric difference against current pivot rows is
// written: syncing twice in a row issues no statements the second time,
// and syncing an empty list detaches everything.
func (s *Service) SyncRolePermissions(ctx context.Context, role *Role, refs ...PermissionRef) error {
	permissions, err := s.resolvePermissions(ctx, role.GuardName, refs)
	if err != nil {
		return err
	}

	attached, err := s.rolePermissionIDs(ctx, role.ID)
	if err != nil {
		return err
	}

	wanted := make(map[string]*Permission, len(permissions))
	for _, permission := range permissions {
		wanted[permission.ID] = permission
	}

	var toAttach []*RoleHasPermission
	for id := range wanted {
		if _, ok := attached[id]; !ok {
			toAttach = append(toAttach, &RoleHasPermission{PermissionID: id, RoleID: role.ID})
		}
	}
	var toDetach []string
	for id := range attached {
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
			if err := dbkit.WithErr(result, err, "SyncRolePermissionsAttach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to attach permissions").WithRole(role.Name)
			}
		}
		if len(toDetach) > 0 {
			result, err := s.conn(ctx).NewDelete().
				Table("role_has_permissions").
				Where("role_id = ?", role.ID).
				Where("permission_id IN (?)", bun.In(toDetach)).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "SyncRolePermissionsDetach").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to detach permissions").WithRole(role.Name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Forget(ctx)
	names := make([]string, 0, len(wanted))
	for _, permission := range wanted {
		names = append(names, permission.Name)
	}
	s.auditRoleSync(ctx, role, s.permissionNamesByID(ctx, attached), names)
	return nil
}

// RolePermissions returns the permissions attached to a role, from the
// cached graph.
func (s *Service) RolePermissions(ctx context.Context, role *Role) ([]*Permission, error) {
	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Permission
	for _, permission := range permissions {
		for _, linked := range permission.Roles {
			if linked.ID == role.ID {
				out = append(out, permission)
				break
			}
		}
	}
	sortPermissionsByName(out)
	return out, nil
}

// resolveRole resolves one reference to a stored role, mirroring
// resolvePermission's guard semantics.
func (s *Service) resolveRole(ctx context.Context, guard string, ref RoleRef, checkGuard bool) (*Role, error) {
	switch {
	case ref.entity != nil:
		if checkGuard && ref.entity.GuardName != guard {
			return nil, NewError(ErrGuardMismatch, "role belongs to another guard").
				WithRole(ref.entity.Name).
				WithGuard(guard)
		}
		return ref.entity, nil
	case ref.name != "":
		return s.FindRoleByName(ctx, ref.name, guard)
	case ref.id != "":
		role, err := s.FindRoleByID(ctx, ref.id)
		if err != nil {
			return nil, err
		}
		if checkGuard && role.GuardName != guard {
			return nil, NewError(ErrGuardMismatch, "role belongs to another guard").
				WithRole(role.Name).
				WithGuard(guard)
		}
		return role, nil
	default:
		return nil, NewError(ErrWildcardInvalidArgument, "empty role reference")
	}
}

// resolveRoles resolves a heterogeneous reference list up front.
func (s *Service) resolveRoles(ctx context.Context, guard string, refs []RoleRef) ([]*Role, error) {
	roles := make([]*Role, 0, len(refs))
	for _, ref := range refs {
		role, err := s.resolveRole(ctx, guard, ref, true)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// rolePermissionIDs returns the ids currently attached to a role.
func (s *Service) rolePermissionIDs(ctx context.Context, roleID string) (map[string]struct{}, error) {
	var ids []string
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(
		"SELECT permission_id FROM role_has_permissions WHERE role_id = ?", roleID).
		Scan(ctx, &ids), "RolePermissionIDs").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load role permissions")
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
