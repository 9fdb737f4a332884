package permkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// GROUPS
// ============================================================================

// CreateGroup creates a group. Returns ErrGroupAlreadyExists when
// (name, guard) is taken.
func (s *Service) CreateGroup(ctx context.Context, name, guard string) (*Group, error) {
	guard = s.cfg.guardOrDefault(guard)
	group := &Group{Name: name, GuardName: guard}

	result, err := s.conn(ctx).NewInsert().Model(group).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateGroup").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return nil, NewError(ErrGroupAlreadyExists, "a group with this name already exists for this guard").
				WithGuard(guard)
		}
		return nil, NewError(ErrDatabaseError, "failed to create group").WithGuard(guard)
	}
	return group, nil
}

// FindGroupByName finds a group by (name, guard).
func (s *Service) FindGroupByName(ctx context.Context, name, guard string) (*Group, error) {
	guard = s.cfg.guardOrDefault(guard)
	var group Group
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&group).
		Where("name = ? AND guard_name = ?", name, guard).
		Limit(1).
		Scan(ctx), "FindGroupByName").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrGroupDoesNotExist, "no group with this name for this guard").
				WithGuard(guard)
		}
		return nil, NewError(ErrDatabaseError, "failed to find group").WithGuard(guard)
	}
	return &group, nil
}

// DeleteGroup removes a group. Pivot rows cascade.
func (s *Service) DeleteGroup(ctx context.Context, ref GroupRef) error {
	group, err := s.resolveGroup(ctx, "", ref)
	if err != nil {
		return err
	}

	result, err := s.conn(ctx).NewDelete().Table("groups").Where("id = ?", group.ID).Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeleteGroup").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to delete group")
	}
	return nil
}

// GrantToGroup attaches permissions to a group.
func (s *Service) GrantToGroup(ctx context.Context, group *Group, refs ...PermissionRef) error {
	permissions, err := s.resolvePermissions(ctx, group.GuardName, refs)
	if err != nil {
		return err
	}

	for _, permission := range permissions {
		pivot := &GroupHasPermission{PermissionID: permission.ID, GroupID: group.ID}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (permission_id, group_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "GrantToGroup").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to attach permission to group").
				WithPermission(permission.Name)
		}
	}
	return nil
}

// RevokeFromGroup detaches permissions from a group.
func (s *Service) RevokeFromGroup(ctx context.Context, group *Group, refs ...PermissionRef) error {
	permissions, err := s.resolvePermissions(ctx, group.GuardName, refs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		ids = append(ids, permission.ID)
	}

	result, err := s.conn(ctx).NewDelete().
		Table("group_has_permissions").
		Where("group_id = ?", group.ID).
		Where("permission_id IN (?)", bun.In(ids)).
		Exec(ctx)
	return dbkit.WithErr(result, err, "RevokeFromGroup").Err()
}

// AddRoleToGroup attaches roles to a group; principals in the group
// inherit the roles' permissions.
func (s *Service) AddRoleToGroup(ctx context.Context, group *Group, refs ...RoleRef) error {
	roles, err := s.resolveRoles(ctx, group.GuardName, refs)
	if err != nil {
		return err
	}

	for _, role := range roles {
		pivot := &GroupHasRole{RoleID: role.ID, GroupID: group.ID}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (role_id, group_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "AddRoleToGroup").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to attach role to group").
				WithRole(role.Name)
		}
	}
	return nil
}

// AddToGroup places a principal in groups. The guard of every group must
// match the principal's guard.
func (s *Service) AddToGroup(ctx context.Context, principal Authorizable, refs ...GroupRef) error {
	guard := s.guardFor(principal, "")
	team := s.activeTeam()

	groups := make([]*Group, 0, len(refs))
	for _, ref := range refs {
		group, err := s.resolveGroup(ctx, guard, ref)
		if err != nil {
			return err
		}
		if group.GuardName != guard {
			return NewError(ErrGuardMismatch, "group belongs to another guard").
				WithGuard(guard).
				WithModel(principal.ModelType(), principal.ModelID())
		}
		groups = append(groups, group)
	}

	for _, group := range groups {
		pivot := &ModelHasGroup{
			GroupID:   group.ID,
			ModelType: principal.ModelType(),
			ModelID:   principal.ModelID(),
			TeamID:    team,
		}
		result, err := s.conn(ctx).NewInsert().
			Model(pivot).
			On("CONFLICT (group_id, model_type, model_id, team_id) DO NOTHING").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "AddToGroup").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to add principal to group").
				WithModel(principal.ModelType(), principal.ModelID())
		}
	}

	s.cache.ForgetPrincipal(principal)
	return nil
}

// RemoveFromGroup removes a principal from groups under the active team.
func (s *Service) RemoveFromGroup(ctx context.Context, principal Authorizable, refs ...GroupRef) error {
	guard := s.guardFor(principal, "")

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		group, err := s.resolveGroup(ctx, guard, ref)
		if err != nil {
			return err
		}
		ids = append(ids, group.ID)
	}

	result, err := s.conn(ctx).NewDelete().
		Table("model_has_groups").
		Where("model_type = ? AND model_id = ? AND team_id = ?",
			principal.ModelType(), principal.ModelID(), s.activeTeam()).
		Where("group_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RemoveFromGroup").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to remove principal from groups").
			WithModel(principal.ModelType(), principal.ModelID())
	}

	s.cache.ForgetPrincipal(principal)
	return nil
}

// resolveGroup resolves one group reference.
func (s *Service) resolveGroup(ctx context.Context, guard string, ref GroupRef) (*Group, error) {
	switch {
	case ref.entity != nil:
		return ref.entity, nil
	case ref.name != "":
		return s.FindGroupByName(ctx, ref.name, guard)
	case ref.id != "":
		var group Group
		err := dbkit.WithErr1(s.conn(ctx).NewSelect().
			Model(&group).
			Where("id = ?", ref.id).
			Limit(1).
			Scan(ctx), "FindGroupByID").Err()
		if err != nil {
			if dbkit.IsNotFound(err) {
				return nil, NewError(ErrGroupDoesNotExist, "no group with this id")
			}
			return nil, NewError(ErrDatabaseError, "failed to find group")
		}
		return &group, nil
	default:
		return nil, NewError(ErrWildcardInvalidArgument, "empty group reference")
	}
}

// principalGroupIDs returns the group ids a principal belongs to under
// the active team, guard filtered.
func (s *Service) principalGroupIDs(ctx context.Context, principal Authorizable, guard string) ([]string, error) {
	var ids []string
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(`
        SELECT g.id FROM groups g
        JOIN model_has_groups mhg ON mhg.group_id = g.id
        WHERE mhg.model_type = ? AND mhg.model_id = ? AND mhg.team_id = ? AND g.guard_name = ?`,
		principal.ModelType(), principal.ModelID(), s.activeTeam(), guard).
		Scan(ctx, &ids), "PrincipalGroupIDs").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load principal groups").
			WithModel(principal.ModelType(), principal.ModelID())
	}
	return ids, nil
}

// groupPermissionRefs returns the (id, name, guard) permission tuples a
// set of groups grants directly.
func (s *Service) groupPermissionRefs(ctx context.Context, groupIDs []string) ([]EntityRef, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var refs []EntityRef
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(`
        SELECT DISTINCT p.id, p.name, p.guard_name AS guard FROM permissions p
        JOIN group_has_permissions ghp ON ghp.permission_id = p.id
        WHERE ghp.group_id IN (?)`, bun.In(groupIDs)).
		Scan(ctx, &refs), "GroupPermissionRefs").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load group permissions")
	}
	return refs, nil
}

// groupRoleIDs returns the role ids a set of groups carries.
func (s *Service) groupRoleIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := dbkit.WithErr1(s.conn(ctx).NewRaw(
		"SELECT DISTINCT role_id FROM group_has_roles WHERE group_id IN (?)", bun.In(groupIDs)).
		Scan(ctx, &ids), "GroupRoleIDs").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to load group roles")
	}
	return ids, nil
}
