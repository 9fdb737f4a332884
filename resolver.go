package permkit

import (
	"context"
)

// ============================================================================
// PERMISSION CHECKS
// ============================================================================

// HasPermission reports whether a principal holds a permission: directly,
// through a role, or through a group, checked in that order with
// short-circuiting. An empty guard derives the guard from the principal.
//
// A plain denial is (false, nil). Errors are reserved for inconsistent
// data: in exact mode an unknown permission name for the resolved guard
// returns ErrPermissionDoesNotExist; in wildcard mode a malformed held
// pattern returns ErrWildcardNotProperlyFormatted.
func (s *Service) HasPermission(ctx context.Context, principal Authorizable, permission, guard string) (bool, error) {
	guard = s.guardFor(principal, guard)

	if !s.cfg.Wildcards {
		// Unknown names fail loud, cross-guard included.
		if _, err := s.FindPermissionByName(ctx, permission, guard); err != nil {
			return false, err
		}
	}

	// Direct grant first, it is the cheapest source.
	ok, err := s.hasDirectPermission(ctx, principal, permission, guard)
	if err != nil || ok {
		return ok, err
	}

	ok, err = s.hasPermissionViaRoles(ctx, principal, permission, guard)
	if err != nil || ok {
		return ok, err
	}

	return s.hasPermissionViaGroups(ctx, principal, permission, guard)
}

// HasDirectPermission reports whether the permission is granted to the
// principal directly, ignoring roles and groups.
func (s *Service) HasDirectPermission(ctx context.Context, principal Authorizable, permission, guard string) (bool, error) {
	guard = s.guardFor(principal, guard)
	if !s.cfg.Wildcards {
		if _, err := s.FindPermissionByName(ctx, permission, guard); err != nil {
			return false, err
		}
	}
	return s.hasDirectPermission(ctx, principal, permission, guard)
}

// HasAnyPermission reports whether the principal holds at least one of
// the permissions.
func (s *Service) HasAnyPermission(ctx context.Context, principal Authorizable, guard string, permissions ...string) (bool, error) {
	for _, permission := range permissions {
		ok, err := s.HasPermission(ctx, principal, permission, guard)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether the principal holds every one of the
// permissions.
func (s *Service) HasAllPermissions(ctx context.Context, principal Authorizable, guard string, permissions ...string) (bool, error) {
	for _, permission := range permissions {
		ok, err := s.HasPermission(ctx, principal, permission, guard)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) hasDirectPermission(ctx context.Context, principal Authorizable, permission, guard string) (bool, error) {
	held, err := s.directPermissionRefs(ctx, principal, guard)
	if err != nil {
		return false, err
	}
	return s.refsSatisfy(held, permission)
}

func (s *Service) hasPermissionViaRoles(ctx context.Context, principal Authorizable, permission, guard string) (bool, error) {
	held, err := s.permissionRefsViaRoles(ctx, principal, guard)
	if err != nil {
		return false, err
	}
	return s.refsSatisfy(held, permission)
}

func (s *Service) hasPermissionViaGroups(ctx context.Context, principal Authorizable, permission, guard string) (bool, error) {
	held, err := s.permissionRefsViaGroups(ctx, principal, guard)
	if err != nil {
		return false, err
	}
	return s.refsSatisfy(held, permission)
}

// refsSatisfy compares a requested permission against held tuples: exact
// name equality, or wildcard implication when wildcard mode is on. A
// plain name still participates in wildcard mode as a single-part
// pattern.
func (s *Service) refsSatisfy(held []EntityRef, requested string) (bool, error) {
	if !s.cfg.Wildcards {
		for _, ref := range held {
			if ref.Name == requested {
				return true, nil
			}
		}
		return false, nil
	}

	names := make([]string, 0, len(held))
	for _, ref := range held {
		names = append(names, ref.Name)
	}
	return s.matcher.ImpliesAny(names, requested)
}

// ============================================================================
// ROLE CHECKS
// ============================================================================

// HasRole reports whether the principal holds the role under the active
// team. Unknown role names return ErrRoleDoesNotExist.
func (s *Service) HasRole(ctx context.Context, principal Authorizable, ref RoleRef, guard string) (bool, error) {
	guard = s.guardFor(principal, guard)
	role, err := s.resolveRole(ctx, guard, ref, false)
	if err != nil {
		return false, err
	}

	held, err := s.roleRefs(ctx, principal, guard)
	if err != nil {
		return false, err
	}
	for _, r := range held {
		if r.ID == role.ID {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the principal holds at least one of the
// roles.
func (s *Service) HasAnyRole(ctx context.Context, principal Authorizable, guard string, refs ...RoleRef) (bool, error) {
	for _, ref := range refs {
		ok, err := s.HasRole(ctx, principal, ref, guard)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRoles reports whether the principal holds every one of the roles.
func (s *Service) HasAllRoles(ctx context.Context, principal Authorizable, guard string, refs ...RoleRef) (bool, error) {
	for _, ref := range refs {
		ok, err := s.HasRole(ctx, principal, ref, guard)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ============================================================================
// ENUMERATIONS
// ============================================================================

// GetRoles returns the principal's roles under the active team, sorted by
// name.
func (s *Service) GetRoles(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	guard = s.guardFor(principal, guard)
	return s.roleRefs(ctx, principal, guard)
}

// GetRoleNames returns the principal's role names under the active team.
func (s *Service) GetRoleNames(ctx context.Context, principal Authorizable, guard string) ([]string, error) {
	refs, err := s.GetRoles(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names, nil
}

// GetDirectPermissions returns permissions granted to the principal
// directly, sorted by name.
func (s *Service) GetDirectPermissions(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	guard = s.guardFor(principal, guard)
	return s.directPermissionRefs(ctx, principal, guard)
}

// GetPermissionsViaRoles returns permissions the principal inherits from
// its roles, de-duplicated and sorted by name.
func (s *Service) GetPermissionsViaRoles(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	guard = s.guardFor(principal, guard)
	return s.permissionRefsViaRoles(ctx, principal, guard)
}

// GetPermissionsViaGroups returns permissions the principal inherits from
// its groups, directly or through the groups' roles, de-duplicated and
// sorted by name.
func (s *Service) GetPermissionsViaGroups(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	guard = s.guardFor(principal, guard)
	return s.permissionRefsViaGroups(ctx, principal, guard)
}

// GetAllPermissions returns the principal's effective permissions: the
// de-duplicated union of direct, role-derived and group-derived grants,
// sorted by name.
func (s *Service) GetAllPermissions(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	guard = s.guardFor(principal, guard)

	direct, err := s.directPermissionRefs(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	viaRoles, err := s.permissionRefsViaRoles(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	viaGroups, err := s.permissionRefsViaGroups(ctx, principal, guard)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	union := make([]EntityRef, 0, len(direct)+len(viaRoles)+len(viaGroups))
	for _, refs := range [][]EntityRef{direct, viaRoles, viaGroups} {
		for _, ref := range refs {
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			union = append(union, ref)
		}
	}
	sortRefsByName(union)
	return union, nil
}

// ============================================================================
// RELATION LOADING (through the cache)
// ============================================================================

func (s *Service) roleRefs(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	team := s.activeTeam()
	return s.cache.principalRoles(principal, team, func() ([]EntityRef, error) {
		return s.rolesForPrincipal(ctx, principal, guard, team)
	})
}

func (s *Service) directPermissionRefs(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	team := s.activeTeam()
	return s.cache.principalPermissions(principal, team, func() ([]EntityRef, error) {
		return s.permissionsForPrincipal(ctx, principal, guard, team)
	})
}

// permissionRefsViaRoles maps the principal's roles to permissions
// through the cached graph, so no role-permission join hits the store.
func (s *Service) permissionRefsViaRoles(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	roles, err := s.roleRefs(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	roleIDs := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleIDs[role.ID] = struct{}{}
	}
	return s.graphPermissionsForRoles(ctx, roleIDs, guard)
}

func (s *Service) permissionRefsViaGroups(ctx context.Context, principal Authorizable, guard string) ([]EntityRef, error) {
	groupIDs, err := s.principalGroupIDs(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}

	direct, err := s.groupPermissionRefs(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	roleIDList, err := s.groupRoleIDs(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	roleIDs := make(map[string]struct{}, len(roleIDList))
	for _, id := range roleIDList {
		roleIDs[id] = struct{}{}
	}
	viaRoles, err := s.graphPermissionsForRoles(ctx, roleIDs, guard)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(direct)+len(viaRoles))
	union := make([]EntityRef, 0, len(direct)+len(viaRoles))
	for _, refs := range [][]EntityRef{direct, viaRoles} {
		for _, ref := range refs {
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			union = append(union, ref)
		}
	}
	sortRefsByName(union)
	return union, nil
}

func (s *Service) graphPermissionsForRoles(ctx context.Context, roleIDs map[string]struct{}, guard string) ([]EntityRef, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		return nil, err
	}

	var refs []EntityRef
	for _, permission := range permissions {
		if permission.GuardName != guard {
			continue
		}
		for _, role := range permission.Roles {
			if _, ok := roleIDs[role.ID]; ok {
				refs = append(refs, EntityRef{ID: permission.ID, Name: permission.Name, Guard: permission.GuardName})
				break
			}
		}
	}
	sortRefsByName(refs)
	return refs, nil
}
