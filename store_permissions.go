package permkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// PERMISSION CRUD
// ============================================================================

// CreatePermission creates a permission. Returns ErrPermissionAlreadyExists
// when (name, guard) is taken. An empty guard uses the default guard.
func (s *Service) CreatePermission(ctx context.Context, name, guard string) (*Permission, error) {
	guard = s.cfg.guardOrDefault(guard)
	permission := &Permission{Name: name, GuardName: guard}

	result, err := s.conn(ctx).NewInsert().Model(permission).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreatePermission").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return nil, NewError(ErrPermissionAlreadyExists, "a permission with this name already exists for this guard").
				WithPermission(name).
				WithGuard(guard)
		}
		return nil, NewError(ErrDatabaseError, "failed to create permission").
			WithPermission(name).
			WithGuard(guard)
	}

	s.cache.Forget(ctx)
	return permission, nil
}

// FindPermissionByName finds a permission by (name, guard) through the
// cached graph. Returns ErrPermissionDoesNotExist when absent, also when
// the name exists under a different guard.
func (s *Service) FindPermissionByName(ctx context.Context, name, guard string) (*Permission, error) {
	guard = s.cfg.guardOrDefault(guard)
	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range permissions {
		if p.Name == name && p.GuardName == guard {
			return p, nil
		}
	}
	return nil, NewError(ErrPermissionDoesNotExist, "no permission with this name for this guard").
		WithPermission(name).
		WithGuard(guard)
}

// FindPermissionByID finds a permission by id through the cached graph.
func (s *Service) FindPermissionByID(ctx context.Context, id string) (*Permission, error) {
	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range permissions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, NewError(ErrPermissionDoesNotExist, "no permission with this id")
}

// FindOrCreatePermission finds a permission by (name, guard), creating it
// when absent. Idempotent.
func (s *Service) FindOrCreatePermission(ctx context.Context, name, guard string) (*Permission, error) {
	permission, err := s.FindPermissionByName(ctx, name, guard)
	if err == nil {
		return permission, nil
	}
	if !IsDoesNotExist(err) {
		return nil, err
	}

	permission, err = s.CreatePermission(ctx, name, guard)
	if err == nil {
		return permission, nil
	}
	if IsAlreadyExists(err) {
		// Lost a race with a concurrent creator.
		return s.FindPermissionByName(ctx, name, guard)
	}
	return nil, err
}

// RenamePermission changes a permission's name. The rename invalidates the
// graph cache and every principal relation snapshot.
func (s *Service) RenamePermission(ctx context.Context, permission *Permission, newName string) error {
	result, err := s.conn(ctx).NewUpdate().
		Table("permissions").
		Set("name = ?", newName).
		Set("updated_at = current_timestamp").
		Where("id = ?", permission.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RenamePermission").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrPermissionAlreadyExists, "a permission with this name already exists for this guard").
				WithPermission(newName).
				WithGuard(permission.GuardName)
		}
		return NewError(ErrDatabaseError, "failed to rename permission").
			WithPermission(permission.Name)
	}

	permission.Name = newName
	s.cache.Forget(ctx)
	return nil
}

// DeletePermission removes a permission. Pivot rows cascade. Returns
// ErrPermissionDoesNotExist when the reference resolves to nothing.
func (s *Service) DeletePermission(ctx context.Context, ref PermissionRef) error {
	permission, err := s.resolvePermission(ctx, "", ref, false)
	if err != nil {
		return err
	}

	result, err := s.conn(ctx).NewDelete().Table("permissions").Where("id = ?", permission.ID).Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeletePermission").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to delete permission").
			WithPermission(permission.Name)
	}

	s.cache.Forget(ctx)
	return nil
}

// ============================================================================
// REFERENCE RESOLUTION
// ============================================================================

// resolvePermission resolves one reference to a stored permission. With
// checkGuard set, an already-resolved entity whose guard differs from the
// given guard fails with ErrGuardMismatch; name lookups under the wrong
// guard fail with ErrPermissionDoesNotExist instead.
func (s *Service) resolvePermission(ctx context.Context, guard string, ref PermissionRef, checkGuard bool) (*Permission, error) {
	switch {
	case ref.entity != nil:
		if checkGuard && ref.entity.GuardName != guard {
			return nil, NewError(ErrGuardMismatch, "permission belongs to another guard").
				WithPermission(ref.entity.Name).
				WithGuard(guard)
		}
		return ref.entity, nil
	case ref.name != "":
		return s.FindPermissionByName(ctx, ref.name, guard)
	case ref.id != "":
		permission, err := s.FindPermissionByID(ctx, ref.id)
		if err != nil {
			return nil, err
		}
		if checkGuard && permission.GuardName != guard {
			return nil, NewError(ErrGuardMismatch, "permission belongs to another guard").
				WithPermission(permission.Name).
				WithGuard(guard)
		}
		return permission, nil
	default:
		return nil, NewError(ErrWildcardInvalidArgument, "empty permission reference")
	}
}

// resolvePermissions resolves a heterogeneous reference list up front so
// multi-attach operations never leave partial state behind a bad entry.
func (s *Service) resolvePermissions(ctx context.Context, guard string, refs []PermissionRef) ([]*Permission, error) {
	permissions := make([]*Permission, 0, len(refs))
	for _, ref := range refs {
		permission, err := s.resolvePermission(ctx, guard, ref, true)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, permission)
	}
	return permissions, nil
}
