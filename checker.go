package permkit

import "context"

// Checker provides permission checking for a specific principal against a
// snapshot loaded once. It is typically created by the Service and stored in
// context for use in handlers. Checks are answered in memory; changes made
// after the snapshot was taken are not visible to it.
type Checker struct {
	principal   Authorizable
	guard       string
	roles       []EntityRef
	permissions []EntityRef
	matcher     *WildcardMatcher
	wildcards   bool
}

// GetChecker loads the principal's roles and effective permissions under the
// active team and returns a Checker bound to that snapshot.
//
// Example:
//
//	checker, err := service.GetChecker(ctx, user, "")
//	if err != nil {
//	    return err
//	}
//	if checker.Can("articles.edit") {
//	    // ...
//	}
func (s *Service) GetChecker(ctx context.Context, principal Authorizable, guard string) (*Checker, error) {
	guard = s.guardFor(principal, guard)

	roles, err := s.GetRoles(ctx, principal, guard)
	if err != nil {
		return nil, err
	}
	permissions, err := s.GetAllPermissions(ctx, principal, guard)
	if err != nil {
		return nil, err
	}

	return &Checker{
		principal:   principal,
		guard:       guard,
		roles:       roles,
		permissions: permissions,
		matcher:     s.matcher,
		wildcards:   s.cfg.Wildcards,
	}, nil
}

// Principal returns the principal this checker is for.
func (c *Checker) Principal() Authorizable {
	return c.principal
}

// Guard returns the guard the snapshot was loaded under.
func (c *Checker) Guard() string {
	return c.guard
}

// Can checks if the principal holds a permission.
//
// Example:
//
//	if checker.Can("files.upload") {
//	    // Principal can upload files
//	}
func (c *Checker) Can(permission string) bool {
	if !c.wildcards {
		for _, ref := range c.permissions {
			if ref.Name == permission {
				return true
			}
		}
		return false
	}

	for _, ref := range c.permissions {
		ok, err := c.matcher.Implies(ref.Name, permission)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// CanAny checks if the principal holds any of the permissions.
func (c *Checker) CanAny(permissions ...string) bool {
	for _, permission := range permissions {
		if c.Can(permission) {
			return true
		}
	}
	return false
}

// CanAll checks if the principal holds all of the permissions.
func (c *Checker) CanAll(permissions ...string) bool {
	for _, permission := range permissions {
		if !c.Can(permission) {
			return false
		}
	}
	return true
}

// HasRole checks if the principal holds a role by name.
//
// Example:
//
//	if checker.HasRole("admin") {
//	    // Principal is an admin
//	}
func (c *Checker) HasRole(role string) bool {
	for _, ref := range c.roles {
		if ref.Name == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the principal holds any of the roles.
func (c *Checker) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllRoles checks if the principal holds all of the roles.
func (c *Checker) HasAllRoles(roles ...string) bool {
	for _, role := range roles {
		if !c.HasRole(role) {
			return false
		}
	}
	return true
}

// Roles returns the names of the roles in the snapshot.
func (c *Checker) Roles() []string {
	names := make([]string, 0, len(c.roles))
	for _, ref := range c.roles {
		names = append(names, ref.Name)
	}
	return names
}

// Permissions returns the names of the effective permissions in the snapshot.
func (c *Checker) Permissions() []string {
	names := make([]string, 0, len(c.permissions))
	for _, ref := range c.permissions {
		names = append(names, ref.Name)
	}
	return names
}

// IsEmpty returns true if the principal has no roles and no permissions.
func (c *Checker) IsEmpty() bool {
	return len(c.roles) == 0 && len(c.permissions) == 0
}
