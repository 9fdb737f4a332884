package permkit

// PermissionRef names a permission by one of: name, id, or an already
// resolved entity. Grant, revoke and sync operations accept heterogeneous
// lists of refs and resolve each against the store before writing.
type PermissionRef struct {
	name   string
	id     string
	entity *Permission
}

// PermissionName references a permission by name.
func PermissionName(name string) PermissionRef {
	return PermissionRef{name: name}
}

// PermissionID references a permission by id.
func PermissionID(id string) PermissionRef {
	return PermissionRef{id: id}
}

// PermissionOf references an already resolved permission.
func PermissionOf(p *Permission) PermissionRef {
	return PermissionRef{entity: p}
}

// PermissionNames references several permissions by name.
func PermissionNames(names ...string) []PermissionRef {
	refs := make([]PermissionRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, PermissionName(name))
	}
	return refs
}

func (r PermissionRef) isZero() bool {
	return r.name == "" && r.id == "" && r.entity == nil
}

// RoleRef names a role by one of: name, id, or an already resolved
// entity.
type RoleRef struct {
	name   string
	id     string
	entity *Role
}

// RoleName references a role by name.
func RoleName(name string) RoleRef {
	return RoleRef{name: name}
}

// RoleID references a role by id.
func RoleID(id string) RoleRef {
	return RoleRef{id: id}
}

// RoleOf references an already resolved role.
func RoleOf(r *Role) RoleRef {
	return RoleRef{entity: r}
}

// RoleNames references several roles by name.
func RoleNames(names ...string) []RoleRef {
	refs := make([]RoleRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, RoleName(name))
	}
	return refs
}

func (r RoleRef) isZero() bool {
	return r.name == "" && r.id == "" && r.entity == nil
}

// GroupRef names a group by name, id or entity.
type GroupRef struct {
	name   string
	id     string
	entity *Group
}

// GroupName references a group by name.
func GroupName(name string) GroupRef {
	return GroupRef{name: name}
}

// GroupID references a group by id.
func GroupID(id string) GroupRef {
	return GroupRef{id: id}
}

// GroupOf references an already resolved group.
func GroupOf(g *Group) GroupRef {
	return GroupRef{entity: g}
}

func (r GroupRef) isZero() bool {
	return r.name == "" && r.id == "" && r.entity == nil
}
