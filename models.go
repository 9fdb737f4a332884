package permkit

import (
	"time"

	"github.com/uptrace/bun"
)

// Permission is a named grant within a guard. (name, guard_name) is
// unique. Role links are carried on Roles after hydration from the cache
// or the store; the slice shares *Role instances with every other
// permission linked to the same role.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name      string    `bun:"name,notnull"`
	GuardName string    `bun:"guard_name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Roles []*Role `bun:"-"`
}

// Role is a named permission set within a guard. (name, guard_name,
// team_id) is unique; an empty TeamID means the role is global and
// visible under any active team.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name      string    `bun:"name,notnull"`
	GuardName string    `bun:"guard_name,notnull"`
	TeamID    string    `bun:"team_id,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// IsGlobal reports whether the role is visible under every team.
func (r *Role) IsGlobal() bool {
	return r.TeamID == ""
}

// Group bundles permissions and roles for principals that share access.
// (name, guard_name) is unique.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name      string    `bun:"name,notnull"`
	GuardName string    `bun:"guard_name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// RoleHasPermission links a role to a permission.
type RoleHasPermission struct {
	bun.BaseModel `bun:"table:role_has_permissions,alias:rhp"`

	PermissionID string `bun:"permission_id,pk,type:uuid"`
	RoleID       string `bun:"role_id,pk,type:uuid"`
}

// GroupHasPermission links a group to a permission.
type GroupHasPermission struct {
	bun.BaseModel `bun:"table:group_has_permissions,alias:ghp"`

	PermissionID string `bun:"permission_id,pk,type:uuid"`
	GroupID      string `bun:"group_id,pk,type:uuid"`
}

// GroupHasRole links a group to a role. Principals in the group inherit
// the role's permissions.
type GroupHasRole struct {
	bun.BaseModel `bun:"table:group_has_roles,alias:ghr"`

	RoleID  string `bun:"role_id,pk,type:uuid"`
	GroupID string `bun:"group_id,pk,type:uuid"`
}

// ModelHasRole assigns a role to a principal, identified polymorphically
// by (model_type, model_id). TeamID is part of the key when teams are
// enabled; it is empty otherwise.
type ModelHasRole struct {
	bun.BaseModel `bun:"table:model_has_roles,alias:mhr"`

	RoleID    string `bun:"role_id,pk,type:uuid"`
	ModelType string `bun:"model_type,pk"`
	ModelID   string `bun:"model_id,pk"`
	TeamID    string `bun:"team_id,pk,default:''"`
}

// ModelHasPermission grants a permission directly to a principal.
type ModelHasPermission struct {
	bun.BaseModel `bun:"table:model_has_permissions,alias:mhp"`

	PermissionID string `bun:"permission_id,pk,type:uuid"`
	ModelType    string `bun:"model_type,pk"`
	ModelID      string `bun:"model_id,pk"`
	TeamID       string `bun:"team_id,pk,default:''"`
}

// ModelHasGroup places a principal in a group.
type ModelHasGroup struct {
	bun.BaseModel `bun:"table:model_has_groups,alias:mhg"`

	GroupID   string `bun:"group_id,pk,type:uuid"`
	ModelType string `bun:"model_type,pk"`
	ModelID   string `bun:"model_id,pk"`
	TeamID    string `bun:"team_id,pk,default:''"`
}

// Authorizable identifies a principal. Any application model can adopt
// roles and permissions by implementing it.
type Authorizable interface {
	// ModelType tags the principal's type, e.g. "users".
	ModelType() string

	// ModelID is the principal's identity within its type.
	ModelID() string
}

// GuardNamed is an optional capability: principals that know their own
// guard implement it. Principals without it fall back to
// Config.PrincipalGuards and then Config.DefaultGuard.
type GuardNamed interface {
	GuardName() string
}

// Principal is a ready-made Authorizable for callers that only have a
// type tag and an id.
type Principal struct {
	Type  string
	ID    string
	Guard string // optional
}

// ModelType implements Authorizable.
func (p Principal) ModelType() string { return p.Type }

// ModelID implements Authorizable.
func (p Principal) ModelID() string { return p.ID }

// GuardName implements GuardNamed when Guard is set; an empty value is
// treated as "not implemented" by guard resolution.
func (p Principal) GuardName() string { return p.Guard }

// EntityRef is the lightweight (id, name, guard) tuple cached per
// principal for its roles and direct permissions.
type EntityRef struct {
	ID    string `msgpack:"i"`
	Name  string `msgpack:"n"`
	Guard string `msgpack:"g"`
}
