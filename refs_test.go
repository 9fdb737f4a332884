package permkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPermissionRefConstructors tests the three reference forms
func TestPermissionRefConstructors(t *testing.T) {
	byName := PermissionName("articles.edit")
	assert.False(t, byName.isZero())

	byID := PermissionID("perm-1")
	assert.False(t, byID.isZero())

	entity := &Permission{ID: "perm-1", Name: "articles.edit", GuardName: "web"}
	byEntity := PermissionOf(entity)
	assert.False(t, byEntity.isZero())

	var zero PermissionRef
	assert.True(t, zero.isZero())
}

// TestPermissionNames tests building a ref list from names
func TestPermissionNames(t *testing.T) {
	refs := PermissionNames("articles.edit", "articles.view")
	require.Len(t, refs, 2)
	assert.Equal(t, PermissionName("articles.edit"), refs[0])
	assert.Equal(t, PermissionName("articles.view"), refs[1])

	assert.Empty(t, PermissionNames())
}

// TestRoleRefConstructors tests role reference forms
func TestRoleRefConstructors(t *testing.T) {
	assert.False(t, RoleName("writer").isZero())
	assert.False(t, RoleID("role-1").isZero())
	assert.False(t, RoleOf(&Role{ID: "role-1", Name: "writer"}).isZero())

	var zero RoleRef
	assert.True(t, zero.isZero())

	refs := RoleNames("writer", "editor", "admin")
	require.Len(t, refs, 3)
	assert.Equal(t, RoleName("admin"), refs[2])
}

// TestGroupRefConstructors tests group reference forms
func TestGroupRefConstructors(t *testing.T) {
	assert.False(t, GroupName("editorial").isZero())
	assert.False(t, GroupID("group-1").isZero())
	assert.False(t, GroupOf(&Group{ID: "group-1", Name: "editorial"}).isZero())

	var zero GroupRef
	assert.True(t, zero.isZero())
}
