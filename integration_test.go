package permkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegrationPermissionLifecycle tests create, find, rename and delete
func TestIntegrationPermissionLifecycle(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	name := uniqueName("articles.edit")

	created, err := service.CreatePermission(ctx, name, "web")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, name, created.Name)
	assert.Equal(t, "web", created.GuardName)

	// Duplicate (name, guard) fails
	_, err = service.CreatePermission(ctx, name, "web")
	assert.ErrorIs(t, err, ErrPermissionAlreadyExists)

	// Same name under another guard is a distinct permission
	other, err := service.CreatePermission(ctx, name, "api")
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, other.ID)

	found, err := service.FindPermissionByName(ctx, name, "web")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	byID, err := service.FindPermissionByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, name, byID.Name)

	// Lookup under a guard where the name does not exist
	_, err = service.FindPermissionByName(ctx, name, "admin")
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)

	renamed := uniqueName("articles.change")
	err = service.RenamePermission(ctx, created, renamed)
	require.NoError(t, err)

	_, err = service.FindPermissionByName(ctx, name, "web")
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)
	found, err = service.FindPermissionByName(ctx, renamed, "web")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	err = service.DeletePermission(ctx, PermissionID(created.ID))
	require.NoError(t, err)
	_, err = service.FindPermissionByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)
}

// TestIntegrationFindOrCreatePermission tests the race-tolerant upsert
func TestIntegrationFindOrCreatePermission(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	name := uniqueName("reports.view")

	first, err := service.FindOrCreatePermission(ctx, name, "web")
	require.NoError(t, err)

	second, err := service.FindOrCreatePermission(ctx, name, "web")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

// TestIntegrationRoleGrants tests granting permissions to roles and
// checking through them
func TestIntegrationRoleGrants(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	edit, err := service.CreatePermission(ctx, uniqueName("articles.edit"), "web")
	require.NoError(t, err)
	view, err := service.CreatePermission(ctx, uniqueName("articles.view"), "web")
	require.NoError(t, err)

	writer, err := service.CreateRole(ctx, uniqueName("writer"), "web")
	require.NoError(t, err)

	err = service.GrantToRole(ctx, writer, PermissionOf(edit), PermissionOf(view))
	require.NoError(t, err)

	alice := testUser(uniqueName("alice"))
	err = service.AssignRole(ctx, alice, RoleOf(writer))
	require.NoError(t, err)

	ok, err := service.HasPermission(ctx, alice, edit.Name, "web")
	require.NoError(t, err)
	assert.True(t, ok)

	// Direct source is empty, the grant came through the role
	ok, err = service.HasDirectPermission(ctx, alice, edit.Name, "web")
	require.NoError(t, err)
	assert.False(t, ok)

	viaRoles, err := service.GetPermissionsViaRoles(ctx, alice, "web")
	require.NoError(t, err)
	assert.Len(t, viaRoles, 2)

	// Revoking from the role revokes from everyone holding it
	err = service.RevokeFromRole(ctx, writer, PermissionOf(edit))
	require.NoError(t, err)

	ok, err = service.HasPermission(ctx, alice, edit.Name, "web")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = service.HasPermission(ctx, alice, view.Name, "web")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestIntegrationUnknownPermissionName tests loud failure in exact mode
func TestIntegrationUnknownPermissionName(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	alice := testUser(uniqueName("alice"))

	_, err = service.HasPermission(ctx, alice, uniqueName("no.such.permission"), "web")
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)
}

// TestIntegrationDirectPermissions tests direct grant, revoke and sync
func TestIntegrationDirectPermissions(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	edit, err := service.CreatePermission(ctx, uniqueName("files.edit"), "web")
	require.NoError(t, err)
	view, err := service.CreatePermission(ctx, uniqueName("files.view"), "web")
	require.NoError(t, err)
	upload, err := service.CreatePermission(ctx, uniqueName("files.upload"), "web")
	require.NoError(t, err)

	bob := testUser(uniqueName("bob"))

	err = service.GivePermissionTo(ctx, bob, PermissionOf(edit), PermissionOf(view))
	require.NoError(t, err)

	// Granting again is idempotent
	err = service.GivePermissionTo(ctx, bob, PermissionOf(edit))
	require.NoError(t, err)

	direct, err := service.GetDirectPermissions(ctx, bob, "web")
	require.NoError(t, err)
	assert.Len(t, direct, 2)

	// Sync to a different set: view is kept, edit goes, upload arrives
	err = service.SyncPermissions(ctx, bob, PermissionOf(view), PermissionOf(upload))
	require.NoError(t, err)

	direct, err = service.GetDirectPermissions(ctx, bob, "web")
	require.NoError(t, err)
	names := make([]string, 0, len(direct))
	for _, ref := range direct {
		names = append(names, ref.Name)
	}
	assert.ElementsMatch(t, []string{view.Name, upload.Name}, names)

	err = service.RevokePermissionTo(ctx, bob, PermissionOf(view))
	require.NoError(t, err)

	ok, err := service.HasPermission(ctx, bob, view.Name, "web")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestIntegrationAllOrNothingGrant tests that one bad reference aborts the
// whole write
func TestIntegrationAllOrNothingGrant(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	edit, err := service.CreatePermission(ctx, uniqueName("tasks.edit"), "web")
	require.NoError(t, err)

	carol := testUser(uniqueName("carol"))

	err = service.GivePermissionTo(ctx, carol,
		PermissionOf(edit),
		PermissionName(uniqueName("tasks.unknown")))
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)

	// Nothing was attached
	direct, err := service.GetDirectPermissions(ctx, carol, "web")
	require.NoError(t, err)
	assert.Empty(t, direct)
}

// TestIntegrationGuardMismatch tests attaching an entity across guards
func TestIntegrationGuardMismatch(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	apiPerm, err := service.CreatePermission(ctx, uniqueName("tokens.issue"), "api")
	require.NoError(t, err)

	webUser := Principal{Type: "user", ID: uniqueName("dave"), Guard: "web"}

	err = service.GivePermissionTo(ctx, webUser, PermissionOf(apiPerm))
	assert.ErrorIs(t, err, ErrGuardMismatch)

	// The same attach by name fails as unknown-for-guard instead
	err = service.GivePermissionTo(ctx, webUser, PermissionName(apiPerm.Name))
	assert.ErrorIs(t, err, ErrPermissionDoesNotExist)
}

// TestIntegrationRoleAssignment tests assign, remove and sync of roles
func TestIntegrationRoleAssignment(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	writer, err := service.CreateRole(ctx, uniqueName("writer"), "web")
	require.NoError(t, err)
	reviewer, err := service.CreateRole(ctx, uniqueName("reviewer"), "web")
	require.NoError(t, err)
	admin, err := service.CreateRole(ctx, uniqueName("admin"), "web")
	require.NoError(t, err)

	erin := testUser(uniqueName("erin"))

	err = service.AssignRole(ctx, erin, RoleOf(writer), RoleOf(reviewer))
	require.NoError(t, err)

	ok, err := service.HasRole(ctx, erin, RoleOf(writer), "web")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.HasAllRoles(ctx, erin, "web", RoleOf(writer), RoleOf(reviewer))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.HasAnyRole(ctx, erin, "web", RoleOf(admin), RoleOf(writer))
	require.NoError(t, err)
	assert.True(t, ok)

	// Sync keeps writer, drops reviewer, adds admin
	err = service.SyncRoles(ctx, erin, RoleOf(writer), RoleOf(admin))
	require.NoError(t, err)

	names, err := service.GetRoleNames(ctx, erin, "web")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{writer.Name, admin.Name}, names)

	err = service.RemoveRole(ctx, erin, RoleOf(admin))
	require.NoError(t, err)

	ok, err = service.HasRole(ctx, erin, RoleOf(admin), "web")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown role name fails loud
	_, err = service.HasRole(ctx, erin, RoleName(uniqueName("ghost")), "web")
	assert.ErrorIs(t, err, ErrRoleDoesNotExist)
}

// TestIntegrationGetAllPermissions tests union and dedup across sources
func TestIntegrationGetAllPermissions(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	edit, err := service.CreatePermission(ctx, uniqueName("a.edit"), "web")
	require.NoError(t, err)
	view, err := service.CreatePermission(ctx, uniqueName("a.view"), "web")
	require.NoError(t, err)

	role, err := service.CreateRole(ctx, uniqueName("role"), "web")
	require.NoError(t, err)
	require.NoError(t, service.GrantToRole(ctx, role, PermissionOf(edit), PermissionOf(view)))

	frank := testUser(uniqueName("frank"))
	require.NoError(t, service.AssignRole(ctx, frank, RoleOf(role)))
	// edit arrives both directly and via the role
	require.NoError(t, service.GivePermissionTo(ctx, frank, PermissionOf(edit)))

	all, err := service.GetAllPermissions(ctx, frank, "web")
	require.NoError(t, err)
	assert.Len(t, all, 2, "duplicate sources collapse to one entry")
}

// TestIntegrationFlushPrincipal tests removing every attachment at once
func TestIntegrationFlushPrincipal(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	perm, err := service.CreatePermission(ctx, uniqueName("b.view"), "web")
	require.NoError(t, err)
	role, err := service.CreateRole(ctx, uniqueName("viewer"), "web")
	require.NoError(t, err)

	grace := testUser(uniqueName("grace"))
	require.NoError(t, service.AssignRole(ctx, grace, RoleOf(role)))
	require.NoError(t, service.GivePermissionTo(ctx, grace, PermissionOf(perm)))

	require.NoError(t, service.FlushPrincipal(ctx, grace))

	roles, err := service.GetRoles(ctx, grace, "web")
	require.NoError(t, err)
	assert.Empty(t, roles)

	direct, err := service.GetDirectPermissions(ctx, grace, "web")
	require.NoError(t, err)
	assert.Empty(t, direct)
}

// TestIntegrationDeleteRoleCascades tests that deleting a role detaches it
func TestIntegrationDeleteRoleCascades(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	perm, err := service.CreatePermission(ctx, uniqueName("c.view"), "web")
	require.NoError(t, err)
	role, err := service.CreateRole(ctx, uniqueName("temp"), "web")
	require.NoError(t, err)
	require.NoError(t, service.GrantToRole(ctx, role, PermissionOf(perm)))

	heidi := testUser(uniqueName("heidi"))
	require.NoError(t, service.AssignRole(ctx, heidi, RoleOf(role)))

	require.NoError(t, service.DeleteRole(ctx, RoleID(role.ID)))

	roles, err := service.GetRoles(ctx, heidi, "web")
	require.NoError(t, err)
	assert.Empty(t, roles)

	ok, err := service.HasPermission(ctx, heidi, perm.Name, "web")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestIntegrationSyncRolePermissions tests the minimal symmetric diff
func TestIntegrationSyncRolePermissions(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	a, err := service.CreatePermission(ctx, uniqueName("d.a"), "web")
	require.NoError(t, err)
	b, err := service.CreatePermission(ctx, uniqueName("d.b"), "web")
	require.NoError(t, err)
	c, err := service.CreatePermission(ctx, uniqueName("d.c"), "web")
	require.NoError(t, err)

	role, err := service.CreateRole(ctx, uniqueName("sync"), "web")
	require.NoError(t, err)

	require.NoError(t, service.GrantToRole(ctx, role, PermissionOf(a), PermissionOf(b)))
	require.NoError(t, service.SyncRolePermissions(ctx, role, PermissionOf(b), PermissionOf(c)))

	permissions, err := service.RolePermissions(ctx, role)
	require.NoError(t, err)
	names := make([]string, 0, len(permissions))
	for _, p := range permissions {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{b.Name, c.Name}, names)

	// Syncing the same set again is a no-op
	require.NoError(t, service.SyncRolePermissions(ctx, role, PermissionOf(b), PermissionOf(c)))
	permissions, err = service.RolePermissions(ctx, role)
	require.NoError(t, err)
	assert.Len(t, permissions, 2)
}

// TestIntegrationCounts tests the count helpers
func TestIntegrationCounts(t *testing.T) {
	if !RequireDatabase(t) {
		return
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	beforePermissions, err := service.CountPermissions(ctx)
	require.NoError(t, err)
	beforeRoles, err := service.CountRoles(ctx)
	require.NoError(t, err)

	_, err = service.CreatePermission(ctx, uniqueName("count.p"), "web")
	require.NoError(t, err)
	_, err = service.CreateRole(ctx, uniqueName("count.r"), "web")
	require.NoError(t, err)

	afterPermissions, err := service.CountPermissions(ctx)
	require.NoError(t, err)
	afterRoles, err := service.CountRoles(ctx)
	require.NoError(t, err)

	assert.Equal(t, beforePermissions+1, afterPermissions)
	assert.Equal(t, beforeRoles+1, afterRoles)
}
