// Package permkit attaches roles and permissions to any application model
// and answers "can this principal do X?" with cached, guard-aware lookups.
//
// PermKit stores permissions, roles and their assignments in PostgreSQL
// (through dbkit), keeps the permission graph in a two-tier cache (process
// memory plus Redis), and exposes the checks as plain booleans, as HTTP
// middleware, and as named gate abilities.
//
// # Core Concepts
//
// Principal: any application model (user, API client, admin, ...) that
// implements the Authorizable interface. PermKit never stores principals,
// only their assignments.
//
// Guard: a namespace separating authentication contexts ("web", "api",
// "admin"). A permission or role belongs to exactly one guard; cross-guard
// assignment is an error.
//
// Permission: a named grant like "articles.edit". With wildcards enabled a
// held permission is interpreted as a pattern: "articles.*" implies
// "articles.edit", "articles.edit,view" implies either action, and a short
// pattern like "articles" implies everything below it.
//
// Role: a named set of permissions within a guard. Optionally scoped to a
// team; a role with no team is global.
//
// Group: an optional extra indirection. Principals inherit the group's
// permissions and the permissions of the group's roles.
//
// # Basic Usage
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	cfg := permkit.DefaultConfig()
//	service, _ := permkit.NewService(cfg, db, nil)
//
//	// Run migrations once at startup.
//	db.Migrate(ctx, service.Migrations())
//
//	// Create entities and wire them together.
//	perm, _ := service.CreatePermission(ctx, "articles.edit", "web")
//	role, _ := service.CreateRole(ctx, "editor", "web")
//	service.GrantToRole(ctx, role, permkit.PermissionOf(perm))
//
//	// Assign the role to any principal.
//	service.AssignRole(ctx, user, permkit.RoleName("editor"))
//
//	// Check.
//	ok, err := service.HasPermission(ctx, user, "articles.edit", "")
//
// Checks return (false, nil) for a plain denial and a non-nil error only
// when the data is inconsistent: an unknown permission name, a guard
// mismatch, a malformed wildcard pattern.
//
// # Caching
//
// The full permission graph (every permission with its role links) is
// loaded once and kept in process memory and, when a Redis client is
// provided, in a shared compact snapshot. Creating, renaming or deleting a
// permission or role, or changing a role's permission set, evicts both
// tiers. Assigning a role or permission to a principal does not touch the
// graph cache; it only evicts that principal's relation snapshot.
//
// # Middleware Usage
//
//	mw := permkit.NewMiddleware(service,
//	    permkit.WithPrincipalExtractor(principalFromSession))
//
//	router.Handle("/articles", mw.RequirePermission("articles.edit|articles.publish", "web")(handler))
//	router.Handle("/admin", mw.RequireRole("admin", "web")(adminHandler))
//
// Lists are pipe-delimited; Require* variants pass when any name matches,
// RequireAll* variants when every name matches. Failures answer 403 with
// an UnauthorizedError carrying the required names.
//
// # Gate Usage
//
//	gate := permkit.NewGate()
//	service.RegisterGate(ctx, gate)
//
//	ok, err := gate.Can(ctx, user, "articles.edit")
//
// Registration installs a fallback so any ability without an explicit
// definition resolves as a permission name through the service. Before and
// after hooks can override any outcome. A registration failure (for
// example the service is not fully wired yet) is logged and swallowed so
// application boot never depends on the permission tables.
//
// # Teams
//
// With Config.Teams enabled every assignment binds to the active team id.
// The active team is process state: callers that switch it temporarily
// must restore the previous value, or use RunWithTeam which does the
// save-and-restore for them.
package permkit
