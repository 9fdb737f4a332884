package permkit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// skipBenchmarkIfNoDatabase skips the benchmark if database is not available
func skipBenchmarkIfNoDatabase(b *testing.B) (*Service, context.Context) {
	if !isDatabaseAvailable() {
		b.Skip("Database not available, skipping benchmark")
		return nil, nil
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	if err != nil {
		b.Fatalf("Failed to setup test database: %v", err)
	}

	return service, ctx
}

// ============================================================================
// Permission Check Benchmarks
// ============================================================================

// BenchmarkHasPermission benchmarks a check that resolves through a role
func BenchmarkHasPermission(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	permName := fmt.Sprintf("bench.%d.view", time.Now().UnixNano())
	perm, err := service.CreatePermission(ctx, permName, "web")
	if err != nil {
		b.Fatalf("Failed to create permission: %v", err)
	}

	role, err := service.CreateRole(ctx, fmt.Sprintf("bench-role-%d", time.Now().UnixNano()), "web")
	if err != nil {
		b.Fatalf("Failed to create role: %v", err)
	}
	if err := service.GrantToRole(ctx, role, PermissionOf(perm)); err != nil {
		b.Fatalf("Failed to grant permission: %v", err)
	}

	user := testUser(fmt.Sprintf("bench-user-%d", time.Now().UnixNano()))
	if err := service.AssignRole(ctx, user, RoleOf(role)); err != nil {
		b.Fatalf("Failed to assign role: %v", err)
	}

	// Warm the caches before measuring
	if _, err := service.HasPermission(ctx, user, permName, "web"); err != nil {
		b.Fatalf("Warmup check failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := service.HasPermission(ctx, user, permName, "web")
		if err != nil {
			b.Errorf("HasPermission failed: %v", err)
		}
		if !ok {
			b.Error("Expected permission to be granted")
		}
	}
}

// BenchmarkHasPermissionDenied benchmarks a check that ends in denial
func BenchmarkHasPermissionDenied(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	permName := fmt.Sprintf("bench.%d.edit", time.Now().UnixNano())
	if _, err := service.CreatePermission(ctx, permName, "web"); err != nil {
		b.Fatalf("Failed to create permission: %v", err)
	}

	user := testUser(fmt.Sprintf("bench-user-%d", time.Now().UnixNano()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := service.HasPermission(ctx, user, permName, "web")
		if err != nil {
			b.Errorf("HasPermission failed: %v", err)
		}
		if ok {
			b.Error("Expected permission to be denied")
		}
	}
}

// BenchmarkCheckerCan benchmarks checks against a preloaded snapshot
func BenchmarkCheckerCan(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	permName := fmt.Sprintf("bench.%d.publish", time.Now().UnixNano())
	perm, err := service.CreatePermission(ctx, permName, "web")
	if err != nil {
		b.Fatalf("Failed to create permission: %v", err)
	}

	user := testUser(fmt.Sprintf("bench-user-%d", time.Now().UnixNano()))
	if err := service.GivePermissionTo(ctx, user, PermissionOf(perm)); err != nil {
		b.Fatalf("Failed to give permission: %v", err)
	}

	checker, err := service.GetChecker(ctx, user, "web")
	if err != nil {
		b.Fatalf("Failed to build checker: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !checker.Can(permName) {
			b.Error("Expected permission to be granted")
		}
	}
}

// ============================================================================
// Assignment Benchmarks
// ============================================================================

// BenchmarkAssignRole benchmarks assigning a role to fresh principals
func BenchmarkAssignRole(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	role, err := service.CreateRole(ctx, fmt.Sprintf("bench-role-%d", time.Now().UnixNano()), "web")
	if err != nil {
		b.Fatalf("Failed to create role: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user := testUser(fmt.Sprintf("bench-user-%d-%d", time.Now().UnixNano(), i))
		if err := service.AssignRole(ctx, user, RoleOf(role)); err != nil {
			b.Errorf("AssignRole failed: %v", err)
		}
	}
}

// BenchmarkGivePermissionTo benchmarks direct permission grants
func BenchmarkGivePermissionTo(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	perm, err := service.CreatePermission(ctx, fmt.Sprintf("bench.%d.grant", time.Now().UnixNano()), "web")
	if err != nil {
		b.Fatalf("Failed to create permission: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user := testUser(fmt.Sprintf("bench-user-%d-%d", time.Now().UnixNano(), i))
		if err := service.GivePermissionTo(ctx, user, PermissionOf(perm)); err != nil {
			b.Errorf("GivePermissionTo failed: %v", err)
		}
	}
}

// ============================================================================
// Enumeration Benchmarks
// ============================================================================

// BenchmarkGetAllPermissions benchmarks the union of every grant source
func BenchmarkGetAllPermissions(b *testing.B) {
	service, ctx := skipBenchmarkIfNoDatabase(b)
	if service == nil {
		return
	}

	user := testUser(fmt.Sprintf("bench-user-%d", time.Now().UnixNano()))
	role, err := service.CreateRole(ctx, fmt.Sprintf("bench-role-%d", time.Now().UnixNano()), "web")
	if err != nil {
		b.Fatalf("Failed to create role: %v", err)
	}

	for i := 0; i < 20; i++ {
		perm, err := service.CreatePermission(ctx, fmt.Sprintf("bench.%d.p%d", time.Now().UnixNano(), i), "web")
		if err != nil {
			b.Fatalf("Failed to create permission: %v", err)
		}
		if i%2 == 0 {
			err = service.GrantToRole(ctx, role, PermissionOf(perm))
		} else {
			err = service.GivePermissionTo(ctx, user, PermissionOf(perm))
		}
		if err != nil {
			b.Fatalf("Failed to grant permission: %v", err)
		}
	}
	if err := service.AssignRole(ctx, user, RoleOf(role)); err != nil {
		b.Fatalf("Failed to assign role: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.GetAllPermissions(ctx, user, "web"); err != nil {
			b.Errorf("GetAllPermissions failed: %v", err)
		}
	}
}

// ============================================================================
// Wildcard Benchmarks
// ============================================================================

// BenchmarkWildcardImplies benchmarks matcher evaluation without a database
func BenchmarkWildcardImplies(b *testing.B) {
	matcher := DefaultWildcardMatcher

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := matcher.Implies("articles,posts.*.view,edit", "posts.10.view")
		if err != nil {
			b.Errorf("Implies failed: %v", err)
		}
		if !ok {
			b.Error("Expected implication to hold")
		}
	}
}

// BenchmarkWildcardParse benchmarks permission string parsing
func BenchmarkWildcardParse(b *testing.B) {
	matcher := DefaultWildcardMatcher

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := matcher.Parse("articles,posts.*.view,edit,delete"); err != nil {
			b.Errorf("Parse failed: %v", err)
		}
	}
}
