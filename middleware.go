package permkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authorizer is the subset of the Service the middleware needs. Defined as an
// interface so handlers can be tested against a stub.
type Authorizer interface {
	HasAnyRole(ctx context.Context, principal Authorizable, guard string, refs ...RoleRef) (bool, error)
	HasAllRoles(ctx context.Context, principal Authorizable, guard string, refs ...RoleRef) (bool, error)
	HasAnyPermission(ctx context.Context, principal Authorizable, guard string, permissions ...string) (bool, error)
	HasAllPermissions(ctx context.Context, principal Authorizable, guard string, permissions ...string) (bool, error)
	GetChecker(ctx context.Context, principal Authorizable, guard string) (*Checker, error)
}

// Middleware provides HTTP middleware for role and permission checking.
type Middleware struct {
	service      Authorizer
	getPrincipal func(*http.Request) Authorizable
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := permkit.NewMiddleware(service,
//	    permkit.WithPrincipalExtractor(func(r *http.Request) permkit.Authorizable {
//	        return sessionUser(r)
//	    }),
//	)
func NewMiddleware(service Authorizer, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getPrincipal: defaultGetPrincipal,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithPrincipalExtractor sets a custom function to extract the principal from
// the request. Returning nil means no authenticated principal.
func WithPrincipalExtractor(fn func(*http.Request) Authorizable) MiddlewareOption {
	return func(m *Middleware) {
		m.getPrincipal = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetPrincipal(r *http.Request) Authorizable {
	return GetPrincipal(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNoPrincipal) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if IsUnauthorized(err) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if IsDoesNotExist(err) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// splitRequirement parses a pipe-delimited list, "writer|editor" meaning any
// of the names.
func splitRequirement(spec string) []string {
	parts := strings.Split(spec, "|")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// RequireRole creates middleware that requires at least one of the
// pipe-delimited roles. An empty guard derives the guard from the principal.
//
// Example:
//
//	router.With(mw.RequireRole("admin|owner", "")).
//	    Post("/settings", updateSettingsHandler)
func (m *Middleware) RequireRole(spec, guard string) func(http.Handler) http.Handler {
	names := splitRequirement(spec)
	return m.require(func(r *http.Request, principal Authorizable) (bool, error) {
		return m.service.HasAnyRole(r.Context(), principal, guard, RoleNames(names...)...)
	}, &UnauthorizedError{Requirement: "role", Required: names, Guard: guard})
}

// RequireAllRoles creates middleware that requires every one of the
// pipe-delimited roles.
func (m *Middleware) RequireAllRoles(spec, guard string) func(http.Handler) http.Handler {
	names := splitRequirement(spec)
	return m.require(func(r *http.Request, principal Authorizable) (bool, error) {
		return m.service.HasAllRoles(r.Context(), principal, guard, RoleNames(names...)...)
	}, &UnauthorizedError{Requirement: "role", Required: names, Guard: guard})
}

// RequirePermission creates middleware that requires at least one of the
// pipe-delimited permissions.
//
// Example:
//
//	router.With(mw.RequirePermission("articles.edit|articles.publish", "")).
//	    Put("/articles/{id}", updateArticleHandler)
func (m *Middleware) RequirePermission(spec, guard string) func(http.Handler) http.Handler {
	names := splitRequirement(spec)
	return m.require(func(r *http.Request, principal Authorizable) (bool, error) {
		return m.service.HasAnyPermission(r.Context(), principal, guard, names...)
	}, &UnauthorizedError{Requirement: "permission", Required: names, Guard: guard})
}

// RequireAllPermissions creates middleware that requires every one of the
// pipe-delimited permissions.
func (m *Middleware) RequireAllPermissions(spec, guard string) func(http.Handler) http.Handler {
	names := splitRequirement(spec)
	return m.require(func(r *http.Request, principal Authorizable) (bool, error) {
		return m.service.HasAllPermissions(r.Context(), principal, guard, names...)
	}, &UnauthorizedError{Requirement: "permission", Required: names, Guard: guard})
}

// RequireRoleOrPermission creates middleware that passes when the principal
// holds any of the names as either a role or a permission.
func (m *Middleware) RequireRoleOrPermission(spec, guard string) func(http.Handler) http.Handler {
	names := splitRequirement(spec)
	return m.require(func(r *http.Request, principal Authorizable) (bool, error) {
		ok, err := m.service.HasAnyRole(r.Context(), principal, guard, RoleNames(names...)...)
		if err != nil && !IsDoesNotExist(err) {
			return false, err
		}
		if ok {
			return true, nil
		}
		ok, err = m.service.HasAnyPermission(r.Context(), principal, guard, names...)
		if err != nil && !IsDoesNotExist(err) {
			return false, err
		}
		return ok, nil
	}, &UnauthorizedError{Requirement: "role or permission", Required: names, Guard: guard})
}

func (m *Middleware) require(check func(*http.Request, Authorizable) (bool, error), denial *UnauthorizedError) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := m.getPrincipal(r)
			if principal == nil {
				m.errorHandler(w, r, ErrNoPrincipal)
				return
			}

			allowed, err := check(r, principal)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !allowed {
				m.errorHandler(w, r, denial)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoadChecker creates middleware that loads the principal's Checker into
// context. Use this when you want to do permission checks in the handler
// rather than middleware.
//
// Example:
//
//	router.With(mw.LoadChecker("")).Get("/dashboard", dashboardHandler)
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := permkit.FromContext(r.Context())
//	    if checker != nil && checker.Can("dashboard.admin") {
//	        // Show admin features
//	    }
//	}
func (m *Middleware) LoadChecker(guard string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := m.getPrincipal(r)
			if principal == nil {
				// No principal, continue without checker
				next.ServeHTTP(w, r)
				return
			}

			checker, err := m.service.GetChecker(ctx, principal, guard)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithChecker(ctx, checker)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context for use in assignment operations.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Commonly set by other middleware
			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			if principal := m.getPrincipal(r); principal != nil {
				ctx = WithActorID(ctx, principal.ModelID())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
