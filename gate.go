package permkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// AbilityFunc decides an ability for a principal. Extra arguments carry
// whatever the caller passed to Gate.Can, typically the object being acted
// on.
type AbilityFunc func(ctx context.Context, principal Authorizable, args ...interface{}) (bool, error)

// BeforeHook runs before any ability is evaluated. A non-nil result
// short-circuits evaluation with that decision; nil means no opinion.
type BeforeHook func(ctx context.Context, principal Authorizable, ability string, args ...interface{}) (*bool, error)

// AfterHook observes a decision after it has been made.
type AfterHook func(ctx context.Context, principal Authorizable, ability string, allowed bool, args ...interface{})

// Gate maps ability names to decision functions, with before/after hooks and
// an optional fallback for abilities nobody defined. It is safe for
// concurrent use; abilities are normally registered at startup.
type Gate struct {
	mu        sync.RWMutex
	abilities map[string]AbilityFunc
	before    []BeforeHook
	after     []AfterHook
	fallback  AbilityFunc
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{
		abilities: make(map[string]AbilityFunc),
	}
}

// Define registers an ability under a name. Redefining a name replaces the
// previous function.
//
// Example:
//
//	gate.Define("articles.edit", func(ctx context.Context, principal permkit.Authorizable, args ...interface{}) (bool, error) {
//	    article, ok := args[0].(*Article)
//	    if !ok {
//	        return false, nil
//	    }
//	    return article.AuthorID == principal.ModelID(), nil
//	})
func (g *Gate) Define(ability string, fn AbilityFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abilities[ability] = fn
}

// Before adds a hook that runs before every ability evaluation.
func (g *Gate) Before(hook BeforeHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.before = append(g.before, hook)
}

// After adds a hook that observes every decision.
func (g *Gate) After(hook AfterHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.after = append(g.after, hook)
}

// SetFallback sets the function consulted when no ability is defined under
// the requested name.
func (g *Gate) SetFallback(fn AbilityFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = fn
}

// Abilities returns the names of all defined abilities.
func (g *Gate) Abilities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.abilities))
	for name := range g.abilities {
		names = append(names, name)
	}
	return names
}

// Can evaluates an ability for a principal. Before hooks run first and may
// short-circuit; otherwise the defined ability decides, or the fallback when
// the name is undefined. After hooks observe the final decision.
//
// A denial is (false, nil). Errors are reserved for hook or ability
// failures.
func (g *Gate) Can(ctx context.Context, principal Authorizable, ability string, args ...interface{}) (bool, error) {
	g.mu.RLock()
	before := g.before
	after := g.after
	fn, defined := g.abilities[ability]
	fallback := g.fallback
	g.mu.RUnlock()

	allowed, err := func() (bool, error) {
		for _, hook := range before {
			decision, err := hook(ctx, principal, ability, args...)
			if err != nil {
				return false, err
			}
			if decision != nil {
				return *decision, nil
			}
		}

		if defined {
			return fn(ctx, principal, args...)
		}
		if fallback != nil {
			// The fallback sees the ability name as its first argument.
			return fallback(ctx, principal, append([]interface{}{ability}, args...)...)
		}
		return false, nil
	}()
	if err != nil {
		return false, err
	}

	for _, hook := range after {
		hook(ctx, principal, ability, allowed, args...)
	}
	return allowed, nil
}

// Authorize is like Can but returns an *UnauthorizedError on denial, so it
// can be used directly in handlers that propagate errors.
func (g *Gate) Authorize(ctx context.Context, principal Authorizable, ability string, args ...interface{}) error {
	allowed, err := g.Can(ctx, principal, ability, args...)
	if err != nil {
		return err
	}
	if !allowed {
		return &UnauthorizedError{
			Requirement: "ability",
			Required:    []string{ability},
		}
	}
	return nil
}

// RegisterGate wires the service into a gate. Every permission name known
// to the cache gets a defined ability delegating to HasPermission, and the
// gate's fallback treats any later ability name as a permission name too,
// so permissions created after registration still resolve. Honors
// Config.RegisterPermissionChecks; when it is off this call does nothing.
//
// Registration and lookup failures are logged and never raised, so a missing
// permission table cannot break an application's authorization path. An
// unknown permission name simply denies.
func (s *Service) RegisterGate(ctx context.Context, g *Gate) {
	if !s.cfg.RegisterPermissionChecks {
		return
	}

	defer func() {
		if r := recover(); r != nil && s.cfg.LogRegistrationFailure {
			s.log.WithField("panic", fmt.Sprint(r)).Error("gate registration failed")
		}
	}()

	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		if s.cfg.LogRegistrationFailure {
			s.log.WithError(err).Error("gate registration could not enumerate permissions")
		}
	} else {
		for _, p := range permissions {
			name := p.Name
			g.Define(name, func(ctx context.Context, principal Authorizable, args ...interface{}) (bool, error) {
				return s.checkGatePermission(ctx, principal, name)
			})
		}
	}

	g.SetFallback(func(ctx context.Context, principal Authorizable, args ...interface{}) (bool, error) {
		// The ability name travels as the first argument when the gate
		// falls through; without it there is nothing to check.
		if len(args) == 0 {
			return false, nil
		}
		permission, ok := args[0].(string)
		if !ok {
			return false, nil
		}

		return s.checkGatePermission(ctx, principal, permission)
	})
}

// checkGatePermission backs gate abilities: lookup failures downgrade to a
// denial so the gate never surfaces storage errors to callers.
func (s *Service) checkGatePermission(ctx context.Context, principal Authorizable, permission string) (bool, error) {
	allowed, err := s.HasPermission(ctx, principal, permission, "")
	if err != nil {
		if errors.Is(err, ErrPermissionDoesNotExist) {
			return false, nil
		}
		if s.cfg.LogRegistrationFailure {
			s.log.WithError(err).WithField("permission", permission).
				Warn("gate permission check failed")
		}
		return false, nil
	}
	return allowed, nil
}
