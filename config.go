package permkit

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all PermKit settings. Zero values are not usable directly;
// start from DefaultConfig or ConfigFromEnv.
type Config struct {
	// DefaultGuard is used when neither the caller nor the principal names
	// a guard.
	DefaultGuard string `envconfig:"DEFAULT_GUARD" default:"web"`

	// PrincipalGuards maps a principal model type to its guard, for
	// principals that do not implement GuardNamed.
	PrincipalGuards map[string]string `envconfig:"PRINCIPAL_GUARDS"`

	// Teams enables team scoping. With teams on, every assignment pivot row
	// binds to the active team id.
	Teams bool `envconfig:"TEAMS" default:"false"`

	// Wildcards switches permission checks from exact name equality to
	// wildcard pattern implication.
	Wildcards bool `envconfig:"WILDCARDS" default:"false"`

	// CacheKey is the shared-cache key holding the permission graph
	// snapshot.
	CacheKey string `envconfig:"CACHE_KEY" default:"permkit.permission.graph"`

	// CacheTTL is the shared-cache expiration. Ignored when CacheForever is
	// set.
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	// CacheForever stores the graph snapshot without expiration.
	CacheForever bool `envconfig:"CACHE_FOREVER" default:"false"`

	// RelationCacheSize bounds the per-principal relation snapshot cache.
	RelationCacheSize int `envconfig:"RELATION_CACHE_SIZE" default:"2048"`

	// RegisterPermissionChecks controls whether RegisterGate defines one
	// gate ability per known permission name. Applications that manage
	// their gate themselves turn this off.
	RegisterPermissionChecks bool `envconfig:"REGISTER_PERMISSION_CHECKS" default:"true"`

	// LogRegistrationFailure controls whether a failed gate registration
	// (for example, permission tables not migrated yet) is logged.
	// Registration failures are never raised either way.
	LogRegistrationFailure bool `envconfig:"LOG_REGISTRATION_FAILURE" default:"true"`
}

// DefaultConfig returns a Config with all defaults applied, ignoring the
// environment.
func DefaultConfig() Config {
	return Config{
		DefaultGuard:             "web",
		CacheKey:                 "permkit.permission.graph",
		CacheTTL:                 24 * time.Hour,
		RelationCacheSize:        2048,
		RegisterPermissionChecks: true,
		LogRegistrationFailure:   true,
	}
}

// ConfigFromEnv loads a Config from PERMKIT_* environment variables,
// falling back to defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("permkit", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// guardOrDefault returns guard if set, else the configured default.
func (c Config) guardOrDefault(guard string) string {
	if guard != "" {
		return guard
	}
	return c.DefaultGuard
}
