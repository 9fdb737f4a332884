package permkit

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// graphLoader loads the full permission graph from the authoritative
// store: every permission, every role, with permission->role links
// already in place.
type graphLoader func(ctx context.Context) ([]*Permission, []*Role, error)

// Cache is the read-through cache of the permission graph and of
// per-principal relation snapshots.
//
// Tier (a) is a process-local snapshot held for the lifetime of the
// process until a mutation evicts it. Tier (b) is an optional shared
// Redis snapshot in a compact msgpack encoding, so sibling processes skip
// the store on their first read.
//
// The store stays the single source of truth: any doubt is resolved by
// forgetting the cache and re-reading.
type Cache struct {
	cfg  Config
	log  logrus.FieldLogger
	rdb  redis.UniversalClient
	load graphLoader

	mu          sync.RWMutex
	permissions []*Permission
	roles       []*Role

	relations *lru.Cache[string, []EntityRef]
}

func newCache(cfg Config, rdb redis.UniversalClient, load graphLoader, log logrus.FieldLogger) (*Cache, error) {
	size := cfg.RelationCacheSize
	if size <= 0 {
		size = 2048
	}
	relations, err := lru.New[string, []EntityRef](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:       cfg,
		log:       log,
		rdb:       rdb,
		load:      load,
		relations: relations,
	}, nil
}

// ============================================================================
// PERMISSION GRAPH
// ============================================================================

// Permissions returns every permission with its roles linked. Reads fall
// through memory, then the shared cache, then the store; both tiers are
// populated on the way back.
func (c *Cache) Permissions(ctx context.Context) ([]*Permission, error) {
	c.mu.RLock()
	if c.permissions != nil {
		permissions := c.permissions
		c.mu.RUnlock()
		return permissions, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permissions != nil {
		return c.permissions, nil
	}

	if permissions, roles, ok := c.fromShared(ctx); ok {
		c.permissions, c.roles = permissions, roles
		return c.permissions, nil
	}

	permissions, roles, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.permissions, c.roles = permissions, roles
	c.toShared(ctx, permissions, roles)
	return c.permissions, nil
}

// SharedClient returns the redis client backing the shared tier, or nil
// when the cache runs in-process only.
func (c *Cache) SharedClient() redis.UniversalClient {
	return c.rdb
}

// Roles returns every role in the graph snapshot.
func (c *Cache) Roles(ctx context.Context) ([]*Role, error) {
	if _, err := c.Permissions(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roles, nil
}

// Forget evicts the graph snapshot from both tiers and drops every
// principal relation snapshot. Called on any create, rename or delete of
// a permission or role and on role<->permission pivot changes.
func (c *Cache) Forget(ctx context.Context) {
	c.mu.Lock()
	c.permissions = nil
	c.roles = nil
	c.mu.Unlock()

	c.relations.Purge()

	if c.rdb != nil {
		if err := c.rdb.Del(ctx, c.cfg.CacheKey).Err(); err != nil {
			// Next sibling read may be stale until the key expires; the
			// local tiers are already gone.
			c.log.WithError(err).Error("permkit: failed to evict shared permission cache")
		}
	}
}

// ============================================================================
// COMPACT SHARED SNAPSHOT
// ============================================================================

// cachedRole is the shared-cache form of a Role. Field names collapse to
// single letters to keep the payload small.
type cachedRole struct {
	ID    string `msgpack:"i"`
	Name  string `msgpack:"n"`
	Guard string `msgpack:"g"`
	Team  string `msgpack:"t,omitempty"`
}

// cachedPermission carries role links as ids into the role table.
type cachedPermission struct {
	ID      string   `msgpack:"i"`
	Name    string   `msgpack:"n"`
	Guard   string   `msgpack:"g"`
	RoleIDs []string `msgpack:"r,omitempty"`
}

type cachedGraph struct {
	Permissions []cachedPermission `msgpack:"p"`
	Roles       []cachedRole       `msgpack:"r"`
}

// fromShared tries to hydrate the graph from the shared cache. Roles with
// the same identity become the same *Role instance across all
// permissions, so hydration stays linear in the payload size.
func (c *Cache) fromShared(ctx context.Context) ([]*Permission, []*Role, bool) {
	if c.rdb == nil {
		return nil, nil, false
	}

	payload, err := c.rdb.Get(ctx, c.cfg.CacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("permkit: shared permission cache read failed")
		}
		return nil, nil, false
	}

	var graph cachedGraph
	if err := msgpack.Unmarshal(payload, &graph); err != nil {
		c.log.WithError(err).Warn("permkit: shared permission cache payload corrupt")
		return nil, nil, false
	}

	byID := make(map[string]*Role, len(graph.Roles))
	roles := make([]*Role, 0, len(graph.Roles))
	for _, cr := range graph.Roles {
		role := &Role{ID: cr.ID, Name: cr.Name, GuardName: cr.Guard, TeamID: cr.Team}
		byID[role.ID] = role
		roles = append(roles, role)
	}

	permissions := make([]*Permission, 0, len(graph.Permissions))
	for _, cp := range graph.Permissions {
		permission := &Permission{ID: cp.ID, Name: cp.Name, GuardName: cp.Guard}
		for _, roleID := range cp.RoleIDs {
			if role, ok := byID[roleID]; ok {
				permission.Roles = append(permission.Roles, role)
			}
		}
		permissions = append(permissions, permission)
	}

	return permissions, roles, true
}

// toShared stores the compact snapshot. A write failure only costs the
// next process a store read, so it is logged and swallowed.
func (c *Cache) toShared(ctx context.Context, permissions []*Permission, roles []*Role) {
	if c.rdb == nil {
		return
	}

	graph := cachedGraph{
		Permissions: make([]cachedPermission, 0, len(permissions)),
		Roles:       make([]cachedRole, 0, len(roles)),
	}
	for _, role := range roles {
		graph.Roles = append(graph.Roles, cachedRole{
			ID:    role.ID,
			Name:  role.Name,
			Guard: role.GuardName,
			Team:  role.TeamID,
		})
	}
	for _, permission := range permissions {
		cp := cachedPermission{
			ID:    permission.ID,
			Name:  permission.Name,
			Guard: permission.GuardName,
		}
		for _, role := range permission.Roles {
			cp.RoleIDs = append(cp.RoleIDs, role.ID)
		}
		graph.Permissions = append(graph.Permissions, cp)
	}

	payload, err := msgpack.Marshal(graph)
	if err != nil {
		c.log.WithError(err).Warn("permkit: failed to encode permission cache payload")
		return
	}

	ttl := c.cfg.CacheTTL
	if c.cfg.CacheForever {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.cfg.CacheKey, payload, ttl).Err(); err != nil {
		c.log.WithError(err).Warn("permkit: failed to store shared permission cache")
	}
}

// ============================================================================
// PER-PRINCIPAL RELATION SNAPSHOTS
// ============================================================================

const (
	relationRoles       = "r"
	relationPermissions = "p"
	relationSeparator   = "\x1f"
)

func relationKey(kind string, principal Authorizable, teamID string) string {
	return kind + relationSeparator + principal.ModelType() + relationSeparator +
		principal.ModelID() + relationSeparator + teamID
}

// principalRoles returns the principal's role tuples for a team,
// read-through the relation cache.
func (c *Cache) principalRoles(principal Authorizable, teamID string, load func() ([]EntityRef, error)) ([]EntityRef, error) {
	return c.relation(relationKey(relationRoles, principal, teamID), load)
}

// principalPermissions returns the principal's direct permission tuples
// for a team, read-through the relation cache.
func (c *Cache) principalPermissions(principal Authorizable, teamID string, load func() ([]EntityRef, error)) ([]EntityRef, error) {
	return c.relation(relationKey(relationPermissions, principal, teamID), load)
}

func (c *Cache) relation(key string, load func() ([]EntityRef, error)) ([]EntityRef, error) {
	if refs, ok := c.relations.Get(key); ok {
		return refs, nil
	}
	refs, err := load()
	if err != nil {
		return nil, err
	}
	c.relations.Add(key, refs)
	return refs, nil
}

// ForgetPrincipal drops a principal's relation snapshots across all
// teams. Called on assignment changes to that principal; the graph
// snapshot is deliberately untouched, assigning a role to a principal
// does not change the permission graph.
func (c *Cache) ForgetPrincipal(principal Authorizable) {
	prefix := relationRoles + relationSeparator + principal.ModelType() + relationSeparator +
		principal.ModelID() + relationSeparator
	permPrefix := relationPermissions + relationSeparator + principal.ModelType() + relationSeparator +
		principal.ModelID() + relationSeparator
	for _, key := range c.relations.Keys() {
		if strings.HasPrefix(key, prefix) || strings.HasPrefix(key, permPrefix) {
			c.relations.Remove(key)
		}
	}
}

// sortRefsByName keeps enumerations deterministic.
func sortRefsByName(refs []EntityRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
}

// sortPermissionsByName keeps enumerations deterministic.
func sortPermissionsByName(permissions []*Permission) {
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].Name < permissions[j].Name })
}
