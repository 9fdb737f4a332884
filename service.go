package permkit

import (
	"github.com/fernandezvara/dbkit"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service provides permission and role management plus cached checks.
// It integrates with the database through dbkit with enhanced error
// handling.
//
// Error Handling:
// All database operations use dbkit's chainable error wrapping to provide
// detailed context about failed operations. The documented sentinel kinds
// (ErrPermissionDoesNotExist, ErrGuardMismatch, ...) are preserved on top
// so callers can classify with errors.Is:
//
//	_, err := service.FindPermissionByName(ctx, "articles.edit", "web")
//	if errors.Is(err, permkit.ErrPermissionDoesNotExist) {
//	    // unknown name for this guard
//	}
type Service struct {
	db        dbkit.IDB
	cfg       Config
	cache     *Cache
	matcher   *WildcardMatcher
	log       logrus.FieldLogger
	txMonitor *transactionMonitor

	team teamState
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithWildcardMatcher replaces the default matcher, for deployments with
// custom delimiters or wildcard token.
func WithWildcardMatcher(m *WildcardMatcher) ServiceOption {
	return func(s *Service) {
		s.matcher = m
	}
}

// WithLogger replaces the default logger.
func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates a new PermKit service. rdb is the shared cache
// client; pass nil to keep the graph cache process-local only.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	service, err := permkit.NewService(permkit.DefaultConfig(), db, rdb)
func NewService(cfg Config, db dbkit.IDB, rdb redis.UniversalClient, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		db:        db,
		cfg:       cfg,
		matcher:   DefaultWildcardMatcher,
		log:       logrus.StandardLogger(),
		txMonitor: newTransactionMonitor(),
	}

	for _, opt := range opts {
		opt(s)
	}

	cache, err := newCache(cfg, rdb, s.loadGraph, s.log)
	if err != nil {
		return nil, err
	}
	s.cache = cache

	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Cache returns the cache layer.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Matcher returns the wildcard matcher in use.
func (s *Service) Matcher() *WildcardMatcher {
	return s.matcher
}

// guardFor resolves the guard for a check or assignment: the explicit
// guard wins, then the principal's own GuardName, then the configured
// guard for the principal's model type, then the default guard.
func (s *Service) guardFor(principal Authorizable, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if named, ok := principal.(GuardNamed); ok {
		if guard := named.GuardName(); guard != "" {
			return guard
		}
	}
	if guard, ok := s.cfg.PrincipalGuards[principal.ModelType()]; ok && guard != "" {
		return guard
	}
	return s.cfg.DefaultGuard
}
