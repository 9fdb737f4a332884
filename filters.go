package permkit

import "time"

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by target model of the action
	ModelType string
	ModelID   string

	// Filter by entity kind ("role" or "permission")
	EntityKind string

	// Filter by a single role or permission name touched by the action
	EntityName string

	// Filter by action type ("assigned", "revoked", "granted" or "synced")
	Action string

	// Filter by guard
	Guard string

	// Filter by team
	TeamID string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: 100,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithModel sets the target model filter.
func (f AuditLogFilter) WithModel(modelType, modelID string) AuditLogFilter {
	f.ModelType = modelType
	f.ModelID = modelID
	return f
}

// WithModelType sets only the model type filter.
func (f AuditLogFilter) WithModelType(modelType string) AuditLogFilter {
	f.ModelType = modelType
	return f
}

// WithEntityKind restricts entries to role or permission changes.
func (f AuditLogFilter) WithEntityKind(kind string) AuditLogFilter {
	f.EntityKind = kind
	return f
}

// WithEntityName filters entries that touched a specific role or permission
// name.
func (f AuditLogFilter) WithEntityName(name string) AuditLogFilter {
	f.EntityName = name
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = string(action)
	return f
}

// WithGuard sets the guard filter.
func (f AuditLogFilter) WithGuard(guard string) AuditLogFilter {
	f.Guard = guard
	return f
}

// WithTeam sets the team filter.
func (f AuditLogFilter) WithTeam(teamID string) AuditLogFilter {
	f.TeamID = teamID
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditLogFilter) WithSince(since time.Time) AuditLogFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditLogFilter) WithUntil(until time.Time) AuditLogFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f AuditLogFilter) WithLimit(limit int) AuditLogFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f AuditLogFilter) WithOffset(offset int) AuditLogFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
