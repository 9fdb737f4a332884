package permkit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionAssigned AuditAction = "assigned"
	AuditActionRevoked  AuditAction = "revoked"
	AuditActionGranted  AuditAction = "granted"
	AuditActionSynced   AuditAction = "synced"
)

// Entity kinds recorded in audit entries.
const (
	auditKindRole       = "role"
	auditKindPermission = "permission"
)

// AccessAuditLog records role and permission changes for compliance and
// debugging. Entries are written on a best-effort basis: a failed write is
// logged and never fails the operation that triggered it.
type AccessAuditLog struct {
	bun.BaseModel `bun:"table:access_audit_log,alias:aal"`

	ID          string    `bun:"id,pk,default:gen_random_uuid()" json:"id"`
	Timestamp   time.Time `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`
	ActorID     string    `bun:"actor_id,notnull" json:"actor_id"`
	Action      string    `bun:"action,notnull" json:"action"`
	ModelType   string    `bun:"model_type,notnull" json:"model_type"`
	ModelID     string    `bun:"model_id,notnull" json:"model_id"`
	EntityKind  string    `bun:"entity_kind,notnull" json:"entity_kind"`
	EntityNames []string  `bun:"entity_names,array" json:"entity_names"`

	// Before and after name sets, recorded on replace-set operations.
	PreviousNames []string `bun:"previous_names,array" json:"previous_names,omitempty"`
	NewNames      []string `bun:"new_names,array" json:"new_names,omitempty"`

	GuardName   string    `bun:"guard_name" json:"guard_name,omitempty"`
	TeamID      string    `bun:"team_id" json:"team_id,omitempty"`
	IPAddress   string    `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string    `bun:"user_agent" json:"user_agent,omitempty"`
	RequestID   string    `bun:"request_id" json:"request_id,omitempty"`
}

// auditAssignment records a change to a principal's roles, permissions or
// groups.
func (s *Service) auditAssignment(ctx context.Context, principal Authorizable, kind string, action AuditAction, guard string, names []string) {
	audit := GetAuditContext(ctx)
	entry := &AccessAuditLog{
		ActorID:     audit.ActorID,
		Action:      string(action),
		ModelType:   principal.ModelType(),
		ModelID:     principal.ModelID(),
		EntityKind:  kind,
		EntityNames: names,
		GuardName:   guard,
		TeamID:      s.activeTeam(),
		IPAddress:   audit.IPAddress,
		UserAgent:   audit.UserAgent,
		RequestID:   audit.RequestID,
	}
	s.writeAudit(ctx, entry)
}

// auditRoleGrant records a change to a role's permission set. The role itself
// is the target model.
func (s *Service) auditRoleGrant(ctx context.Context, role *Role, action AuditAction, names []string) {
	audit := GetAuditContext(ctx)
	entry := &AccessAuditLog{
		ActorID:     audit.ActorID,
		Action:      string(action),
		ModelType:   "role",
		ModelID:     role.ID,
		EntityKind:  auditKindPermission,
		EntityNames: names,
		GuardName:   role.GuardName,
		TeamID:      role.TeamID,
		IPAddress:   audit.IPAddress,
		UserAgent:   audit.UserAgent,
		RequestID:   audit.RequestID,
	}
	s.writeAudit(ctx, entry)
}

// auditSync records a replace-set change to a principal's assignments with
// the name sets before and after the sync.
func (s *Service) auditSync(ctx context.Context, principal Authorizable, kind, guard string, previous, names []string) {
	audit := GetAuditContext(ctx)
	entry := &AccessAuditLog{
		ActorID:       audit.ActorID,
		Action:        string(AuditActionSynced),
		ModelType:     principal.ModelType(),
		ModelID:       principal.ModelID(),
		EntityKind:    kind,
		EntityNames:   names,
		PreviousNames: previous,
		NewNames:      names,
		GuardName:     guard,
		TeamID:        s.activeTeam(),
		IPAddress:     audit.IPAddress,
		UserAgent:     audit.UserAgent,
		RequestID:     audit.RequestID,
	}
	s.writeAudit(ctx, entry)
}

// auditRoleSync records a replace-set change to a role's permission set.
func (s *Service) auditRoleSync(ctx context.Context, role *Role, previous, names []string) {
	audit := GetAuditContext(ctx)
	entry := &AccessAuditLog{
		ActorID:       audit.ActorID,
		Action:        string(AuditActionSynced),
		ModelType:     "role",
		ModelID:       role.ID,
		EntityKind:    auditKindPermission,
		EntityNames:   names,
		PreviousNames: previous,
		NewNames:      names,
		GuardName:     role.GuardName,
		TeamID:        role.TeamID,
		IPAddress:     audit.IPAddress,
		UserAgent:     audit.UserAgent,
		RequestID:     audit.RequestID,
	}
	s.writeAudit(ctx, entry)
}

// roleNamesByID resolves pivot ids to role names from the cached graph.
// Best effort, unknown ids are skipped.
func (s *Service) roleNamesByID(ctx context.Context, ids map[string]struct{}) []string {
	roles, err := s.cache.Roles(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(ids))
	for _, role := range roles {
		if _, ok := ids[role.ID]; ok {
			names = append(names, role.Name)
		}
	}
	return names
}

// permissionNamesByID resolves pivot ids to permission names from the
// cached graph.
func (s *Service) permissionNamesByID(ctx context.Context, ids map[string]struct{}) []string {
	permissions, err := s.cache.Permissions(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(ids))
	for _, permission := range permissions {
		if _, ok := ids[permission.ID]; ok {
			names = append(names, permission.Name)
		}
	}
	return names
}

// writeAudit inserts an audit entry. Log error but don't fail the operation.
func (s *Service) writeAudit(ctx context.Context, entry *AccessAuditLog) {
	result, err := s.conn(ctx).NewInsert().Model(entry).Exec(ctx)
	if err := dbkit.WithErr(result, err, "WriteAudit").Err(); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"action":      entry.Action,
			"model_type":  entry.ModelType,
			"model_id":    entry.ModelID,
			"entity_kind": entry.EntityKind,
		}).Warn("audit log write failed")
	}
}

// GetAuditLog retrieves audit log entries matching the filter, newest first.
//
// Example:
//
//	entries, err := service.GetAuditLog(ctx, permkit.NewAuditLogFilter().
//	    WithModel("user", userID).
//	    WithAction(permkit.AuditActionAssigned).
//	    WithLimit(50))
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]*AccessAuditLog, error) {
	var entries []*AccessAuditLog

	q := s.conn(ctx).NewSelect().Model(&entries)

	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.ModelType != "" {
		q = q.Where("aal.model_type = ?", filter.ModelType)
	}
	if filter.ModelID != "" {
		q = q.Where("aal.model_id = ?", filter.ModelID)
	}
	if filter.EntityKind != "" {
		q = q.Where("entity_kind = ?", filter.EntityKind)
	}
	if filter.EntityName != "" {
		q = q.Where("? = ANY(entity_names)", filter.EntityName)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Guard != "" {
		q = q.Where("guard_name = ?", filter.Guard)
	}
	if filter.TeamID != "" {
		q = q.Where("aal.team_id = ?", filter.TeamID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	q = q.Order("timestamp DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := dbkit.WithErr1(q.Scan(ctx), "GetAuditLog").Err(); err != nil {
		return nil, NewError(ErrDatabaseError, "failed to query audit log")
	}
	return entries, nil
}
