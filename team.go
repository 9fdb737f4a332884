package permkit

import (
	"context"
	"sync"

	"github.com/fernandezvara/dbkit"
)

// teamState holds the ambient active team id. It is process-wide mutable
// state scoped to the Service, not threaded through every call; callers
// that switch it temporarily must restore the previous value, or use
// RunWithTeam which does so for them.
type teamState struct {
	mu sync.RWMutex
	id string
}

// SetTeam sets the active team id. Every subsequent assignment read and
// write binds to it. Returns ErrTeamsNotEnabled when Config.Teams is off.
func (s *Service) SetTeam(teamID string) error {
	if !s.cfg.Teams {
		return NewError(ErrTeamsNotEnabled, "enable Config.Teams before setting a team").
			WithTeam(teamID)
	}
	s.team.mu.Lock()
	s.team.id = teamID
	s.team.mu.Unlock()
	return nil
}

// CurrentTeam returns the active team id, or "" when none is set.
func (s *Service) CurrentTeam() string {
	s.team.mu.RLock()
	defer s.team.mu.RUnlock()
	return s.team.id
}

// RunWithTeam runs fn with the active team switched to teamID and
// restores the previous team afterwards, also on error.
func (s *Service) RunWithTeam(teamID string, fn func() error) error {
	if !s.cfg.Teams {
		return NewError(ErrTeamsNotEnabled, "enable Config.Teams before setting a team").
			WithTeam(teamID)
	}

	s.team.mu.Lock()
	previous := s.team.id
	s.team.id = teamID
	s.team.mu.Unlock()

	defer func() {
		s.team.mu.Lock()
		s.team.id = previous
		s.team.mu.Unlock()
	}()

	return fn()
}

// activeTeam returns the team id to bind pivot rows to: the ambient team
// when teams are enabled, "" otherwise.
func (s *Service) activeTeam() string {
	if !s.cfg.Teams {
		return ""
	}
	return s.CurrentTeam()
}

// PurgeTeam hard-deletes every assignment bound to a team, mirroring a
// cascade on team deletion. Returns ErrTeamDoesNotExist when the team has
// no assignments at all.
func (s *Service) PurgeTeam(ctx context.Context, teamID string) error {
	if !s.cfg.Teams {
		return NewError(ErrTeamsNotEnabled, "enable Config.Teams before purging a team").
			WithTeam(teamID)
	}
	if teamID == "" {
		return NewError(ErrTeamDoesNotExist, "team id is empty")
	}

	deleted := int64(0)
	err := s.Transaction(ctx, func(ctx context.Context) error {
		for _, table := range []string{"model_has_roles", "model_has_permissions", "model_has_groups"} {
			result, err := s.conn(ctx).NewDelete().Table(table).Where("team_id = ?", teamID).Exec(ctx)
			if err := dbkit.WithErr(result, err, "PurgeTeam").Err(); err != nil {
				return NewError(ErrDatabaseError, "failed to purge team assignments").
					WithTeam(teamID)
			}
			rows, _ := result.RowsAffected()
			deleted += rows
		}

		// Team-scoped roles disappear with their team.
		result, err := s.conn(ctx).NewDelete().Table("roles").Where("team_id = ?", teamID).Exec(ctx)
		if err := dbkit.WithErr(result, err, "PurgeTeamRoles").Err(); err != nil {
			return NewError(ErrDatabaseError, "failed to purge team roles").
				WithTeam(teamID)
		}
		rows, _ := result.RowsAffected()
		deleted += rows
		return nil
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return NewError(ErrTeamDoesNotExist, "no assignments for team").WithTeam(teamID)
	}

	// Team roles may have been part of the graph snapshot.
	s.cache.Forget(ctx)
	return nil
}
