package permkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetTeamDisabled tests that team operations require Config.Teams
func TestSetTeamDisabled(t *testing.T) {
	s := &Service{cfg: DefaultConfig()}

	err := s.SetTeam("team-1")
	assert.ErrorIs(t, err, ErrTeamsNotEnabled)

	err = s.RunWithTeam("team-1", func() error { return nil })
	assert.ErrorIs(t, err, ErrTeamsNotEnabled)

	assert.Equal(t, "", s.activeTeam())
}

// TestSetTeam tests switching the ambient team
func TestSetTeam(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams = true
	s := &Service{cfg: cfg}

	require.NoError(t, s.SetTeam("team-1"))
	assert.Equal(t, "team-1", s.CurrentTeam())
	assert.Equal(t, "team-1", s.activeTeam())

	require.NoError(t, s.SetTeam(""))
	assert.Equal(t, "", s.CurrentTeam())
}

// TestRunWithTeam tests save and restore of the ambient team
func TestRunWithTeam(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams = true
	s := &Service{cfg: cfg}
	require.NoError(t, s.SetTeam("team-1"))

	var inside string
	err := s.RunWithTeam("team-2", func() error {
		inside = s.CurrentTeam()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "team-2", inside)
	assert.Equal(t, "team-1", s.CurrentTeam(), "previous team restored")
}

// TestRunWithTeamRestoresOnError tests restore on failure
func TestRunWithTeamRestoresOnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams = true
	s := &Service{cfg: cfg}
	require.NoError(t, s.SetTeam("team-1"))

	boom := errors.New("boom")
	err := s.RunWithTeam("team-2", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "team-1", s.CurrentTeam())
}

// TestRunWithTeamNested tests nested temporary switches
func TestRunWithTeamNested(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teams = true
	s := &Service{cfg: cfg}

	var seen []string
	err := s.RunWithTeam("outer", func() error {
		seen = append(seen, s.CurrentTeam())
		inner := s.RunWithTeam("inner", func() error {
			seen = append(seen, s.CurrentTeam())
			return nil
		})
		seen = append(seen, s.CurrentTeam())
		return inner
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "outer"}, seen)
	assert.Equal(t, "", s.CurrentTeam())
}
