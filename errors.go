package permkit

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for PermKit operations.
var (
	// ErrPermissionDoesNotExist is returned when a permission lookup by name
	// or id finds no row for the resolved guard.
	ErrPermissionDoesNotExist = errors.New("permkit: permission does not exist")

	// ErrRoleDoesNotExist is returned when a role lookup finds no row.
	ErrRoleDoesNotExist = errors.New("permkit: role does not exist")

	// ErrGroupDoesNotExist is returned when a group lookup finds no row.
	ErrGroupDoesNotExist = errors.New("permkit: group does not exist")

	// ErrPermissionAlreadyExists is returned when creating a permission whose
	// (name, guard) already exists.
	ErrPermissionAlreadyExists = errors.New("permkit: permission already exists")

	// ErrRoleAlreadyExists is returned when creating a role whose
	// (name, guard, team) already exists.
	ErrRoleAlreadyExists = errors.New("permkit: role already exists")

	// ErrGroupAlreadyExists is returned when creating a group whose
	// (name, guard) already exists.
	ErrGroupAlreadyExists = errors.New("permkit: group already exists")

	// ErrGuardMismatch is returned when attaching an already-resolved entity
	// whose guard differs from the target principal's guard.
	ErrGuardMismatch = errors.New("permkit: guard does not match")

	// ErrWildcardNotProperlyFormatted is returned when a wildcard pattern is
	// empty or contains an empty part or subpart.
	ErrWildcardNotProperlyFormatted = errors.New("permkit: wildcard permission is not properly formatted")

	// ErrWildcardInvalidArgument is returned when a permission reference
	// cannot be interpreted (empty reference, no name, id or entity).
	ErrWildcardInvalidArgument = errors.New("permkit: invalid permission argument")

	// ErrTeamsNotEnabled is returned when a team operation is used while
	// Config.Teams is off.
	ErrTeamsNotEnabled = errors.New("permkit: teams are not enabled")

	// ErrTeamDoesNotExist is returned when purging or switching to a team
	// that has no assignments.
	ErrTeamDoesNotExist = errors.New("permkit: team does not exist")

	// ErrUnauthorized is returned by middleware when the principal does not
	// satisfy the required roles or permissions.
	ErrUnauthorized = errors.New("permkit: unauthorized")

	// ErrNoPrincipal is returned by middleware when no principal can be
	// extracted from the request.
	ErrNoPrincipal = errors.New("permkit: no principal in request")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("permkit: database error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err        error  // Underlying sentinel error
	Message    string // Additional context
	Guard      string // Guard involved
	Permission string // Permission name involved (if applicable)
	Role       string // Role name involved (if applicable)
	ModelType  string // Principal type involved (if applicable)
	ModelID    string // Principal id involved (if applicable)
	TeamID     string // Team involved (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithGuard adds guard information to the error.
func (e *Error) WithGuard(guard string) *Error {
	e.Guard = guard
	return e
}

// WithPermission adds permission information to the error.
func (e *Error) WithPermission(name string) *Error {
	e.Permission = name
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(name string) *Error {
	e.Role = name
	return e
}

// WithModel adds principal information to the error.
func (e *Error) WithModel(modelType, modelID string) *Error {
	e.ModelType = modelType
	e.ModelID = modelID
	return e
}

// WithTeam adds team information to the error.
func (e *Error) WithTeam(teamID string) *Error {
	e.TeamID = teamID
	return e
}

// UnauthorizedError is returned by middleware when the authenticated
// principal lacks the required roles or permissions. It carries the
// requirement list so callers can introspect what was missing.
type UnauthorizedError struct {
	// Requirement is "role" or "permission".
	Requirement string

	// Required holds the names that were checked.
	Required []string

	// Guard is the guard the check ran under, if one was given.
	Guard string
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: requires %s %s", ErrUnauthorized.Error(), e.Requirement, strings.Join(e.Required, "|"))
}

// Unwrap returns ErrUnauthorized so errors.Is works.
func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// IsDoesNotExist checks if an error is any of the "does not exist" kinds.
func IsDoesNotExist(err error) bool {
	return errors.Is(err, ErrPermissionDoesNotExist) ||
		errors.Is(err, ErrRoleDoesNotExist) ||
		errors.Is(err, ErrGroupDoesNotExist)
}

// IsAlreadyExists checks if an error is any of the uniqueness kinds.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrPermissionAlreadyExists) ||
		errors.Is(err, ErrRoleAlreadyExists) ||
		errors.Is(err, ErrGroupAlreadyExists)
}

// IsGuardMismatch checks if an error is a guard mismatch.
func IsGuardMismatch(err error) bool {
	return errors.Is(err, ErrGuardMismatch)
}

// IsUnauthorized checks if an error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsWildcardError checks if an error comes from wildcard parsing or an
// uninterpretable permission argument.
func IsWildcardError(err error) bool {
	return errors.Is(err, ErrWildcardNotProperlyFormatted) ||
		errors.Is(err, ErrWildcardInvalidArgument)
}
