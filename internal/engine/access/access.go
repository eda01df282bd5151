// Package access holds the authorization decision for task operations.
// Decisions are pure: the caller loads the task first (a missing task is
// TaskNotFound, decided before authorization ever runs).
package access

import (
	"fmt"

	"taskdesk/internal/domain"
)

// Action enumerates the gated task operations.
type Action string

const (
	ActionRead     Action = "read"
	ActionReadAll  Action = "read_all"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionAssign   Action = "assign"
	ActionUnassign Action = "unassign"
)

// DeniedError indicates an authenticated actor lacks rights for an action.
type DeniedError struct {
	Action Action
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("not authorized to %s this task", e.Action)
}

// Authorize decides whether the actor may perform the action on the task.
//
// Root may do anything. Admin may create, and may mutate only tasks it owns:
// the admin role is necessary but not sufficient, the owning relation is
// mandatory. Reading a single task requires authentication only. ReadAll is
// query shaping, handled by the list scope, and always passes here.
func Authorize(actorID string, role domain.Role, action Action, task domain.Task) bool {
	if role == domain.RoleRoot {
		return true
	}
	switch action {
	case ActionRead, ActionReadAll:
		return true
	case ActionCreate:
		return role == domain.RoleAdmin
	case ActionUpdate, ActionDelete, ActionAssign, ActionUnassign:
		return role == domain.RoleAdmin && task.CreatedBy == actorID
	}
	return false
}

// Check is Authorize with a DeniedError instead of a bool.
func Check(actorID string, role domain.Role, action Action, task domain.Task) error {
	if !Authorize(actorID, role, action, task) {
		return DeniedError{Action: action}
	}
	return nil
}

// RoleDeniedError indicates an operation gated on a minimum role tier.
type RoleDeniedError struct {
	Required domain.Role
}

func (e RoleDeniedError) Error() string {
	return fmt.Sprintf("%s role required", e.Required)
}

// RequireRole gates operations that hang off the role tier alone, such as
// user administration.
func RequireRole(role, min domain.Role) error {
	if role.AtLeast(min) {
		return nil
	}
	return RoleDeniedError{Required: min}
}
