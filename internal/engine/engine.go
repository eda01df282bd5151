// Package engine implements the task workflows behind the API surface:
// task CRUD, role-scoped listing, and the assignment lifecycle. Every
// mutation runs in a single transaction together with its audit event.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/config"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine/access"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/token"
)

// ErrAssignmentPartial reports an assignment transaction that failed at
// commit time. The join table keeps both directions of the relation, so a
// rolled back transaction leaves neither side updated.
var ErrAssignmentPartial = errors.New("assignment did not fully commit")

// InvalidIdentifierError reports an identifier that is not a valid UUID.
type InvalidIdentifierError struct {
	Value string
}

func (e InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q", e.Value)
}

// ValidationError reports malformed request input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// Engine wires the repositories and token service into the operations the
// server and CLI call. Now is injected so tests control the clock.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Tokens token.Service
	Config *config.Config
	Now    func() time.Time
}

// New builds an Engine over an open database. The signing secrets are
// passed in by the caller; they never live in the config file.
func New(db *sql.DB, cfg *config.Config, accessSecret, refreshSecret []byte) *Engine {
	r := repo.Repo{DB: db}
	now := time.Now
	return &Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db, Now: now},
		Tokens: token.Service{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			RefreshTTL:    cfg.Auth.RefreshTTL.Std(),
			Sessions:      r,
			Identities:    r,
			Now:           now,
		},
		Config: cfg,
		Now:    now,
	}
}

func checkID(id string) error {
	if uuid.Validate(id) != nil {
		return InvalidIdentifierError{Value: id}
	}
	return nil
}

// CreateTask stores a new task owned by the actor. Admin and Root only.
func (e *Engine) CreateTask(ctx context.Context, actorID string, role domain.Role, title, description string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, ValidationError{Msg: "title is required"}
	}
	if err := access.Check(actorID, role, access.ActionCreate, domain.Task{}); err != nil {
		return domain.Task{}, err
	}
	now := e.Now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedBy:   actorID,
		AssignedTo:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, actorID, events.EventPayload{
		"title": t.Title,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// GetTask returns a single task. Any authenticated actor may read it.
func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if err := checkID(id); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// TaskUpdate carries the mutable task fields. Nil means leave unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
}

// UpdateTask applies a partial update. Root may update any task, Admin
// only tasks they created.
func (e *Engine) UpdateTask(ctx context.Context, actorID string, role domain.Role, id string, upd TaskUpdate) (domain.Task, error) {
	if err := checkID(id); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := access.Check(actorID, role, access.ActionUpdate, t); err != nil {
		return domain.Task{}, err
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return domain.Task{}, ValidationError{Msg: "title is required"}
		}
		t.Title = title
	}
	if upd.Description != nil {
		t.Description = strings.TrimSpace(*upd.Description)
	}
	t.UpdatedAt = e.Now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, actorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task and, via the schema, its assignment rows.
func (e *Engine) DeleteTask(ctx context.Context, actorID string, role domain.Role, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Check(actorID, role, access.ActionDelete, t); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTasks returns the tasks visible to the actor: everything for Root,
// tasks they created for Admin, tasks assigned to them for User. An empty
// result is an empty slice, not an error.
func (e *Engine) ListTasks(ctx context.Context, actorID string, role domain.Role) ([]domain.Task, error) {
	var scope repo.TaskScope
	switch role {
	case domain.RoleRoot:
	case domain.RoleAdmin:
		scope.CreatedBy = actorID
	default:
		scope.AssignedTo = actorID
	}
	return e.Repo.ListTasks(ctx, scope)
}

// AssignUsers adds the given identities to a task's assignee set. The join
// table update and the audit event commit together; duplicates in the
// request or against existing rows collapse silently.
func (e *Engine) AssignUsers(ctx context.Context, actorID string, role domain.Role, taskID string, userIDs []string) ([]domain.Assignee, error) {
	if err := checkID(taskID); err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ValidationError{Msg: "at least one user id is required"}
	}
	for _, id := range userIDs {
		if err := checkID(id); err != nil {
			return nil, err
		}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(actorID, role, access.ActionAssign, t); err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		ok, err := e.Repo.IdentityExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("assignee %s: %w", id, repo.ErrIdentityNotFound)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.AddAssignees(ctx, tx, taskID, userIDs); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", "task", taskID, actorID, events.EventPayload{
		"user_ids": userIDs,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssignmentPartial, err)
	}
	return e.Repo.Assignees(ctx, taskID)
}

// UnassignUser removes one identity from a task's assignee set.
func (e *Engine) UnassignUser(ctx context.Context, actorID string, role domain.Role, taskID, userID string) ([]domain.Assignee, error) {
	if err := checkID(taskID); err != nil {
		return nil, err
	}
	if err := checkID(userID); err != nil {
		return nil, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(actorID, role, access.ActionUnassign, t); err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.RemoveAssignee(ctx, tx, taskID, userID); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "task.unassigned", "task", taskID, actorID, events.EventPayload{
		"user_id": userID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssignmentPartial, err)
	}
	return e.Repo.Assignees(ctx, taskID)
}

// Assignees lists a task's assignees with their display names.
func (e *Engine) Assignees(ctx context.Context, taskID string) ([]domain.Assignee, error) {
	if err := checkID(taskID); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.Assignees(ctx, taskID)
}
