package repo

import (
	"context"
	"database/sql"
	"errors"

	"taskdesk/internal/domain"
)

// Repo is the store collaborator for identities, tasks, and sessions,
// backed by SQLite.
type Repo struct {
	DB *sql.DB
}

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrIdentityNotFound = errors.New("identity not found")
)

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,description,created_by,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.Title, &description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrTaskNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	t.AssignedTo, err = r.AssigneeIDs(ctx, t.ID)
	return t, err
}

// TaskScope selects which task set a listing covers.
type TaskScope struct {
	// CreatedBy restricts to tasks owned by the given identity.
	CreatedBy string
	// AssignedTo restricts to tasks the given identity is assigned to.
	AssignedTo string
}

// ListTasks returns tasks in the scope, newest first.
func (r Repo) ListTasks(ctx context.Context, scope TaskScope) ([]domain.Task, error) {
	query := `SELECT id,title,description,created_by,created_at,updated_at FROM tasks`
	var args []any
	switch {
	case scope.CreatedBy != "":
		query += ` WHERE created_by=?`
		args = append(args, scope.CreatedBy)
	case scope.AssignedTo != "":
		query += ` WHERE id IN (SELECT task_id FROM task_assignees WHERE user_id=?)`
		args = append(args, scope.AssignedTo)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			t.Description = description.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		ids, err := r.AssigneeIDs(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].AssignedTo = ids
	}
	return res, nil
}

// AddAssignees inserts assignment rows with set semantics: an id already in
// the set is ignored, not duplicated.
func (r Repo) AddAssignees(ctx context.Context, tx *sql.Tx, taskID string, userIDs []string) error {
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id, user_id) VALUES (?,?)`, taskID, id); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAssignee deletes an assignment row. Removing an id that is not
// assigned is a no-op.
func (r Repo) RemoveAssignee(ctx context.Context, tx *sql.Tx, taskID, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID)
	return err
}

// AssigneeIDs returns the identity ids assigned to a task.
func (r Repo) AssigneeIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_assignees WHERE task_id=? ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Assignees returns the assigned identities resolved to {id, name} pairs.
func (r Repo) Assignees(ctx context.Context, taskID string) ([]domain.Assignee, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT i.id, i.name FROM task_assignees ta
JOIN identities i ON i.id=ta.user_id
WHERE ta.task_id=? ORDER BY i.name, i.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignee
	for rows.Next() {
		var a domain.Assignee
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// TaskIDsForIdentity returns the identity-side view of the assignment
// relation.
func (r Repo) TaskIDsForIdentity(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id FROM task_assignees WHERE user_id=? ORDER BY task_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
