package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/reviewtask"
)

const taskColumns = `id, project_id, review_scope, task_name, task_type, status,
	requirements_description, COALESCE(created_by::text, ''), created_at`

func scanTask(row scannable) (reviewtask.Task, error) {
	var t reviewtask.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Scope, &t.Name, &t.Type, &t.Status,
		&t.Requirements, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

func (s *Store) CreateTask(ctx context.Context, createdBy string, req reviewtask.CreateRequest) (*reviewtask.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO review_tasks (project_id, review_scope, task_name, task_type, requirements_description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskColumns,
		req.ProjectID, req.Scope, req.Name, req.Type, req.Requirements, nullIfEmpty(createdBy))

	t, err := scanTask(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create task: project %s: %w", req.ProjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*reviewtask.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM review_tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]reviewtask.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM review_tasks
		 WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []reviewtask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: scan: %w", err)
		}
		tasks = append(tasks, t)
	}
	return orEmpty(tasks), rows.Err()
}

// lockTaskStatus reads the task's status under FOR UPDATE so binding
// mutations serialize against status transitions.
func lockTaskStatus(ctx context.Context, tx pgx.Tx, taskID string) (reviewtask.Status, error) {
	var status reviewtask.Status
	err := tx.QueryRow(ctx,
		`SELECT status FROM review_tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&status)
	if err != nil {
		return "", notFoundWrap(err, "lock task %s", taskID)
	}
	return status, nil
}

// BindVersions associates versions with a task under the given tag.
// Re-binding an already bound version updates its tag. Terminal tasks
// refuse with domain.ErrStateViolation.
func (s *Store) BindVersions(ctx context.Context, taskID string, versionIDs []string, tag reviewtask.VersionTag) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bind versions: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	status, err := lockTaskStatus(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return fmt.Errorf("bind versions: task %s is %s: %w", taskID, status, domain.ErrStateViolation)
	}

	for _, versionID := range versionIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO version_task_associations (task_id, version_id, version_type)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (task_id, version_id) DO UPDATE SET version_type = EXCLUDED.version_type`,
			taskID, versionID, tag)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("bind version %s to task %s: %w", versionID, taskID, domain.ErrNotFound)
			}
			return fmt.Errorf("bind version %s to task %s: %w", versionID, taskID, err)
		}
	}

	return tx.Commit(ctx)
}

// UnbindVersions removes associations. Versions are not reclaimed here;
// only deleting the task or a snapshot triggers orphan reclaim.
func (s *Store) UnbindVersions(ctx context.Context, taskID string, versionIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unbind versions: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	status, err := lockTaskStatus(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return fmt.Errorf("unbind versions: task %s is %s: %w", taskID, status, domain.ErrStateViolation)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM version_task_associations WHERE task_id = $1 AND version_id = ANY($2)`,
		taskID, versionIDs); err != nil {
		return fmt.Errorf("unbind versions from task %s: %w", taskID, err)
	}

	return tx.Commit(ctx)
}

// UpdateTaskStatus moves the task along pending -> running -> {completed,
// failed}. Illegal moves refuse with domain.ErrStateViolation.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, to reviewtask.Status) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("update task status: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	from, err := lockTaskStatus(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if !reviewtask.CanTransition(from, to) {
		return fmt.Errorf("task %s: %s -> %s: %w", taskID, from, to, domain.ErrStateViolation)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE review_tasks SET status = $2, updated_at = now() WHERE id = $1`,
		taskID, to); err != nil {
		return fmt.Errorf("update task %s status: %w", taskID, err)
	}

	return tx.Commit(ctx)
}

// DeleteTask mirrors DeleteSnapshot: drop the task, then reclaim versions
// it referenced that no snapshot or other task still holds.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete task %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	linked, err := collectLinkedVersions(ctx, tx,
		`SELECT version_id FROM version_task_associations WHERE task_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: collect versions: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM review_tasks WHERE id = $1`, id)
	if err := execExpectOne(tag, err, "delete task %s", id); err != nil {
		return err
	}

	if err := reclaimOrphanVersions(ctx, tx, linked); err != nil {
		return fmt.Errorf("delete task %s: reclaim: %w", id, err)
	}

	return tx.Commit(ctx)
}

// GetTaskVersions returns the versions bound to a task, stable by file
// then version number.
func (s *Store) GetTaskVersions(ctx context.Context, taskID string) ([]codefile.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.code_file_id, v.version_number, v.content, v.content_hash,
		        v.line_added_begin, v.line_added_end, v.line_removed_begin, v.line_removed_end,
		        v.change_description, COALESCE(v.updated_by::text, ''), v.updated_at
		 FROM version_task_associations a
		 JOIN code_file_versions v ON v.id = a.version_id
		 WHERE a.task_id = $1
		 ORDER BY v.code_file_id, v.version_number`, taskID)
	if err != nil {
		return nil, fmt.Errorf("task versions %s: %w", taskID, err)
	}
	defer rows.Close()

	var versions []codefile.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("task versions %s: scan: %w", taskID, err)
		}
		versions = append(versions, v)
	}
	return orEmpty(versions), rows.Err()
}
