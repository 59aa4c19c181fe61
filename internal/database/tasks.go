package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

const taskColumns = `id, task_name, dataset_slug, status, message, started_at, ended_at,
	traceback, creator, abort_requested, created_at`

func scanTask(row pgx.Row) (*core.TaskStatus, error) {
	var (
		t      core.TaskStatus
		status string
	)
	err := row.Scan(&t.ID, &t.TaskName, &t.DatasetSlug, &status, &t.Message, &t.Start, &t.End,
		&t.Traceback, &t.Creator, &t.AbortRequested, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = core.TaskState(status)
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *core.TaskStatus) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_status (id, task_name, dataset_slug, status, message, started_at, ended_at,
			traceback, creator, abort_requested, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.TaskName, t.DatasetSlug, string(t.Status), t.Message, t.Start, t.End,
		t.Traceback, t.Creator, t.AbortRequested, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.TaskStatus, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM task_status WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return t, nil
}

// ListTasks returns up to limit tasks, newest first. A limit of zero or
// less returns every task.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]core.TaskStatus, error) {
	query := `SELECT ` + taskColumns + ` FROM task_status ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []core.TaskStatus
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SaveTask writes every column except abort_requested.
func (s *Store) SaveTask(ctx context.Context, t *core.TaskStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_status SET
			task_name = $2, dataset_slug = $3, status = $4, message = $5,
			started_at = $6, ended_at = $7, traceback = $8, creator = $9
		WHERE id = $1`,
		t.ID, t.TaskName, t.DatasetSlug, string(t.Status), t.Message, t.Start, t.End, t.Traceback, t.Creator)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) RequestAbort(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE task_status SET abort_requested = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request abort of task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	return nil
}
