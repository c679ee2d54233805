package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// Ensure TaskQueue implements the interfaces.
var (
	_ driven.TaskQueue  = (*TaskQueue)(nil)
	_ driven.TaskSource = (*TaskQueue)(nil)
)

// TaskQueue persists deferred tasks in the tasks table. Enqueue joins the
// transaction carried by its context, so a task of a rolled back unit of
// work is never delivered.
type TaskQueue struct {
	store *Store
	now   func() time.Time
}

func newTaskQueue(s *Store) *TaskQueue {
	return &TaskQueue{store: s, now: time.Now}
}

// Enqueue persists a pending task.
func (q *TaskQueue) Enqueue(ctx context.Context, kind string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := q.now().UnixNano()
	_, err := q.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO tasks (id, kind, payload, status, attempts, available_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, id, kind, payload, string(domain.TaskPending), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueueing %s task: %w", kind, err)
	}
	return id, nil
}

// Claim leases up to limit due tasks in submission order. Running tasks
// whose lease expired are claimable again.
func (q *TaskQueue) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.Task, error) {
	if limit <= 0 {
		limit = -1
	}
	var tasks []domain.Task
	err := q.store.WithTx(ctx, func(ctx context.Context) error {
		now := q.now()
		conn := q.store.conn(ctx)
		rows, err := conn.QueryContext(ctx, `
			SELECT id, kind, payload, status, attempts, last_error, available_at, created_at
			FROM tasks
			WHERE status IN (?, ?) AND available_at <= ?
			ORDER BY seq
			LIMIT ?
		`, string(domain.TaskPending), string(domain.TaskRunning), now.UnixNano(), limit)
		if err != nil {
			return fmt.Errorf("selecting tasks: %w", err)
		}
		tasks, err = scanTasks(rows)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		until := now.Add(lease)
		ids := make([]any, 0, len(tasks)+2)
		ids = append(ids, string(domain.TaskRunning), until.UnixNano())
		for i := range tasks {
			tasks[i].Status = domain.TaskRunning
			tasks[i].AvailableAt = until
			ids = append(ids, tasks[i].ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tasks)), ", ")
		if _, err := conn.ExecContext(ctx,
			"UPDATE tasks SET status = ?, available_at = ? WHERE id IN ("+placeholders+")", ids...); err != nil {
			return fmt.Errorf("leasing tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Complete marks a task done.
func (q *TaskQueue) Complete(ctx context.Context, id string) error {
	return q.update(ctx, id, "UPDATE tasks SET status = ? WHERE id = ?", string(domain.TaskDone), id)
}

// Fail records an error and reschedules the task, or marks it dead when
// retryAt is zero.
func (q *TaskQueue) Fail(ctx context.Context, id string, cause error, retryAt time.Time) error {
	var lastError sql.NullString
	if cause != nil {
		lastError = sql.NullString{String: cause.Error(), Valid: true}
	}
	if retryAt.IsZero() {
		return q.update(ctx, id,
			"UPDATE tasks SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?",
			string(domain.TaskDead), lastError, id)
	}
	return q.update(ctx, id,
		"UPDATE tasks SET status = ?, attempts = attempts + 1, last_error = ?, available_at = ? WHERE id = ?",
		string(domain.TaskPending), lastError, retryAt.UnixNano(), id)
}

// Get returns one task.
func (q *TaskQueue) Get(ctx context.Context, id string) (*domain.Task, error) {
	rows, err := q.store.conn(ctx).QueryContext(ctx, `
		SELECT id, kind, payload, status, attempts, last_error, available_at, created_at
		FROM tasks WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return &tasks[0], nil
}

// Stats returns the number of tasks in each state.
func (q *TaskQueue) Stats(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := q.store.conn(ctx).QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning task count: %w", err)
		}
		stats[domain.TaskStatus(status)] = n
	}
	return stats, rows.Err()
}

// Purge deletes finished tasks created before cutoff.
func (q *TaskQueue) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := q.store.conn(ctx).ExecContext(ctx,
		"DELETE FROM tasks WHERE status IN (?, ?) AND created_at < ?",
		string(domain.TaskDone), string(domain.TaskDead), before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *TaskQueue) update(ctx context.Context, id, stmt string, args ...any) error {
	res, err := q.store.conn(ctx).ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task //nolint:prealloc // row count unknown
	for rows.Next() {
		var (
			t           domain.Task
			status      string
			lastError   sql.NullString
			availableAt int64
			createdAt   int64
		)
		if err := rows.Scan(&t.ID, &t.Kind, &t.Payload, &status, &t.Attempts, &lastError, &availableAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Status = domain.TaskStatus(status)
		t.LastError = lastError.String
		t.AvailableAt = time.Unix(0, availableAt)
		t.CreatedAt = time.Unix(0, createdAt)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, nil
}
