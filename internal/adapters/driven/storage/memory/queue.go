package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
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

// TaskQueue is an in-memory task queue. Tasks are claimed in submission
// order.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []*domain.Task
	now   func() time.Time
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{now: time.Now}
}

// Enqueue appends a task.
func (q *TaskQueue) Enqueue(_ context.Context, kind string, payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	task := &domain.Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     slices.Clone(payload),
		Status:      domain.TaskPending,
		AvailableAt: now,
		CreatedAt:   now,
	}
	q.tasks = append(q.tasks, task)
	return task.ID, nil
}

// Claim leases up to limit due tasks. Running tasks whose lease expired
// are claimable again.
func (q *TaskQueue) Claim(_ context.Context, limit int, lease time.Duration) ([]domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var out []domain.Task
	for _, t := range q.tasks {
		if limit > 0 && len(out) >= limit {
			break
		}
		claimable := t.Status == domain.TaskPending || t.Status == domain.TaskRunning
		if !claimable || t.AvailableAt.After(now) {
			continue
		}
		t.Status = domain.TaskRunning
		t.AvailableAt = now.Add(lease)
		out = append(out, *t)
	}
	return out, nil
}

// Complete marks a task done.
func (q *TaskQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.find(id)
	if err != nil {
		return err
	}
	t.Status = domain.TaskDone
	return nil
}

// Fail records an error and reschedules the task, or marks it dead when
// retryAt is zero.
func (q *TaskQueue) Fail(_ context.Context, id string, cause error, retryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.find(id)
	if err != nil {
		return err
	}
	t.Attempts++
	if cause != nil {
		t.LastError = cause.Error()
	}
	if retryAt.IsZero() {
		t.Status = domain.TaskDead
		return nil
	}
	t.Status = domain.TaskPending
	t.AvailableAt = retryAt
	return nil
}

// Tasks returns a copy of every task, in submission order.
func (q *TaskQueue) Tasks() []domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = *t
	}
	return out
}

func (q *TaskQueue) find(id string) (*domain.Task, error) {
	for _, t := range q.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
}
