package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// Ensure TaskWorker implements the interface.
var _ driving.TaskWorker = (*TaskWorker)(nil)

// TaskHandler executes one task. A returned error schedules a retry.
type TaskHandler func(ctx context.Context, task domain.Task) error

// TaskWorker polls a task source and runs due tasks one at a time, in
// submission order.
type TaskWorker struct {
	config   domain.WorkerConfig
	source   driven.TaskSource
	handlers map[string]TaskHandler

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTaskWorker creates a worker with configuration.
func NewTaskWorker(config domain.WorkerConfig, source driven.TaskSource, handlers map[string]TaskHandler) *TaskWorker {
	defaults := domain.DefaultWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	return &TaskWorker{
		config:   config,
		source:   source,
		handlers: handlers,
	}
}

// Start begins the worker loop. This method blocks until Stop is called
// or ctx is cancelled.
func (w *TaskWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			logger.Warn("worker: %v", err)
		}
		select {
		case <-ctx.Done():
			w.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

func (w *TaskWorker) markStopped() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
}

// Stop gracefully shuts down the worker, waiting for the current task.
func (w *TaskWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

// RunOnce claims the due tasks and runs them sequentially.
func (w *TaskWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.source.Claim(ctx, w.config.BatchSize, w.config.Lease)
	if err != nil {
		return 0, fmt.Errorf("claiming tasks: %w", err)
	}

	ran := 0
	for i := range tasks {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		w.runTask(ctx, tasks[i])
		ran++
	}
	return ran, nil
}

// runTask executes a single task and records its outcome.
func (w *TaskWorker) runTask(ctx context.Context, task domain.Task) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		err := fmt.Errorf("%w: task kind %q", domain.ErrUnsupportedType, task.Kind)
		if failErr := w.source.Fail(ctx, task.ID, err, time.Time{}); failErr != nil {
			logger.Warn("worker: failed to record error for %s: %v", task.ID, failErr)
		}
		return
	}

	err := handler(ctx, task)
	if err == nil {
		if completeErr := w.source.Complete(ctx, task.ID); completeErr != nil {
			logger.Warn("worker: failed to complete %s: %v", task.ID, completeErr)
		}
		return
	}

	attempts := task.Attempts + 1
	log := logger.With("task", task.ID, "kind", task.Kind, "attempt", attempts)
	var retryAt time.Time
	if attempts < w.config.MaxAttempts {
		retryAt = time.Now().Add(w.config.Backoff(attempts))
		log.Warnf("worker: task failed, retrying at %s: %v", retryAt.Format(time.RFC3339), err)
	} else {
		log.Errorf("worker: task dead: %v", err)
	}
	if failErr := w.source.Fail(ctx, task.ID, err, retryAt); failErr != nil {
		logger.Warn("worker: failed to record error for %s: %v", task.ID, failErr)
	}
}
