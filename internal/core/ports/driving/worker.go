package driving

import "context"

// TaskWorker executes deferred index tasks.
type TaskWorker interface {
	// Start polls for tasks until Stop is called or ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the worker.
	Stop() error

	// RunOnce processes the currently due tasks and returns how many ran.
	RunOnce(ctx context.Context) (int, error)
}
