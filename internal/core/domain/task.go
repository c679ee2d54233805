package domain

import "time"

// Task kinds submitted by the deferred signal processor.
const (
	TaskIndexSave   = "index.save"
	TaskIndexDelete = "index.delete"
)

// TaskStatus is the delivery state of a task.
type TaskStatus string

// Task states.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// Task is a unit of deferred work. Tasks are delivered at least once.
type Task struct {
	ID        string
	Kind      string
	Payload   []byte
	Status    TaskStatus
	Attempts  int
	LastError string

	// AvailableAt is when the task may next be claimed.
	AvailableAt time.Time
	CreatedAt   time.Time
}

// SaveTaskPayload identifies a saved entity by type and primary key.
type SaveTaskPayload struct {
	Model     string `json:"model"`
	Namespace string `json:"namespace"`
	ID        int64  `json:"id"`
}

// WorkerConfig configures the task worker.
type WorkerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int

	// Lease is how long a claimed task stays invisible to other workers.
	Lease time.Duration
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    time.Second,
		MaxAttempts: 5,
		BatchSize:   32,
		Lease:       5 * time.Minute,
	}
}

// Backoff returns the delay before retrying after the given attempt count.
func (c WorkerConfig) Backoff(attempts int) time.Duration {
	d := c.Interval
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	return d
}
