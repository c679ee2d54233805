package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// TaskQueue accepts deferred work.
type TaskQueue interface {
	// Enqueue persists a task. The task is delivered at least once and
	// tasks are claimed in submission order.
	Enqueue(ctx context.Context, kind string, payload []byte) (string, error)
}

// TaskSource hands queued tasks to a worker.
type TaskSource interface {
	// Claim leases up to limit due tasks, oldest first. A leased task
	// becomes claimable again once the lease expires.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.Task, error)

	// Complete marks a task done.
	Complete(ctx context.Context, id string) error

	// Fail records an error. The task is retried at retryAt, or marked
	// dead when retryAt is zero.
	Fail(ctx context.Context, id string, cause error, retryAt time.Time) error
}

// EntitySerializer converts entities to and from a portable form.
type EntitySerializer interface {
	// Name identifies the format, e.g. "json".
	Name() string

	Serialize(entities []*domain.Entity) ([]byte, error)

	// Deserialize rebuilds entities, resolving model labels through models.
	Deserialize(data []byte, models ModelResolver) ([]*domain.Entity, error)
}

// ModelResolver resolves a model by its namespaced label.
type ModelResolver func(label string) (*domain.Model, bool)
