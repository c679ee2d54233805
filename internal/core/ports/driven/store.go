package driven

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// EntityStore reads relational entities.
type EntityStore interface {
	// Model returns a registered model by name.
	Model(name string) (*domain.Model, bool)

	// Get returns one entity. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, model string, id int64) (*domain.Entity, error)

	// Find executes a query. Invalid lookups fail with *domain.FilterError.
	Find(ctx context.Context, q domain.Query) ([]*domain.Entity, error)

	// Count returns the number of entities a query selects.
	Count(ctx context.Context, q domain.Query) (int, error)
}

// Committer defers work until the current unit of work commits.
type Committer interface {
	// OnCommit runs fn once the transaction carried by ctx commits, or
	// immediately when ctx carries none. Hooks of a rolled back
	// transaction never run.
	OnCommit(ctx context.Context, fn func(context.Context))
}

// SignalHandler receives one lifecycle event.
type SignalHandler func(ctx context.Context, sig domain.Signal) error

// SignalBus delivers relational lifecycle events.
type SignalBus interface {
	// Subscribe registers a handler for one kind of event. The returned
	// function removes it and is safe to call more than once.
	Subscribe(kind domain.SignalKind, h SignalHandler) (cancel func())
}

// SignalPublisher emits lifecycle events to subscribers.
type SignalPublisher interface {
	// Publish delivers sig to every handler of its kind, in subscription
	// order, and joins their errors.
	Publish(ctx context.Context, sig domain.Signal) error
}
