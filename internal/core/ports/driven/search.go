package driven

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// SearchBackend is the search engine the registry keeps in sync.
//
// Index management calls fail with *domain.TransportError when the backend
// rejects them. Bulk never fails for individual rejected items; those are
// reported per item in the response.
type SearchBackend interface {
	// Bulk submits a batch of requests. Items in the response follow
	// request order. With refresh, written documents are searchable on return.
	Bulk(ctx context.Context, reqs []domain.BulkRequest, refresh bool) (domain.BulkResponse, error)

	// CreateIndex creates a concrete index.
	CreateIndex(ctx context.Context, name string, body domain.IndexBody) error

	// DeleteIndex deletes a concrete index.
	DeleteIndex(ctx context.Context, name string) error

	// IndexExists reports whether name is an index or an alias.
	IndexExists(ctx context.Context, name string) (bool, error)

	// PutMapping extends the mapping of an index.
	PutMapping(ctx context.Context, name string, mappings map[string]any) error

	// ListIndices returns the sorted concrete index names matching a
	// pattern with an optional trailing "*".
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	// AliasExists reports whether alias points to index.
	AliasExists(ctx context.Context, index, alias string) (bool, error)

	// UpdateAliases applies all actions atomically.
	UpdateAliases(ctx context.Context, actions []domain.AliasAction) error

	// Count returns the number of documents in an index or alias.
	Count(ctx context.Context, name string) (int, error)

	// ScanIDs returns the ids of every document in an index or alias.
	ScanIDs(ctx context.Context, name string) ([]string, error)

	// Search runs a query string query. An empty query matches everything.
	Search(ctx context.Context, name, query string, limit int) ([]domain.Hit, error)

	// Close releases resources.
	Close() error
}
