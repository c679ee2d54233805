package driving

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// SearchService queries an index and resolves hits to entities.
type SearchService interface {
	// Search runs a query against an index and returns hits in score order
	// with their entities. Hits whose entity no longer exists are dropped.
	Search(ctx context.Context, index, query string, limit int) ([]domain.SearchResult, error)
}
