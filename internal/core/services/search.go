package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// defaultSearchLimit bounds a search when no limit is given.
const defaultSearchLimit = 20

// SearchService queries indices and maps hits back to entities.
type SearchService struct {
	registry *DocumentRegistry
}

// NewSearchService creates a new search service.
func NewSearchService(registry *DocumentRegistry) *SearchService {
	return &SearchService{registry: registry}
}

// Search runs a query string against an index and resolves each hit to the
// entity it was built from. Hits whose entity no longer exists are
// dropped.
func (s *SearchService) Search(ctx context.Context, index, query string, limit int) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Index: %s, query: %q", index, query)

	idx, ok := s.registry.Index(index)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownIndex, index)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	hits, err := s.registry.Backend().Search(ctx, idx.Name, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", idx.Name, err)
	}
	logger.Debug("Backend returned %d hits", len(hits))

	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = domain.SearchResult{Hit: h}
	}

	// An index holds the documents of several models; hits are resolved
	// against each until found.
	for _, d := range s.registry.IndexDocuments(idx.Name) {
		pending := make([]domain.Hit, 0, len(hits))
		for _, r := range results {
			if r.Entity == nil {
				pending = append(pending, r.Hit)
			}
		}
		if len(pending) == 0 {
			break
		}
		entities, err := s.Entities(ctx, d, pending, false)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]*domain.Entity, len(entities))
		for _, e := range entities {
			byID[e.ID] = e
		}
		for i := range results {
			if results[i].Entity != nil {
				continue
			}
			if id, err := strconv.ParseInt(results[i].Hit.ID, 10, 64); err == nil {
				if e, ok := byID[id]; ok {
					results[i].Entity = e
				}
			}
		}
	}

	out := results[:0]
	for _, r := range results {
		if r.Entity != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// Entities returns the entities of d matching hits. Hits that do not hold
// an integer id, or whose entity is gone, are dropped. With keepOrder the
// entities follow the hit order, otherwise primary key order.
func (s *SearchService) Entities(ctx context.Context, d *Document, hits []domain.Hit, keepOrder bool) ([]*domain.Entity, error) {
	ids := make([]any, 0, len(hits))
	order := make(map[int64]int, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		if _, seen := order[id]; seen {
			continue
		}
		order[id] = len(ids)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	store, err := d.store("")
	if err != nil {
		return nil, err
	}
	q := domain.NewQuery(d.model.Name).Where(domain.In("id", ids...)).OrderBy("id")
	found, err := store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading %s hits: %w", d.model.Name, err)
	}
	if !keepOrder {
		return found, nil
	}

	ordered := make([]*domain.Entity, len(ids))
	for _, e := range found {
		ordered[order[e.ID]] = e
	}
	out := ordered[:0]
	for _, e := range ordered {
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
