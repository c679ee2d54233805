package bleveindex

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// AliasExists reports whether alias points to index.
func (b *Backend) AliasExists(_ context.Context, index, alias string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.aliases[alias][index], nil
}

// UpdateAliases applies all actions or none of them.
func (b *Backend) UpdateAliases(_ context.Context, actions []domain.AliasAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]map[string]bool, len(b.aliases))
	for alias, members := range b.aliases {
		cp := make(map[string]bool, len(members))
		for m := range members {
			cp[m] = true
		}
		next[alias] = cp
	}

	for _, a := range actions {
		if _, ok := b.indices[a.Index]; !ok {
			return notFound("update_aliases", a.Index)
		}
		if _, ok := b.indices[a.Alias]; ok {
			return &domain.TransportError{Op: "update_aliases", Index: a.Alias, Status: 400,
				Type: "invalid_alias_name_exception", Reason: "an index exists with the same name as the alias [" + a.Alias + "]"}
		}
		switch a.Op {
		case domain.AliasAdd:
			if next[a.Alias] == nil {
				next[a.Alias] = make(map[string]bool)
			}
			next[a.Alias][a.Index] = true
		case domain.AliasRemove:
			if !next[a.Alias][a.Index] {
				return &domain.TransportError{Op: "update_aliases", Index: a.Index, Status: 404,
					Type: "aliases_not_found_exception", Reason: "aliases [" + a.Alias + "] missing"}
			}
			delete(next[a.Alias], a.Index)
			if len(next[a.Alias]) == 0 {
				delete(next, a.Alias)
			}
		default:
			return &domain.TransportError{Op: "update_aliases", Index: a.Index, Status: 400,
				Type: "illegal_argument_exception", Reason: "unknown alias action [" + string(a.Op) + "]"}
		}
	}

	b.aliases = next
	return b.saveAliases()
}
