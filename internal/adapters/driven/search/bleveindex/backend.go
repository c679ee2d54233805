package bleveindex

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

const (
	indexSuffix = ".bleve"
	aliasFile   = "aliases.json"
	scanPage    = 1000
)

// Ensure Backend implements the interface.
var _ driven.SearchBackend = (*Backend)(nil)

type entry struct {
	index bleve.Index
	body  domain.IndexBody
}

// Backend is an embedded search backend. Each concrete index is a bleve
// index; aliases are bleve index aliases over them.
type Backend struct {
	dir string

	mu      sync.RWMutex
	indices map[string]*entry
	aliases map[string]map[string]bool
}

// New opens the indices and aliases stored under dir. An empty dir keeps
// everything in memory.
func New(dir string) (*Backend, error) {
	b := &Backend{
		dir:     dir,
		indices: make(map[string]*entry),
		aliases: make(map[string]map[string]bool),
	}
	if dir == "" {
		return b, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), indexSuffix)
		if !ok || !e.IsDir() {
			continue
		}
		idx, err := bleve.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening index %s: %w", name, err)
		}
		idx.SetName(name)
		b.indices[name] = &entry{index: idx}
	}
	if err := b.loadAliases(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close closes every index.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, e := range b.indices {
		if err := e.index.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing index %s: %w", name, err)
		}
	}
	b.indices = make(map[string]*entry)
	return firstErr
}

func notFound(op, name string) error {
	return &domain.TransportError{
		Op:     op,
		Index:  name,
		Status: 404,
		Type:   "index_not_found_exception",
		Reason: "no such index [" + name + "]",
	}
}

// CreateIndex creates a concrete index.
func (b *Backend) CreateIndex(_ context.Context, name string, body domain.IndexBody) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indices[name]; ok {
		return &domain.TransportError{Op: "create", Index: name, Status: 400,
			Type: "resource_already_exists_exception", Reason: "index [" + name + "] already exists"}
	}
	if _, ok := b.aliases[name]; ok {
		return &domain.TransportError{Op: "create", Index: name, Status: 400,
			Type: "invalid_index_name_exception", Reason: "an alias named [" + name + "] exists"}
	}

	m := buildMapping(body.Mappings)
	var idx bleve.Index
	var err error
	if b.dir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(b.path(name), m)
	}
	if err != nil {
		return &domain.TransportError{Op: "create", Index: name, Status: 400,
			Type: "illegal_argument_exception", Reason: err.Error()}
	}
	idx.SetName(name)
	b.indices[name] = &entry{index: idx, body: body}
	return nil
}

// DeleteIndex deletes a concrete index and drops it from every alias.
func (b *Backend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.indices[name]
	if !ok {
		return notFound("delete", name)
	}
	if err := e.index.Close(); err != nil {
		return fmt.Errorf("closing index %s: %w", name, err)
	}
	delete(b.indices, name)
	if b.dir != "" {
		if err := os.RemoveAll(b.path(name)); err != nil {
			return fmt.Errorf("removing index %s: %w", name, err)
		}
	}
	for alias, members := range b.aliases {
		delete(members, name)
		if len(members) == 0 {
			delete(b.aliases, alias)
		}
	}
	return b.saveAliases()
}

// IndexExists reports whether name is an index or an alias.
func (b *Backend) IndexExists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, isIndex := b.indices[name]
	_, isAlias := b.aliases[name]
	return isIndex || isAlias, nil
}

// PutMapping records additional mappings. Bleve maps new fields
// dynamically, so documents written afterwards are searchable on them.
func (b *Backend) PutMapping(_ context.Context, name string, mappings map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.indices[name]
	if !ok {
		return notFound("put_mapping", name)
	}
	e.body.Mappings = mergeMappings(e.body.Mappings, mappings)
	return nil
}

// Mappings returns the mappings an index was created or extended with.
func (b *Backend) Mappings(name string) (map[string]any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.indices[name]
	if !ok {
		return nil, false
	}
	return maps.Clone(e.body.Mappings), true
}

// ListIndices returns the sorted concrete index names matching pattern.
func (b *Backend) ListIndices(_ context.Context, pattern string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	var out []string
	for name := range b.indices {
		if (wildcard && strings.HasPrefix(name, prefix)) || name == pattern {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of documents in an index or alias.
func (b *Backend) Count(_ context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	targets, err := b.targets("count", name)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range targets {
		n, err := b.indices[t].index.DocCount()
		if err != nil {
			return 0, fmt.Errorf("counting %s: %w", t, err)
		}
		total += int(n) //nolint:gosec // document counts fit in int
	}
	return total, nil
}

// ScanIDs returns the ids of every document in an index or alias.
func (b *Backend) ScanIDs(ctx context.Context, name string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	searcher, err := b.searcher("scan", name)
	if err != nil {
		return nil, err
	}

	var ids []string
	for from := 0; ; from += scanPage {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), scanPage, from, false)
		req.SortBy([]string{"_id"})
		res, err := searcher.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", name, err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < scanPage {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Search runs a query string query. An empty query matches everything.
func (b *Backend) Search(ctx context.Context, name, query string, limit int) ([]domain.Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	searcher, err := b.searcher("search", name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), limit, 0, false)
	if strings.TrimSpace(query) != "" {
		req = bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	}
	res, err := searcher.SearchInContext(ctx, req)
	if err != nil {
		return nil, &domain.TransportError{Op: "search", Index: name, Status: 400,
			Type: "search_phase_execution_exception", Reason: err.Error()}
	}

	hits := make([]domain.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		index := h.Index
		if index == "" {
			index = name
		}
		hits = append(hits, domain.Hit{Index: index, ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// targets resolves an index or alias to concrete index names.
// Must be called with a lock held.
func (b *Backend) targets(op, name string) ([]string, error) {
	if _, ok := b.indices[name]; ok {
		return []string{name}, nil
	}
	members, ok := b.aliases[name]
	if !ok {
		return nil, notFound(op, name)
	}
	out := make([]string, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// searcher returns the index, or an alias over the targets of name.
// Must be called with a lock held.
func (b *Backend) searcher(op, name string) (bleve.Index, error) {
	targets, err := b.targets(op, name)
	if err != nil {
		return nil, err
	}
	if len(targets) == 1 {
		return b.indices[targets[0]].index, nil
	}
	alias := bleve.NewIndexAlias()
	for _, t := range targets {
		alias.Add(b.indices[t].index)
	}
	return alias, nil
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.dir, name+indexSuffix)
}

func (b *Backend) loadAliases() error {
	data, err := os.ReadFile(filepath.Join(b.dir, aliasFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading aliases: %w", err)
	}
	var stored map[string][]string
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parsing aliases: %w", err)
	}
	for alias, members := range stored {
		set := make(map[string]bool, len(members))
		for _, m := range members {
			if _, ok := b.indices[m]; ok {
				set[m] = true
			}
		}
		if len(set) > 0 {
			b.aliases[alias] = set
		}
	}
	return nil
}

// saveAliases persists aliases. Must be called with the write lock held.
func (b *Backend) saveAliases() error {
	if b.dir == "" {
		return nil
	}
	stored := make(map[string][]string, len(b.aliases))
	for alias := range b.aliases {
		members, _ := b.targets("alias", alias)
		stored[alias] = members
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding aliases: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, aliasFile), data, 0600); err != nil {
		return fmt.Errorf("writing aliases: %w", err)
	}
	return nil
}
