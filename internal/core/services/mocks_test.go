package services

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// --- Mock implementations for testing ---

// mockBackend is an in-memory search backend that answers bulk items the
// way the real engines do.
type mockBackend struct {
	mu      sync.Mutex
	indices map[string]map[string]map[string]any
	bodies  map[string]domain.IndexBody
	aliases map[string][]string

	// reject makes bulk items with these ids fail with the given reason.
	reject map[string]string

	bulkErr   error
	createErr error

	bulkCalls [][]domain.BulkRequest
	refreshes []bool
	aliasOps  [][]domain.AliasAction
}

var _ driven.SearchBackend = (*mockBackend)(nil)

func newMockBackend(indices ...string) *mockBackend {
	b := &mockBackend{
		indices: make(map[string]map[string]map[string]any),
		bodies:  make(map[string]domain.IndexBody),
		aliases: make(map[string][]string),
		reject:  make(map[string]string),
	}
	for _, name := range indices {
		b.indices[name] = make(map[string]map[string]any)
	}
	return b
}

// resolve maps an alias onto its single target.
func (b *mockBackend) resolve(name string) (string, bool) {
	if _, ok := b.indices[name]; ok {
		return name, true
	}
	if targets := b.aliases[name]; len(targets) == 1 {
		return targets[0], true
	}
	return "", false
}

func (b *mockBackend) Bulk(_ context.Context, reqs []domain.BulkRequest, refresh bool) (domain.BulkResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bulkErr != nil {
		return domain.BulkResponse{}, b.bulkErr
	}
	b.bulkCalls = append(b.bulkCalls, slices.Clone(reqs))
	b.refreshes = append(b.refreshes, refresh)

	resp := domain.BulkResponse{Items: make([]domain.BulkItemResult, 0, len(reqs))}
	for _, req := range reqs {
		item := domain.BulkItemResult{Action: req.Action, Index: req.Index, ID: req.ID}
		name, ok := b.resolve(req.Index)
		docs := b.indices[name]
		_, exists := docs[req.ID]
		switch {
		case b.reject[req.ID] != "":
			item.Status, item.Type, item.Reason = 400, "mapper_parsing_exception", b.reject[req.ID]
		case !ok:
			item.Status, item.Type, item.Reason = 404, "index_not_found_exception", "no such index"
		case req.Action == domain.ActionDelete && !exists:
			item.Status, item.Result = 404, "not_found"
		case req.Action == domain.ActionDelete:
			delete(docs, req.ID)
			item.Status, item.Result = 200, "deleted"
		case req.Action == domain.ActionCreate && exists:
			item.Status, item.Type, item.Reason = 409, "version_conflict_engine_exception", "document already exists"
		case req.Action == domain.ActionUpdate && !exists:
			item.Status, item.Type, item.Reason = 404, "document_missing_exception", "document missing"
		case req.Action == domain.ActionUpdate:
			maps.Copy(docs[req.ID], req.Doc)
			item.Status, item.Result = 200, "updated"
		default:
			docs[req.ID] = maps.Clone(req.Source)
			item.Status, item.Result = 201, "created"
			if exists {
				item.Status, item.Result = 200, "updated"
			}
		}
		resp.Items = append(resp.Items, item)
	}
	return resp, nil
}

func (b *mockBackend) CreateIndex(_ context.Context, name string, body domain.IndexBody) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return b.createErr
	}
	if _, ok := b.indices[name]; ok {
		return &domain.TransportError{Op: "create", Index: name, Status: 400, Type: "resource_already_exists_exception", Reason: "index " + name + " already exists"}
	}
	b.indices[name] = make(map[string]map[string]any)
	b.bodies[name] = body
	return nil
}

func (b *mockBackend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indices[name]; !ok {
		return &domain.TransportError{Op: "delete", Index: name, Status: 404, Type: "index_not_found_exception", Reason: "no such index [" + name + "]"}
	}
	delete(b.indices, name)
	for alias, targets := range b.aliases {
		b.aliases[alias] = slices.DeleteFunc(targets, func(t string) bool { return t == name })
	}
	return nil
}

func (b *mockBackend) IndexExists(_ context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.indices[name]
	return ok || len(b.aliases[name]) > 0, nil
}

func (b *mockBackend) PutMapping(_ context.Context, name string, mappings map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indices[name]; !ok {
		return &domain.TransportError{Op: "put_mapping", Index: name, Status: 404, Type: "index_not_found_exception", Reason: "no such index"}
	}
	body := b.bodies[name]
	body.Mappings = mappings
	b.bodies[name] = body
	return nil
}

func (b *mockBackend) ListIndices(_ context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	for name := range b.indices {
		if (wildcard && strings.HasPrefix(name, prefix)) || name == pattern {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *mockBackend) AliasExists(_ context.Context, index, alias string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Contains(b.aliases[alias], index), nil
}

func (b *mockBackend) UpdateAliases(_ context.Context, actions []domain.AliasAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aliasOps = append(b.aliasOps, slices.Clone(actions))
	for _, a := range actions {
		switch a.Op {
		case domain.AliasAdd:
			if !slices.Contains(b.aliases[a.Alias], a.Index) {
				b.aliases[a.Alias] = append(b.aliases[a.Alias], a.Index)
			}
		case domain.AliasRemove:
			b.aliases[a.Alias] = slices.DeleteFunc(b.aliases[a.Alias], func(t string) bool { return t == a.Index })
		}
	}
	return nil
}

func (b *mockBackend) Count(_ context.Context, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	target, _ := b.resolve(name)
	return len(b.indices[target]), nil
}

func (b *mockBackend) ScanIDs(_ context.Context, name string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	target, _ := b.resolve(name)
	ids := slices.Collect(maps.Keys(b.indices[target]))
	sort.Strings(ids)
	return ids, nil
}

func (b *mockBackend) Search(_ context.Context, name, query string, limit int) ([]domain.Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	target, _ := b.resolve(name)
	var hits []domain.Hit
	for _, id := range slices.Sorted(maps.Keys(b.indices[target])) {
		doc := b.indices[target][id]
		if query != "" && !strings.Contains(strings.ToLower(stringValues(doc)), strings.ToLower(query)) {
			continue
		}
		hits = append(hits, domain.Hit{Index: target, ID: id, Score: 1})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (b *mockBackend) Close() error { return nil }

// doc returns a stored document, resolving aliases.
func (b *mockBackend) doc(index, id string) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	target, _ := b.resolve(index)
	d, ok := b.indices[target][id]
	return d, ok
}

func (b *mockBackend) ids(index string) []string {
	ids, _ := b.ScanIDs(context.Background(), index)
	return ids
}

func (b *mockBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bulkCalls)
}

func stringValues(doc map[string]any) string {
	var sb strings.Builder
	for _, v := range doc {
		if s, ok := v.(string); ok {
			sb.WriteString(s)
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// --- Fixtures ---

// fixture wires a registry to a memory store, bus and mock backend with
// continent, country and event models.
type fixture struct {
	bus       *memory.SignalBus
	store     *memory.Store
	backend   *mockBackend
	registry  *DocumentRegistry
	continent *domain.Model
	country   *domain.Model
	event     *domain.Model
}

func newModels() (continent, country, event *domain.Model) {
	continent = &domain.Model{
		Name:      "Continent",
		Namespace: "geo",
		Fields:    []domain.Field{{Name: "name", Kind: domain.ColumnChar}},
	}
	country = &domain.Model{
		Name:      "Country",
		Namespace: "geo",
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
			{Name: "population", Kind: domain.ColumnBigInteger},
			{Name: "continent_id", Kind: domain.ColumnForeignKey, Related: "Continent"},
		},
	}
	event = &domain.Model{
		Name:      "Event",
		Namespace: "geo",
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
			{Name: "date", Kind: domain.ColumnDate},
		},
		ManyToMany: []domain.Relation{{Name: "countries", Target: "Country"}},
	}
	return continent, country, event
}

func newFixture(t *testing.T, settings domain.Settings) *fixture {
	t.Helper()
	f := &fixture{bus: memory.NewSignalBus(), backend: newMockBackend("country", "continent", "event")}
	f.continent, f.country, f.event = newModels()
	f.store = memory.NewStore(f.bus, f.continent, f.country, f.event)
	f.registry = NewDocumentRegistry(RegistryConfig{
		Backend:   f.backend,
		Databases: Databases{DefaultDatabase: f.store},
		Settings:  settings,
	})
	return f
}

func testSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.Pagination = 2
	return s
}

// registerCountry declares a country document embedding its continent.
func (f *fixture) registerCountry(t *testing.T, mutate ...func(*DocumentSpec)) *Document {
	t.Helper()
	spec := DocumentSpec{
		Name:   "CountryDocument",
		Index:  domain.NewIndex("country", nil),
		Model:  f.country,
		Fields: []string{"name", "population"},
		Manual: []domain.DocField{{
			Name:       "continent",
			Type:       domain.FieldObject,
			Properties: []domain.DocField{{Name: "name", Type: domain.FieldText}},
		}},
		RelatedModels: []string{"Continent"},
		RelatedPreparers: map[string]RelatedPreparer{
			"continent": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				id, _ := e.Get("continent_id")
				cid, ok := id.(int64)
				if !ok {
					return nil, nil
				}
				c, err := f.store.Get(ctx, "Continent", cid)
				if err != nil {
					return nil, nil //nolint:nilerr // dangling reference
				}
				return ExtractValue(c, domain.DocField{
					Name:       "continent",
					Type:       domain.FieldObject,
					Properties: []domain.DocField{{Name: "name", Type: domain.FieldText}},
				}, ignore), nil
			},
		},
		RelatedInstances: func(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error) {
			return f.store.Find(ctx, domain.NewQuery("Country").Where(domain.Eq("continent_id", related.ID)))
		},
	}
	for _, m := range mutate {
		m(&spec)
	}
	d, err := f.registry.Register(spec)
	require.NoError(t, err)
	return d
}

func (f *fixture) saveContinent(t *testing.T, name string) *domain.Entity {
	t.Helper()
	e := domain.NewEntity(f.continent, 0, map[string]any{"name": name})
	require.NoError(t, f.store.Save(context.Background(), e))
	return e
}

func (f *fixture) saveCountry(t *testing.T, name string, population int64, continent *domain.Entity) *domain.Entity {
	t.Helper()
	values := map[string]any{"name": name, "population": population}
	if continent != nil {
		values["continent_id"] = continent.ID
	}
	e := domain.NewEntity(f.country, 0, values)
	require.NoError(t, f.store.Save(context.Background(), e))
	return e
}

func boolPtr(b bool) *bool { return &b }
