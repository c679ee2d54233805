package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func names(entities []*domain.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Values["name"].(string))
	}
	return out
}

func TestStore_FindFiltersOrdersAndSlices(t *testing.T) {
	ctx := context.Background()
	store, _, _, country := setupTestStore(t)
	seedCountries(t, store, country)

	q := domain.NewQuery("Country").
		Where(domain.Lookup{Field: "population", Op: domain.OpGte, Value: int64(50)}).
		OrderBy("-population")

	got, err := store.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Germany", "France", "Italy"}, names(got))

	got, err = store.Find(ctx, q.Slice(1, 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Italy"}, names(got))

	n, err := store.Count(ctx, q.Slice(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_FindLookups(t *testing.T) {
	ctx := context.Background()
	store, _, _, country := setupTestStore(t)
	seedCountries(t, store, country)
	require.NoError(t, store.Save(ctx, domain.NewEntity(country, 0, map[string]any{"name": "Per*u", "population": nil})))

	tests := []struct {
		name   string
		lookup domain.Lookup
		want   []string
	}{
		{"exact", domain.Eq("name", "Spain"), []string{"Spain"}},
		{"exact nil", domain.Eq("population", nil), []string{"Per*u"}},
		{"pk alias", domain.Eq("pk", int64(2)), []string{"Germany"}},
		{"iexact", domain.Lookup{Field: "name", Op: domain.OpIExact, Value: "FRANCE"}, []string{"France"}},
		{"contains is case sensitive", domain.Lookup{Field: "name", Op: domain.OpContains, Value: "an"}, []string{"France", "Germany"}},
		{"icontains", domain.Lookup{Field: "name", Op: domain.OpIContains, Value: "AN"}, []string{"France", "Germany"}},
		{"startswith", domain.Lookup{Field: "name", Op: domain.OpStartsWith, Value: "S"}, []string{"Spain"}},
		{"istartswith", domain.Lookup{Field: "name", Op: domain.OpIStartsWith, Value: "i"}, []string{"Italy"}},
		{"endswith", domain.Lookup{Field: "name", Op: domain.OpEndsWith, Value: "y"}, []string{"Germany", "Italy"}},
		{"iendswith", domain.Lookup{Field: "name", Op: domain.OpIEndsWith, Value: "CE"}, []string{"France"}},
		{"metacharacters are literal", domain.Lookup{Field: "name", Op: domain.OpContains, Value: "*"}, []string{"Per*u"}},
		{"in", domain.In("name", "Spain", "Italy", "Narnia"), []string{"Spain", "Italy"}},
		{"empty in", domain.Lookup{Field: "name", Op: domain.OpIn, Value: []any{}}, []string{}},
		{"gt", domain.Lookup{Field: "population", Op: domain.OpGt, Value: int64(67)}, []string{"Germany"}},
		{"lt", domain.Lookup{Field: "population", Op: domain.OpLt, Value: int64(59)}, []string{"Spain"}},
		{"lte", domain.Lookup{Field: "population", Op: domain.OpLte, Value: int64(59)}, []string{"Spain", "Italy"}},
		{"isnull", domain.Lookup{Field: "population", Op: domain.OpIsNull, Value: true}, []string{"Per*u"}},
		{"isnull false", domain.Lookup{Field: "population", Op: domain.OpIsNull, Value: int64(0)}, []string{"France", "Germany", "Spain", "Italy"}},
		{"range", domain.Lookup{Field: "population", Op: domain.OpRange, Value: []any{int64(59), int64(67)}}, []string{"France", "Italy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Find(ctx, domain.NewQuery("Country").Where(tt.lookup))
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestStore_FindExcludeGroups(t *testing.T) {
	ctx := context.Background()
	store, _, _, country := setupTestStore(t)
	seedCountries(t, store, country)
	require.NoError(t, store.Save(ctx, domain.NewEntity(country, 0, map[string]any{"name": "Andorra"})))

	// Each group excludes rows matching all of its lookups; a NULL
	// comparison never excludes.
	q := domain.NewQuery("Country").
		Without(domain.Eq("name", "France"), domain.Lookup{Field: "population", Op: domain.OpGt, Value: int64(100)}).
		Without(domain.Lookup{Field: "population", Op: domain.OpLt, Value: int64(50)})

	got, err := store.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Germany", "Italy", "Andorra"}, names(got))

	n, err := store.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_FindMatchesMemoryOrdering(t *testing.T) {
	ctx := context.Background()
	store, _, _, country := setupTestStore(t)
	seedCountries(t, store, country)

	got, err := store.Find(ctx, domain.NewQuery("Country").OrderBy("continent_id", "name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Germany", "Italy", "Spain"}, names(got))
}

func TestStore_FindDateLookups(t *testing.T) {
	ctx := context.Background()
	store, _, _, country := setupTestStore(t)
	for i, year := range []int{1800, 1900, 2000} {
		e := domain.NewEntity(country, 0, map[string]any{
			"name":    []string{"A", "B", "C"}[i],
			"founded": time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, store.Save(ctx, e))
	}

	got, err := store.Find(ctx, domain.NewQuery("Country").Where(domain.Lookup{Field: "founded", Op: domain.OpGte, Value: "1900-01-01"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, names(got))
}

func TestStore_FindRejectsInvalidQueries(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := setupTestStore(t)

	tests := []struct {
		name string
		q    domain.Query
	}{
		{"unknown field", domain.NewQuery("Country").Where(domain.Eq("capital", "Paris"))},
		{"relation traversal", domain.NewQuery("Country").Where(domain.Eq("continent__name", "Europe"))},
		{"unknown ordering", domain.NewQuery("Country").OrderBy("-capital")},
		{"bad value", domain.NewQuery("Country").Where(domain.Lookup{Field: "population", Op: domain.OpGt, Value: "many"})},
		{"short range", domain.NewQuery("Country").Where(domain.Lookup{Field: "population", Op: domain.OpRange, Value: int64(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Find(ctx, tt.q)
			var fe *domain.FilterError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, "a[*]b[?]c[[]d]", globEscape("a*b?c[d]"))
}
