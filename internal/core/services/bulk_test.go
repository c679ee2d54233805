package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func seedCountries(t *testing.T, f *fixture, n int) []*domain.Entity {
	t.Helper()
	out := make([]*domain.Entity, 0, n)
	for i := range n {
		out = append(out, f.saveCountry(t, fmt.Sprintf("Country %d", i+1), int64(i+1), nil))
	}
	return out
}

func TestDocument_Actions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t, func(s *DocumentSpec) {
		s.ShouldIndex = func(e *domain.Entity) bool { return e.Values["name"] != "Atlantis" }
	})
	france := f.saveCountry(t, "France", 67, nil)
	atlantis := f.saveCountry(t, "Atlantis", 0, nil)

	var reqs []domain.BulkRequest
	for req, err := range d.Actions(ctx, Entities(france, atlantis), domain.ActionIndex) {
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.ActionIndex, reqs[0].Action)
	assert.Equal(t, "country", reqs[0].Index)
	assert.Equal(t, "1", reqs[0].ID)
	assert.Equal(t, "France", reqs[0].Source["name"])
	assert.Nil(t, reqs[0].Doc)

	reqs = nil
	for req, err := range d.Actions(ctx, Entities(france), domain.ActionUpdate) {
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	require.Len(t, reqs, 1)
	assert.Equal(t, "France", reqs[0].Doc["name"])
	assert.Nil(t, reqs[0].Source)

	// Deletes ignore ShouldIndex and carry no body.
	reqs = nil
	for req, err := range d.Actions(ctx, Entities(france, atlantis), domain.ActionDelete) {
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	require.Len(t, reqs, 2)
	assert.Nil(t, reqs[1].Source)
	assert.Nil(t, reqs[1].Doc)
}

func TestDocument_Actions_GenerateID(t *testing.T) {
	f := newFixture(t, testSettings())
	d := f.registerCountry(t, func(s *DocumentSpec) {
		s.GenerateID = func(e *domain.Entity) string { return fmt.Sprintf("country-%d", e.ID) }
	})
	france := f.saveCountry(t, "France", 67, nil)

	assert.Equal(t, "country-1", d.ComputeID(france))
}

func TestDocument_Actions_PreparerError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	boom := errors.New("boom")
	d := f.registerCountry(t, func(s *DocumentSpec) {
		s.Preparers = map[string]Preparer{
			"name": func(context.Context, *domain.Entity) (any, error) { return nil, boom },
		}
	})
	france := f.saveCountry(t, "France", 67, nil)

	_, _, err := d.UpdateEntity(ctx, france, domain.ActionIndex, SyncOptions{})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "CountryDocument.name")
	assert.Zero(t, f.backend.calls())
}

func TestDocument_Update_InvalidAction(t *testing.T) {
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)

	_, _, err := d.UpdateEntities(context.Background(), nil, domain.BulkAction("upsert"), SyncOptions{})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocument_Update_EmptyMakesNoCall(t *testing.T) {
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)

	success, errs, err := d.UpdateEntities(context.Background(), nil, domain.ActionIndex, SyncOptions{})

	require.NoError(t, err)
	assert.Zero(t, success)
	assert.Empty(t, errs)
	assert.Zero(t, f.backend.calls())
}

func TestDocument_Update_IsolatesItemErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 5)
	f.backend.reject["2"] = "failed to parse field [population]"
	f.backend.reject["4"] = "failed to parse field [population]"

	success, errs, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 3, success)
	require.Len(t, errs, 2)
	assert.Equal(t, "2", errs[0].ID)
	assert.Equal(t, 400, errs[0].Status)
	assert.Equal(t, map[string]int{"failed to parse field [population]": 2}, domain.CountReasons(errs))
	assert.Equal(t, []string{"1", "3", "5"}, f.backend.ids("country"))
}

func TestDocument_Update_UpdateMissingReportsItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 2)

	success, errs, err := d.UpdateEntities(ctx, rows, domain.ActionUpdate, SyncOptions{})

	require.NoError(t, err)
	assert.Zero(t, success)
	require.Len(t, errs, 2)
	assert.Equal(t, "document_missing_exception", errs[0].Type)
}

func TestDocument_Update_RaiseOnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 5)
	f.backend.reject["1"] = "bad document"

	success, errs, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{RaiseOnError: true, ChunkSize: 2})

	var bulkErr *domain.BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Len(t, bulkErr.Errors, 1)
	assert.Equal(t, 1, success)
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, f.backend.calls(), "later chunks are not sent")
}

func TestDocument_Update_TransportError(t *testing.T) {
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 1)
	f.backend.bulkErr = &domain.TransportError{Op: "bulk", Status: 503, Type: "unavailable", Reason: "cluster down"}

	_, _, err := d.UpdateEntities(context.Background(), rows, domain.ActionIndex, SyncOptions{})

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.Status)
}

func TestDocument_Update_ChunksAndRefresh(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Bulk.ChunkSize = 2
	f := newFixture(t, settings)
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 5)

	success, _, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{Refresh: boolPtr(true)})

	require.NoError(t, err)
	assert.Equal(t, 5, success)
	require.Len(t, f.backend.bulkCalls, 3)
	assert.Len(t, f.backend.bulkCalls[0], 2)
	assert.Len(t, f.backend.bulkCalls[2], 1)
	assert.Equal(t, []bool{true, true, true}, f.backend.refreshes)
}

func TestDocument_Update_Parallel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 9)
	f.backend.reject["5"] = "bad document"

	success, errs, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{Parallel: true, Threads: 3})

	require.NoError(t, err)
	assert.Equal(t, 8, success)
	require.Len(t, errs, 1)
	assert.Equal(t, "5", errs[0].ID)
	assert.Equal(t, 5, f.backend.calls(), "parallel chunks follow the document pagination")
	assert.Len(t, f.backend.ids("country"), 8)
}

func TestDocument_Update_ParallelRaise(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSettings())
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 4)
	f.backend.reject["1"] = "bad document"

	_, _, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{Parallel: true, Threads: 1, RaiseOnError: true})

	var bulkErr *domain.BulkError
	assert.ErrorAs(t, err, &bulkErr)
}

func TestDocument_Update_PostIndexHook(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Bulk.ChunkSize = 2
	f := newFixture(t, settings)
	d := f.registerCountry(t)
	rows := seedCountries(t, f, 3)
	f.backend.reject["3"] = "bad document"

	var (
		mu     sync.Mutex
		events []PostIndexEvent
	)
	f.registry.OnPostIndex(func(_ context.Context, ev PostIndexEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	_, _, err := d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{})
	require.NoError(t, err)

	require.Len(t, events, 1, "one event per serial call")
	ev := events[0]
	assert.Same(t, d, ev.Document)
	assert.Len(t, ev.Actions, 3)
	assert.Len(t, ev.Responses, 2)
	assert.Equal(t, 2, ev.Success)
	assert.Len(t, ev.Errors, 1)

	// Parallel submission does not notify.
	_, _, err = d.UpdateEntities(ctx, rows, domain.ActionIndex, SyncOptions{Parallel: true})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDocument_Update_Unregistered(t *testing.T) {
	_, country, _ := newModels()
	d, err := newDocument(DocumentSpec{Index: domain.NewIndex("country", nil), Model: country}, testSettings())
	require.NoError(t, err)

	_, _, err = d.UpdateEntities(context.Background(), nil, domain.ActionIndex, SyncOptions{})

	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestExtractValue(t *testing.T) {
	_, country, _ := newModels()
	france := domain.NewEntity(country, 1, map[string]any{"name": "France"})
	spain := domain.NewEntity(country, 2, map[string]any{"name": "Spain"})
	field := domain.DocField{
		Name:       "countries",
		Type:       domain.FieldNested,
		Properties: []domain.DocField{{Name: "name", Type: domain.FieldText}},
	}

	got := ExtractValue([]*domain.Entity{france, spain}, field, spain)

	assert.Equal(t, []any{map[string]any{"name": "France"}}, got)
	assert.Equal(t, int64(1), ExtractValue(france, domain.DocField{Name: "country", Type: domain.FieldInteger}, nil))
	assert.Nil(t, ExtractValue(france, field, france))
	assert.Equal(t, "plain", ExtractValue("plain", field, nil))
}
