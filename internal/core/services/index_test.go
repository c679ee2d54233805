package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func newIndexFixture(t *testing.T) (*fixture, *IndexService, *domain.Index) {
	t.Helper()
	settings := testSettings()
	settings.IndexSettings = map[string]any{"number_of_shards": 1}
	f := newFixture(t, settings)
	f.backend = newMockBackend()
	f.registry = NewDocumentRegistry(RegistryConfig{
		Backend:   f.backend,
		Databases: Databases{DefaultDatabase: f.store},
		Settings:  settings,
	})
	d := f.registerCountry(t)
	return f, NewIndexService(f.registry), d.Index()
}

func TestIndexService_Body(t *testing.T) {
	_, svc, idx := newIndexFixture(t)

	body := svc.Body(idx)

	assert.Equal(t, map[string]any{"number_of_shards": 1}, body.Settings)
	props, ok := body.Mappings["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "text"}, props["name"])
	assert.Equal(t, map[string]any{"type": "long"}, props["population"])
	assert.Contains(t, props, "continent")
}

func TestIndexService_CreateDeleteRebuild(t *testing.T) {
	ctx := context.Background()
	f, svc, idx := newIndexFixture(t)

	require.NoError(t, svc.Create(ctx, idx))
	exists, err := svc.Exists(ctx, idx)
	require.NoError(t, err)
	assert.True(t, exists)

	err = svc.Create(ctx, idx)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "resource_already_exists_exception", te.Type)

	f.backend.indices["country"]["1"] = map[string]any{"name": "France"}
	require.NoError(t, svc.Rebuild(ctx, idx))
	assert.Empty(t, f.backend.ids("country"))

	require.NoError(t, svc.PutMapping(ctx, idx))

	require.NoError(t, svc.Delete(ctx, idx))
	assert.True(t, domain.IsTransportNotFound(svc.Delete(ctx, idx)))

	// Rebuilding a missing index creates it.
	require.NoError(t, svc.Rebuild(ctx, idx))
	exists, _ = svc.Exists(ctx, idx)
	assert.True(t, exists)
}

func TestIndexService_Versions(t *testing.T) {
	ctx := context.Background()
	f, svc, idx := newIndexFixture(t)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC) }

	active, err := svc.ActiveVersion(ctx, idx)
	require.NoError(t, err)
	assert.Nil(t, active, "no index yet")

	v1, err := svc.CreateNewVersion(ctx, idx, "")
	require.NoError(t, err)
	assert.Equal(t, "country--20240301123045123456", v1.Name)
	assert.Equal(t, idx.Settings, v1.Settings)

	v2, err := svc.CreateNewVersion(ctx, idx, "v2")
	require.NoError(t, err)
	assert.Equal(t, "country--v2", v2.Name)

	versions, err := svc.Versions(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"country--20240301123045123456", "country--v2"}, versions)

	active, err = svc.ActiveVersion(ctx, idx)
	require.NoError(t, err)
	assert.Nil(t, active, "no version is aliased yet")

	require.NoError(t, svc.ActivateVersion(ctx, idx, v1.Name))
	active, err = svc.ActiveVersion(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, v1.Name, active.Name)

	require.NoError(t, svc.ActivateVersion(ctx, idx, v2.Name))
	active, err = svc.ActiveVersion(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, v2.Name, active.Name)

	last := f.backend.aliasOps[len(f.backend.aliasOps)-1]
	assert.Equal(t, []domain.AliasAction{
		{Op: domain.AliasRemove, Index: v1.Name, Alias: "country"},
		{Op: domain.AliasAdd, Index: v2.Name, Alias: "country"},
	}, last)

	// The alias makes the logical name resolvable.
	exists, err := svc.Exists(ctx, idx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIndexService_ActivateVersion_Errors(t *testing.T) {
	ctx := context.Background()
	_, svc, idx := newIndexFixture(t)

	err := svc.ActivateVersion(ctx, idx, "continent--v1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.ActivateVersion(ctx, idx, "country--missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexService_ActiveVersion_Concrete(t *testing.T) {
	ctx := context.Background()
	_, svc, idx := newIndexFixture(t)
	require.NoError(t, svc.Create(ctx, idx))

	active, err := svc.ActiveVersion(ctx, idx)

	require.NoError(t, err)
	assert.Same(t, idx, active)
}
