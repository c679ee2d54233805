package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func TestSetup_DefaultsToBleve(t *testing.T) {
	dir := t.TempDir()

	svc, release, err := setup(cli.Options{ConfigDir: dir})
	require.NoError(t, err)
	defer func() { assert.NoError(t, release()) }()

	statuses, err := svc.Management.ListIndices(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, st.Name)
		assert.False(t, st.Exists)
	}
	assert.Equal(t, []string{"continent", "country", "event"}, names)

	settings, err := svc.Settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.BackendBleve, settings.Backend.Kind)
	assert.Equal(t, filepath.Join(dir, "indices"), settings.Backend.Path)

	_, err = os.Stat(filepath.Join(dir, "logs", "searchsync.log"))
	assert.NoError(t, err)
}

func TestSetup_CreatesIndices(t *testing.T) {
	svc, release, err := setup(cli.Options{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { assert.NoError(t, release()) }()

	ctx := context.Background()
	err = svc.Management.ManageIndex(ctx, domain.IndexRequest{Action: domain.CommandCreate}, func(res domain.IndexResult) {
		assert.NoError(t, res.Err)
	})
	require.NoError(t, err)

	statuses, err := svc.Management.ListIndices(ctx)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.True(t, st.Exists, st.Name)
	}
}

func TestSetup_InvalidSerializer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("serializer = \"yaml\"\n"), 0o600))

	_, _, err := setup(cli.Options{ConfigDir: dir})

	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
