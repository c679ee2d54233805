package services

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// IndexService manages indices and their versions on the backend.
type IndexService struct {
	registry *DocumentRegistry
	backend  driven.SearchBackend
	now      func() time.Time
}

// NewIndexService creates an index service.
func NewIndexService(registry *DocumentRegistry) *IndexService {
	return &IndexService{registry: registry, backend: registry.Backend(), now: time.Now}
}

// Body returns the creation payload of an index: its settings and the
// merged mappings of every document stored in it.
func (s *IndexService) Body(idx *domain.Index) domain.IndexBody {
	props := make(map[string]any)
	for _, d := range s.registry.IndexDocuments(idx.Name) {
		maps.Copy(props, d.Mapping())
	}
	return domain.IndexBody{
		Settings: maps.Clone(idx.Settings),
		Mappings: map[string]any{"properties": props},
	}
}

// Create creates the index under its own name.
func (s *IndexService) Create(ctx context.Context, idx *domain.Index) error {
	return s.backend.CreateIndex(ctx, idx.Name, s.Body(idx))
}

// Delete deletes the index.
func (s *IndexService) Delete(ctx context.Context, idx *domain.Index) error {
	return s.backend.DeleteIndex(ctx, idx.Name)
}

// Exists reports whether the index, or an alias of that name, exists.
func (s *IndexService) Exists(ctx context.Context, idx *domain.Index) (bool, error) {
	return s.backend.IndexExists(ctx, idx.Name)
}

// PutMapping pushes the current document mappings to the index.
func (s *IndexService) PutMapping(ctx context.Context, idx *domain.Index) error {
	return s.backend.PutMapping(ctx, idx.Name, s.Body(idx).Mappings)
}

// Rebuild deletes the index if present and creates it again.
func (s *IndexService) Rebuild(ctx context.Context, idx *domain.Index) error {
	if err := s.Delete(ctx, idx); err != nil && !domain.IsTransportNotFound(err) {
		return err
	}
	return s.Create(ctx, idx)
}

// Versions returns the sorted names of the index's versions.
func (s *IndexService) Versions(ctx context.Context, idx *domain.Index) ([]string, error) {
	names, err := s.backend.ListIndices(ctx, idx.VersionPattern())
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", idx.Name, err)
	}
	return names, nil
}

// Version returns a version by name.
func (s *IndexService) Version(ctx context.Context, idx *domain.Index, name string) (*domain.Index, error) {
	versions, err := s.Versions(ctx, idx)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v == name {
			return s.versionIndex(idx, name), nil
		}
	}
	return nil, fmt.Errorf("%w: no version named %s for index %s", domain.ErrNotFound, name, idx.Name)
}

// ActiveVersion returns the version the index alias points to. An index
// created without versions is its own active version. It returns nil when
// the index does not exist.
func (s *IndexService) ActiveVersion(ctx context.Context, idx *domain.Index) (*domain.Index, error) {
	versions, err := s.Versions(ctx, idx)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		active, err := s.backend.AliasExists(ctx, v, idx.Name)
		if err != nil {
			return nil, fmt.Errorf("checking alias of %s: %w", v, err)
		}
		if active {
			return s.versionIndex(idx, v), nil
		}
	}

	concrete, err := s.backend.ListIndices(ctx, idx.Name)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", idx.Name, err)
	}
	if len(concrete) > 0 {
		return idx, nil
	}
	return nil, nil
}

// CreateNewVersion creates an inactive version of the index. The suffix
// defaults to a UTC timestamp with microseconds.
func (s *IndexService) CreateNewVersion(ctx context.Context, idx *domain.Index, suffix string) (*domain.Index, error) {
	if suffix == "" {
		suffix = strings.Replace(s.now().UTC().Format("20060102150405.000000"), ".", "", 1)
	}
	version := s.versionIndex(idx, idx.VersionName(suffix))
	if err := s.backend.CreateIndex(ctx, version.Name, s.Body(idx)); err != nil {
		return nil, err
	}
	return version, nil
}

// ActivateVersion moves the index alias to version in one atomic update.
func (s *IndexService) ActivateVersion(ctx context.Context, idx *domain.Index, version string) error {
	if !idx.IsVersion(version) {
		return fmt.Errorf("%w: %s is not a version of %s", domain.ErrInvalidInput, version, idx.Name)
	}
	if _, err := s.Version(ctx, idx, version); err != nil {
		return err
	}

	versions, err := s.Versions(ctx, idx)
	if err != nil {
		return err
	}
	actions := make([]domain.AliasAction, 0, len(versions)+1)
	for _, v := range versions {
		if v == version {
			continue
		}
		aliased, err := s.backend.AliasExists(ctx, v, idx.Name)
		if err != nil {
			return fmt.Errorf("checking alias of %s: %w", v, err)
		}
		if aliased {
			actions = append(actions, domain.AliasAction{Op: domain.AliasRemove, Index: v, Alias: idx.Name})
		}
	}
	actions = append(actions, domain.AliasAction{Op: domain.AliasAdd, Index: version, Alias: idx.Name})
	return s.backend.UpdateAliases(ctx, actions)
}

func (s *IndexService) versionIndex(idx *domain.Index, name string) *domain.Index {
	return &domain.Index{Name: name, Settings: maps.Clone(idx.Settings), AutoRefresh: idx.AutoRefresh}
}
