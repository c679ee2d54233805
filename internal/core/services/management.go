package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// Ensure ManagementService implements the interface.
var _ driving.ManagementService = (*ManagementService)(nil)

// ManagementService implements the index and document commands.
type ManagementService struct {
	registry *DocumentRegistry
	indices  *IndexService
}

// NewManagementService creates a management service.
func NewManagementService(registry *DocumentRegistry, indices *IndexService) *ManagementService {
	return &ManagementService{registry: registry, indices: indices}
}

// ListIndices returns every declared index with its backend state.
func (s *ManagementService) ListIndices(ctx context.Context) ([]domain.IndexStatus, error) {
	backend := s.registry.Backend()
	out := make([]domain.IndexStatus, 0)
	for _, idx := range s.registry.Indices() {
		status := domain.IndexStatus{Name: idx.Name}
		for _, d := range s.registry.IndexDocuments(idx.Name) {
			status.Models = append(status.Models, d.model.Label())
		}
		exists, err := backend.IndexExists(ctx, idx.Name)
		if err != nil {
			return nil, fmt.Errorf("checking index %s: %w", idx.Name, err)
		}
		status.Exists = exists
		if exists {
			count, err := backend.Count(ctx, idx.Name)
			if err != nil {
				return nil, fmt.Errorf("counting index %s: %w", idx.Name, err)
			}
			status.Count = count
		}
		out = append(out, status)
	}
	return out, nil
}

// resolveIndices returns the named indices, or all of them when names is
// empty.
func (s *ManagementService) resolveIndices(names []string) ([]*domain.Index, error) {
	if len(names) == 0 {
		return s.registry.Indices(), nil
	}
	out := make([]*domain.Index, 0, len(names))
	var unknown []string
	for _, name := range names {
		idx, ok := s.registry.Index(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, idx)
	}
	if len(unknown) > 0 {
		known := make([]string, 0)
		for _, idx := range s.registry.Indices() {
			known = append(known, idx.Name)
		}
		return nil, fmt.Errorf("%w: %s (choose from: %s)",
			domain.ErrUnknownIndex, strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return out, nil
}

// ManageIndex applies an index action to each selected index. A backend
// error stops the run unless req.IgnoreError is set.
func (s *ManagementService) ManageIndex(ctx context.Context, req domain.IndexRequest, report func(domain.IndexResult)) error {
	var apply func(context.Context, *domain.Index) error
	switch req.Action {
	case domain.CommandCreate:
		apply = s.indices.Create
	case domain.CommandDelete:
		apply = s.indices.Delete
	case domain.CommandUpdate:
		apply = s.indices.PutMapping
	case domain.CommandRebuild:
		apply = s.indices.Rebuild
	default:
		return fmt.Errorf("%w: index action %q", domain.ErrInvalidInput, req.Action)
	}

	targets, err := s.resolveIndices(req.Indices)
	if err != nil {
		return err
	}

	for _, idx := range targets {
		logger.Info("%s index %s", req.Action.Participle(), idx.Name)
		err := apply(ctx, idx)
		if report != nil {
			report(domain.IndexResult{Index: idx.Name, Action: req.Action, Err: err})
		}
		if err != nil && !req.IgnoreError {
			return fmt.Errorf("%s index %s: %w", req.Action, idx.Name, err)
		}
	}
	return nil
}

// PlanDocuments validates a document request and counts the entities each
// selected document will process.
//
//nolint:gocyclo // validation steps mirror the command flags
func (s *ManagementService) PlanDocuments(ctx context.Context, req domain.DocumentRequest) (*domain.DocumentPlan, error) {
	if _, ok := req.Action.BulkAction(); !ok {
		return nil, fmt.Errorf("%w: document action %q", domain.ErrInvalidInput, req.Action)
	}
	if req.BatchType != "" && !req.BatchType.IsValid() {
		return nil, fmt.Errorf("%w: batch type %q", domain.ErrInvalidInput, req.BatchType)
	}

	indices, err := s.resolveIndices(req.Indices)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		exists, err := s.indices.Exists(ctx, idx)
		if err != nil {
			return nil, fmt.Errorf("checking index %s: %w", idx.Name, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s, run 'index create' first", domain.ErrIndexNotCreated, idx.Name)
		}
	}

	for _, m := range req.Models {
		if !slices.Contains(s.registry.Models(), m) {
			return nil, fmt.Errorf("%w: %s (choose from: %s)",
				domain.ErrUnknownModel, m, strings.Join(s.registry.Models(), ", "))
		}
	}

	filter, err := domain.ParseLookups(req.Filters)
	if err != nil {
		return nil, err
	}
	exclude, err := domain.ParseLookups(req.Excludes)
	if err != nil {
		return nil, err
	}

	plan := &domain.DocumentPlan{Request: req}
	for _, idx := range indices {
		for _, d := range s.registry.IndexDocuments(idx.Name) {
			if len(req.Models) > 0 && !slices.Contains(req.Models, d.model.Name) {
				continue
			}
			item, err := s.planDocument(ctx, d, req, filter, exclude)
			if err != nil {
				return nil, err
			}
			plan.Items = append(plan.Items, item)
		}
	}
	return plan, nil
}

func (s *ManagementService) planDocument(
	ctx context.Context,
	d *Document,
	req domain.DocumentRequest,
	filter, exclude []domain.Lookup,
) (domain.DocumentPlanItem, error) {
	store, err := d.store(req.Database)
	if err != nil {
		return domain.DocumentPlanItem{}, err
	}

	excludes := [][]domain.Lookup{}
	if len(exclude) > 0 {
		excludes = append(excludes, exclude)
	}
	if req.Missing && req.Action == domain.CommandIndex {
		ids, err := s.indexedIDs(ctx, d)
		if err != nil {
			return domain.DocumentPlanItem{}, err
		}
		if len(ids) > 0 {
			excludes = append(excludes, []domain.Lookup{domain.In("id", ids...)})
		}
	}

	q := d.Queryset(filter, excludes, req.Count)
	count, err := store.Count(ctx, q)
	if err != nil {
		return domain.DocumentPlanItem{}, err
	}
	return domain.DocumentPlanItem{
		Document: d.name,
		Model:    d.model.Name,
		Index:    d.index.Name,
		Query:    q,
		Count:    count,
	}, nil
}

// indexedIDs returns the primary keys already present in the index.
func (s *ManagementService) indexedIDs(ctx context.Context, d *Document) ([]any, error) {
	raw, err := s.registry.Backend().ScanIDs(ctx, d.index.Name)
	if err != nil {
		return nil, fmt.Errorf("scanning ids of %s: %w", d.index.Name, err)
	}
	ids := make([]any, 0, len(raw))
	for _, id := range raw {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids, nil
}

// ExecuteDocuments streams every plan item to the backend. Rejected
// documents are collected, never fatal.
func (s *ManagementService) ExecuteDocuments(
	ctx context.Context,
	plan *domain.DocumentPlan,
	progress domain.ProgressSink,
) ([]domain.DocumentResult, error) {
	req := plan.Request
	action, ok := req.Action.BulkAction()
	if !ok {
		return nil, fmt.Errorf("%w: document action %q", domain.ErrInvalidInput, req.Action)
	}

	results := make([]domain.DocumentResult, 0, len(plan.Items))
	for _, item := range plan.Items {
		d, ok := s.registry.Document(item.Document)
		if !ok {
			return results, fmt.Errorf("%w: document %s", domain.ErrNotFound, item.Document)
		}
		result, err := s.run(ctx, d, item.Query, action, req, progress)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *ManagementService) run(
	ctx context.Context,
	d *Document,
	q domain.Query,
	action domain.BulkAction,
	req domain.DocumentRequest,
	progress domain.ProgressSink,
) (domain.DocumentResult, error) {
	entities := d.IndexingQueryset(ctx, IndexingOptions{
		Query:     &q,
		Database:  req.Database,
		BatchSize: req.BatchSize,
		BatchType: req.BatchType,
		Action:    req.Action,
		Progress:  progress,
	})
	success, errs, err := d.Update(ctx, entities, action, SyncOptions{
		Parallel: req.Parallel,
		Refresh:  req.Refresh,
	})
	if err != nil {
		return domain.DocumentResult{}, fmt.Errorf("%s %s: %w", req.Action.Participle(), d.model.Name, err)
	}
	return domain.DocumentResult{
		Document: d.name,
		Model:    d.model.Name,
		Action:   req.Action,
		Success:  success,
		Errors:   errs,
	}, nil
}

// Versions lists the versions of an index and the active one.
func (s *ManagementService) Versions(ctx context.Context, index string) ([]string, string, error) {
	idx, err := s.lookup(index)
	if err != nil {
		return nil, "", err
	}
	versions, err := s.indices.Versions(ctx, idx)
	if err != nil {
		return nil, "", err
	}
	active, err := s.indices.ActiveVersion(ctx, idx)
	if err != nil {
		return nil, "", err
	}
	name := ""
	if active != nil {
		name = active.Name
	}
	return versions, name, nil
}

// CreateVersion creates an inactive version of an index.
func (s *ManagementService) CreateVersion(ctx context.Context, index, suffix string) (string, error) {
	idx, err := s.lookup(index)
	if err != nil {
		return "", err
	}
	v, err := s.indices.CreateNewVersion(ctx, idx, suffix)
	if err != nil {
		return "", err
	}
	return v.Name, nil
}

// ActivateVersion points the index alias at a version.
func (s *ManagementService) ActivateVersion(ctx context.Context, index, version string) error {
	idx, err := s.lookup(index)
	if err != nil {
		return err
	}
	return s.indices.ActivateVersion(ctx, idx, version)
}

// Reindex fills a new version of the index with every document's
// entities and activates it once complete.
func (s *ManagementService) Reindex(
	ctx context.Context,
	index string,
	progress domain.ProgressSink,
) (string, []domain.DocumentResult, error) {
	idx, err := s.lookup(index)
	if err != nil {
		return "", nil, err
	}
	active, err := s.indices.ActiveVersion(ctx, idx)
	if err != nil {
		return "", nil, err
	}
	if active == idx {
		return "", nil, fmt.Errorf("%w: %s is a concrete index, delete it before switching to versions",
			domain.ErrInvalidInput, idx.Name)
	}

	version, err := s.indices.CreateNewVersion(ctx, idx, "")
	if err != nil {
		return "", nil, err
	}

	req := domain.DocumentRequest{Action: domain.CommandIndex}
	var results []domain.DocumentResult
	for _, d := range s.registry.IndexDocuments(idx.Name) {
		target := d.Targeting(version)
		result, err := s.run(ctx, target, target.Queryset(nil, nil, 0), domain.ActionIndex, req, progress)
		if err != nil {
			return version.Name, results, err
		}
		results = append(results, result)
	}

	if err := s.indices.ActivateVersion(ctx, idx, version.Name); err != nil {
		return version.Name, results, err
	}
	return version.Name, results, nil
}

func (s *ManagementService) lookup(index string) (*domain.Index, error) {
	idx, ok := s.registry.Index(index)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownIndex, index)
	}
	return idx, nil
}
