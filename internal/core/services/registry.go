package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// RegistryConfig holds the collaborators of a DocumentRegistry.
type RegistryConfig struct {
	Backend   driven.SearchBackend
	Databases Databases
	Settings  domain.Settings
}

type indexEntry struct {
	index *domain.Index
	docs  []*Document
}

// DocumentRegistry maps models to documents and indices and propagates
// entity changes to the search backend.
//
// Documents are registered during startup. After Seal the registry is
// read-only and safe for concurrent use without locking.
type DocumentRegistry struct {
	settings  domain.Settings
	databases Databases
	backend   driven.SearchBackend
	submitter *bulkSubmitter

	mu       sync.Mutex
	sealed   atomic.Bool
	autosync atomic.Bool

	docs    []*Document
	models  map[string][]*Document
	related map[string]map[string]struct{}
	indices map[string]*indexEntry
	order   []string
}

// NewDocumentRegistry creates an empty registry.
func NewDocumentRegistry(cfg RegistryConfig) *DocumentRegistry {
	if cfg.Settings.Pagination <= 0 {
		cfg.Settings.Pagination = domain.DefaultPagination
	}
	if cfg.Databases == nil {
		cfg.Databases = Databases{}
	}
	r := &DocumentRegistry{
		settings:  cfg.Settings,
		databases: cfg.Databases,
		backend:   cfg.Backend,
		submitter: newBulkSubmitter(cfg.Backend, cfg.Settings.Bulk),
		models:    make(map[string][]*Document),
		related:   make(map[string]map[string]struct{}),
		indices:   make(map[string]*indexEntry),
	}
	r.autosync.Store(cfg.Settings.Autosync)
	return r
}

// Register validates a document spec and adds it to the registry.
// Registering a second document on an index of the same name adds it to
// the existing index.
func (r *DocumentRegistry) Register(spec DocumentSpec) (*Document, error) {
	if r.sealed.Load() {
		return nil, domain.ErrRegistrySealed
	}
	d, err := newDocument(spec, r.settings)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.docs {
		if existing.name == d.name {
			return nil, fmt.Errorf("registering %s: %w", d.name, domain.ErrAlreadyExists)
		}
	}

	entry, ok := r.indices[spec.Index.Name]
	if !ok {
		entry = &indexEntry{index: &domain.Index{
			Name:        spec.Index.Name,
			Settings:    domain.MergeSettings(r.settings.IndexSettings, spec.Index.Settings),
			AutoRefresh: spec.Index.AutoRefresh,
		}}
		r.indices[spec.Index.Name] = entry
		r.order = append(r.order, spec.Index.Name)
	} else {
		entry.index.Settings = domain.MergeSettings(entry.index.Settings, spec.Index.Settings)
	}
	d.index = entry.index
	d.registry = r
	entry.docs = append(entry.docs, d)

	r.docs = append(r.docs, d)
	r.models[d.model.Name] = append(r.models[d.model.Name], d)
	for _, rel := range spec.RelatedModels {
		if r.related[rel] == nil {
			r.related[rel] = make(map[string]struct{})
		}
		r.related[rel][d.model.Name] = struct{}{}
	}

	logger.Debug("registered document %s for model %s in index %s", d.name, d.model.Name, d.index.Name)
	return d, nil
}

// MustRegister is like Register but panics on error. It is meant for
// declarations at program start where a misconfiguration must stop the
// process.
func (r *DocumentRegistry) MustRegister(spec DocumentSpec) *Document {
	d, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return d
}

// Seal ends the registration phase.
func (r *DocumentRegistry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether the registration phase has ended.
func (r *DocumentRegistry) Sealed() bool {
	return r.sealed.Load()
}

// SetAutosync enables or disables propagation of entity changes.
func (r *DocumentRegistry) SetAutosync(enabled bool) {
	r.autosync.Store(enabled)
}

// Autosync reports whether propagation is enabled.
func (r *DocumentRegistry) Autosync() bool {
	return r.autosync.Load()
}

// OnPostIndex registers an observer of completed serial synchronizations.
func (r *DocumentRegistry) OnPostIndex(h PostIndexHook) {
	r.submitter.addHook(h)
}

// Backend returns the search backend.
func (r *DocumentRegistry) Backend() driven.SearchBackend { return r.backend }

// Databases returns the entity stores.
func (r *DocumentRegistry) Databases() Databases { return r.databases }

// Settings returns the settings the registry was built with.
func (r *DocumentRegistry) Settings() domain.Settings { return r.settings }

// relatesTo reports whether any type of a lineage is a related model of d.
func (d *Document) relatesTo(lineage []string) bool {
	for _, t := range lineage {
		if _, ok := d.related[t]; ok {
			return true
		}
	}
	return false
}

// RelatedDocuments returns the documents to re-derive when e changes
// without being their own model. A document qualifies when e's type or
// one of its ancestors is among its related models. The result is sorted
// by document name.
func (r *DocumentRegistry) RelatedDocuments(e *domain.Entity) []*Document {
	if e == nil || e.Model == nil {
		return nil
	}
	lineage := e.Model.Lineage()

	var out []*Document
	for _, t := range lineage {
		for primary := range r.related[t] {
			for _, d := range r.models[primary] {
				if d.relatesTo(lineage) && !slices.Contains(out, d) {
					out = append(out, d)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// directDocuments returns the documents mirroring e's type or an ancestor,
// nearest type first.
func (r *DocumentRegistry) directDocuments(e *domain.Entity) []*Document {
	if e == nil || e.Model == nil {
		return nil
	}
	var out []*Document
	for _, t := range e.Model.Lineage() {
		for _, d := range r.models[t] {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// Update synchronizes e into every document mirroring its type. Documents
// with IgnoreSignals are skipped.
func (r *DocumentRegistry) Update(ctx context.Context, e *domain.Entity, action domain.BulkAction, opts SyncOptions) error {
	if !r.Autosync() {
		return nil
	}
	var errs []error
	for _, d := range r.directDocuments(e) {
		if d.ignoreSignals {
			continue
		}
		if _, _, err := d.UpdateEntity(ctx, e, action, opts); err != nil {
			errs = append(errs, fmt.Errorf("updating %s %d in %s: %w", e.Type(), e.ID, d.name, err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes e from every document mirroring its type.
func (r *DocumentRegistry) Delete(ctx context.Context, e *domain.Entity, opts SyncOptions) error {
	return r.Update(ctx, e, domain.ActionDelete, opts)
}

// UpdateRelated re-synchronizes the entities whose documents embed e.
func (r *DocumentRegistry) UpdateRelated(ctx context.Context, e *domain.Entity, action domain.BulkAction, opts SyncOptions) error {
	return r.propagateRelated(ctx, e, nil, action, opts)
}

// DeleteRelated re-synchronizes the entities whose documents embed e,
// leaving e out of their related fields since it is being removed.
func (r *DocumentRegistry) DeleteRelated(ctx context.Context, e *domain.Entity, action domain.BulkAction, opts SyncOptions) error {
	return r.propagateRelated(ctx, e, e, action, opts)
}

func (r *DocumentRegistry) propagateRelated(
	ctx context.Context,
	e, ignore *domain.Entity,
	action domain.BulkAction,
	opts SyncOptions,
) error {
	if !r.Autosync() {
		return nil
	}
	var errs []error
	for _, d := range r.RelatedDocuments(e) {
		if d.ignoreSignals {
			continue
		}
		doc := d
		if ignore != nil {
			doc = d.Ignoring(ignore)
		}
		instances, err := doc.Instances(ctx, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolving %s instances related to %s %d: %w", d.name, e.Type(), e.ID, err))
			continue
		}
		if len(instances) == 0 {
			logger.Debug("no %s instances related to %s %d", d.name, e.Type(), e.ID)
			continue
		}
		if _, _, err := doc.UpdateEntities(ctx, instances, action, opts); err != nil {
			errs = append(errs, fmt.Errorf("updating %s related to %s %d: %w", d.name, e.Type(), e.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Documents returns the registered documents, in registration order,
// optionally restricted to the given models.
func (r *DocumentRegistry) Documents(models ...string) []*Document {
	if len(models) == 0 {
		return slices.Clone(r.docs)
	}
	var out []*Document
	for _, d := range r.docs {
		if slices.Contains(models, d.model.Name) {
			out = append(out, d)
		}
	}
	return out
}

// Document returns a registered document by name.
func (r *DocumentRegistry) Document(name string) (*Document, bool) {
	for _, d := range r.docs {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// Models returns the sorted names of the mirrored models.
func (r *DocumentRegistry) Models() []string {
	out := make([]string, 0, len(r.models))
	for m := range r.models {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Indices returns the declared indices, in registration order, optionally
// restricted to those holding a document of the given models.
func (r *DocumentRegistry) Indices(models ...string) []*domain.Index {
	out := make([]*domain.Index, 0, len(r.order))
	for _, name := range r.order {
		entry := r.indices[name]
		if len(models) == 0 {
			out = append(out, entry.index)
			continue
		}
		for _, d := range entry.docs {
			if slices.Contains(models, d.model.Name) {
				out = append(out, entry.index)
				break
			}
		}
	}
	return out
}

// Index returns a declared index by name.
func (r *DocumentRegistry) Index(name string) (*domain.Index, bool) {
	entry, ok := r.indices[name]
	if !ok {
		return nil, false
	}
	return entry.index, true
}

// IndexDocuments returns the documents stored in an index.
func (r *DocumentRegistry) IndexDocuments(name string) []*Document {
	entry, ok := r.indices[name]
	if !ok {
		return nil
	}
	return slices.Clone(entry.docs)
}

// Contains reports whether m, or one of its ancestors, is mirrored by a
// document or is a related model of one.
func (r *DocumentRegistry) Contains(m *domain.Model) bool {
	if m == nil {
		return false
	}
	for _, t := range m.Lineage() {
		if _, ok := r.models[t]; ok {
			return true
		}
		if _, ok := r.related[t]; ok {
			return true
		}
	}
	return false
}

// IsRelevant reports whether a change to e can affect any document.
func (r *DocumentRegistry) IsRelevant(e *domain.Entity) bool {
	return e != nil && r.Contains(e.Model)
}
