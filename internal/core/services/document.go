package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// Preparer computes the value of one document field.
type Preparer func(ctx context.Context, e *domain.Entity) (any, error)

// RelatedPreparer computes the value of one document field, leaving out
// ignore, the related entity that is being removed.
type RelatedPreparer func(ctx context.Context, e, ignore *domain.Entity) (any, error)

// RelatedFunc returns the entities whose documents embed related.
// Returning domain.ErrNotFound means there is nothing to update.
type RelatedFunc func(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error)

// DocumentSpec declares how one model is mirrored into one index.
type DocumentSpec struct {
	// Name identifies the document, e.g. "CountryDocument".
	Name  string
	Index *domain.Index
	Model *domain.Model

	// Fields lists model columns mirrored with their mapped type.
	Fields []string

	// Manual declares fields with an explicit type. They are usually
	// filled by a preparer.
	Manual []domain.DocField

	// RelatedModels lists models whose changes re-derive this document.
	RelatedModels []string

	// IgnoreSignals disables automatic propagation for this document.
	IgnoreSignals bool

	// AutoRefresh overrides the index and global refresh default.
	AutoRefresh *bool

	// Pagination is the streaming chunk size; defaults to the global one.
	Pagination int

	Preparers        map[string]Preparer
	RelatedPreparers map[string]RelatedPreparer

	// Queryset customizes the base query, e.g. to narrow it.
	Queryset func(q domain.Query) domain.Query

	// ShouldIndex skips entities for which it returns false. Deletes are
	// never skipped.
	ShouldIndex func(e *domain.Entity) bool

	// GenerateID computes the document id; defaults to the primary key.
	GenerateID func(e *domain.Entity) string

	// RelatedInstances resolves the entities to re-index when a related
	// entity changes.
	RelatedInstances RelatedFunc

	// ToField overrides the column to field mapping.
	ToField func(model string, f domain.Field) (domain.DocField, error)
}

type fieldPreparer struct {
	field   domain.DocField
	prepare RelatedPreparer
}

// Document is a registered document descriptor. It is immutable once
// registered.
type Document struct {
	name          string
	index         *domain.Index
	model         *domain.Model
	fields        []domain.DocField
	preparers     []fieldPreparer
	related       map[string]struct{}
	relatedNames  []string
	ignoreSignals bool
	autoRefresh   bool
	pagination    int

	queryset    func(q domain.Query) domain.Query
	shouldIndex func(e *domain.Entity) bool
	generateID  func(e *domain.Entity) string
	instances   RelatedFunc

	registry *DocumentRegistry

	// ignore is left out of related fields while preparing.
	ignore *domain.Entity
}

// newDocument validates a spec and resolves its schema and preparers.
func newDocument(spec DocumentSpec, settings domain.Settings) (*Document, error) {
	name := spec.Name
	if spec.Model == nil {
		return nil, &domain.ConfigurationError{Document: name, Reason: "no model declared"}
	}
	if name == "" {
		name = spec.Model.Name + "Document"
	}
	if spec.Index == nil || spec.Index.Name == "" {
		return nil, &domain.ConfigurationError{Document: name, Reason: "no index declared"}
	}

	d := &Document{
		name:          name,
		index:         spec.Index,
		model:         spec.Model,
		related:       make(map[string]struct{}, len(spec.RelatedModels)),
		relatedNames:  spec.RelatedModels,
		ignoreSignals: spec.IgnoreSignals,
		autoRefresh:   settings.AutoRefresh,
		pagination:    settings.Pagination,
		queryset:      spec.Queryset,
		shouldIndex:   spec.ShouldIndex,
		generateID:    spec.GenerateID,
		instances:     spec.RelatedInstances,
	}
	if spec.Index.AutoRefresh != nil {
		d.autoRefresh = *spec.Index.AutoRefresh
	}
	if spec.AutoRefresh != nil {
		d.autoRefresh = *spec.AutoRefresh
	}
	if spec.Pagination > 0 {
		d.pagination = spec.Pagination
	}
	if d.pagination <= 0 {
		d.pagination = domain.DefaultPagination
	}
	for _, r := range spec.RelatedModels {
		d.related[r] = struct{}{}
	}

	fields, err := describeSchema(name, spec)
	if err != nil {
		return nil, err
	}
	d.fields = fields
	d.preparers = resolvePreparers(fields, spec)
	return d, nil
}

// describeSchema merges manual and mirrored fields, manual first.
func describeSchema(name string, spec DocumentSpec) ([]domain.DocField, error) {
	fields := make([]domain.DocField, 0, len(spec.Manual)+len(spec.Fields))
	declared := make(map[string]bool, len(spec.Manual))
	for _, f := range spec.Manual {
		declared[f.Name] = true
		fields = append(fields, f)
	}

	toField := spec.ToField
	if toField == nil {
		toField = defaultToField
	}
	for _, fieldName := range spec.Fields {
		if declared[fieldName] {
			return nil, &domain.RedeclaredFieldError{Document: name, Field: fieldName}
		}
		col, ok := spec.Model.Field(fieldName)
		if !ok {
			return nil, &domain.ConfigurationError{
				Document: name,
				Reason:   fmt.Sprintf("model %s has no field named %q", spec.Model.Name, fieldName),
			}
		}
		f, err := toField(spec.Model.Name, col)
		if err != nil {
			return nil, err
		}
		declared[fieldName] = true
		fields = append(fields, f)
	}
	return fields, nil
}

func defaultToField(model string, col domain.Field) (domain.DocField, error) {
	t, err := MapField(model, col)
	if err != nil {
		return domain.DocField{}, err
	}
	return domain.DocField{Name: col.Name, Type: t}, nil
}

// resolvePreparers picks, for every field, the related preparer, then the
// plain preparer, then the default attribute extractor.
func resolvePreparers(fields []domain.DocField, spec DocumentSpec) []fieldPreparer {
	out := make([]fieldPreparer, 0, len(fields))
	for _, f := range fields {
		fp := fieldPreparer{field: f}
		if p, ok := spec.RelatedPreparers[f.Name]; ok {
			fp.prepare = p
		} else if p, ok := spec.Preparers[f.Name]; ok {
			fp.prepare = func(ctx context.Context, e, _ *domain.Entity) (any, error) {
				return p(ctx, e)
			}
		} else {
			field := f
			fp.prepare = func(_ context.Context, e, ignore *domain.Entity) (any, error) {
				return ExtractValue(e.Value(field.Source()), field, ignore), nil
			}
		}
		out = append(out, fp)
	}
	return out
}

// ExtractValue shapes a raw attribute value for a document field. Entities
// become maps of the field's properties and the ignored entity is dropped.
func ExtractValue(v any, f domain.DocField, ignore *domain.Entity) any {
	switch t := v.(type) {
	case *domain.Entity:
		if t == nil || t.Same(ignore) {
			return nil
		}
		if len(f.Properties) == 0 {
			return t.ID
		}
		obj := make(map[string]any, len(f.Properties))
		for _, p := range f.Properties {
			obj[p.Name] = ExtractValue(t.Value(p.Source()), p, ignore)
		}
		return obj
	case []*domain.Entity:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item.Same(ignore) {
				continue
			}
			out = append(out, ExtractValue(item, f, ignore))
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if e, ok := item.(*domain.Entity); ok && e.Same(ignore) {
				continue
			}
			out = append(out, ExtractValue(item, f, ignore))
		}
		return out
	default:
		return v
	}
}

// Name returns the document name.
func (d *Document) Name() string { return d.name }

// Index returns the target index.
func (d *Document) Index() *domain.Index { return d.index }

// Model returns the mirrored model.
func (d *Document) Model() *domain.Model { return d.model }

// Fields returns the document schema.
func (d *Document) Fields() []domain.DocField { return d.fields }

// RelatedModels returns the models that trigger cascade updates.
func (d *Document) RelatedModels() []string { return d.relatedNames }

// IgnoreSignals reports whether automatic propagation is disabled.
func (d *Document) IgnoreSignals() bool { return d.ignoreSignals }

// AutoRefresh reports whether writes refresh the index by default.
func (d *Document) AutoRefresh() bool { return d.autoRefresh }

// Pagination returns the streaming chunk size.
func (d *Document) Pagination() int { return d.pagination }

// Mapping returns the mapping properties of the document.
func (d *Document) Mapping() map[string]any {
	return domain.Properties(d.fields)
}

// Ignoring returns a copy of the document that leaves e out of related
// fields while preparing.
func (d *Document) Ignoring(e *domain.Entity) *Document {
	cp := *d
	cp.ignore = e
	return &cp
}

// Targeting returns a copy of the document writing to another index,
// such as an inactive version of its own.
func (d *Document) Targeting(idx *domain.Index) *Document {
	cp := *d
	cp.index = idx
	return &cp
}

// Ignored returns the entity left out while preparing, if any.
func (d *Document) Ignored() *domain.Entity { return d.ignore }

// Prepare converts an entity into a document body.
func (d *Document) Prepare(ctx context.Context, e *domain.Entity) (map[string]any, error) {
	doc := make(map[string]any, len(d.preparers))
	for _, p := range d.preparers {
		v, err := p.prepare(ctx, e, d.ignore)
		if err != nil {
			return nil, fmt.Errorf("preparing %s.%s: %w", d.name, p.field.Name, err)
		}
		doc[p.field.Name] = v
	}
	return doc, nil
}

// ShouldIndex reports whether an entity belongs in the index.
func (d *Document) ShouldIndex(e *domain.Entity) bool {
	if d.shouldIndex == nil {
		return true
	}
	return d.shouldIndex(e)
}

// ComputeID returns the document id of an entity.
func (d *Document) ComputeID(e *domain.Entity) string {
	if d.generateID != nil {
		return d.generateID(e)
	}
	return strconv.FormatInt(e.ID, 10)
}

// Instances returns the entities whose documents depend on related.
func (d *Document) Instances(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error) {
	if d.instances == nil {
		return nil, nil
	}
	out, err := d.instances(ctx, related)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// Queryset builds the query over the document's entities. It is ordered
// by primary key unless the hook already ordered or sliced it, and
// bounded to count entities when count is positive.
func (d *Document) Queryset(filter []domain.Lookup, excludes [][]domain.Lookup, count int) domain.Query {
	q := domain.NewQuery(d.model.Name).Where(filter...)
	for _, group := range excludes {
		q = q.Without(group...)
	}
	if d.queryset != nil {
		q = d.queryset(q)
	}
	if !q.Ordered() && !q.Sliced() {
		q = q.OrderBy("id")
	}
	if count > 0 {
		q = q.Slice(0, count)
	}
	return q
}

// store returns the entity store for a database alias.
func (d *Document) store(alias string) (driven.EntityStore, error) {
	if d.registry == nil {
		return nil, &domain.ConfigurationError{Document: d.name, Reason: "not registered"}
	}
	return d.registry.databases.Using(alias)
}

// Databases maps database aliases to entity stores.
type Databases map[string]driven.EntityStore

// DefaultDatabase is the alias used when none is given.
const DefaultDatabase = "default"

// Using returns the store for alias; "" selects the default one.
func (d Databases) Using(alias string) (driven.EntityStore, error) {
	if alias == "" {
		alias = DefaultDatabase
	}
	s, ok := d[alias]
	if !ok {
		return nil, fmt.Errorf("%w: unknown database %q", domain.ErrInvalidInput, alias)
	}
	return s, nil
}
