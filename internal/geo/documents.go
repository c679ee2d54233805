package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/core/services"
)

// Index names.
const (
	ContinentIndex = "continent"
	CountryIndex   = "country"
	EventIndex     = "event"
)

// EventPagination is the streaming chunk size of EventDocument.
const EventPagination = 512

// Documents holds the registered sample descriptors.
type Documents struct {
	Continent *services.Document
	Country   *services.Document
	Event     *services.Document
}

// relations resolves foreign keys in both directions.
type relations struct {
	store driven.EntityStore
}

// parent returns the entity e points at through fk, as a one element
// slice, or domain.ErrNotFound when it is gone.
func (r relations) parent(ctx context.Context, e *domain.Entity, fk, model string) ([]*domain.Entity, error) {
	id, ok := foreignKey(e, fk)
	if !ok {
		return nil, nil
	}
	p, err := r.store.Get(ctx, model, id)
	if err != nil {
		return nil, err
	}
	return []*domain.Entity{p}, nil
}

// children returns the entities of model whose fk is id, leaving ignore out.
func (r relations) children(ctx context.Context, model, fk string, id int64, ignore *domain.Entity) ([]*domain.Entity, error) {
	q := domain.NewQuery(model).Where(domain.Eq(fk, id)).OrderBy("id")
	if ignore != nil && ignore.Type() == model {
		q = q.Without(domain.Eq("id", ignore.ID))
	}
	return r.store.Find(ctx, q)
}

// Register declares ContinentDocument, CountryDocument and EventDocument.
// Related fields are resolved through store.
func Register(registry *services.DocumentRegistry, store driven.EntityStore) (*Documents, error) {
	r := relations{store: store}
	docs := &Documents{}
	var err error

	if docs.Continent, err = registry.Register(continentSpec(r)); err != nil {
		return nil, fmt.Errorf("registering continent document: %w", err)
	}
	if docs.Country, err = registry.Register(countrySpec(r)); err != nil {
		return nil, fmt.Errorf("registering country document: %w", err)
	}
	if docs.Event, err = registry.Register(eventSpec(r, docs.Country)); err != nil {
		return nil, fmt.Errorf("registering event document: %w", err)
	}
	return docs, nil
}

func continentSpec(r relations) services.DocumentSpec {
	countries := domain.DocField{
		Name: "countries",
		Type: domain.FieldNested,
		Properties: []domain.DocField{
			{Name: "id", Type: domain.FieldLong},
			{Name: "name", Type: domain.FieldKeyword},
			{Name: "area", Type: domain.FieldLong},
			{Name: "population", Type: domain.FieldLong},
		},
	}

	return services.DocumentSpec{
		Name:          "ContinentDocument",
		Index:         domain.NewIndex(ContinentIndex, nil),
		Model:         Continent,
		Fields:        []string{"name"},
		Manual:        []domain.DocField{{Name: "id", Type: domain.FieldLong}, countries},
		RelatedModels: []string{Country.Name},
		RelatedPreparers: map[string]services.RelatedPreparer{
			"countries": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				list, err := r.children(ctx, Country.Name, "continent_id", e.ID, ignore)
				if err != nil {
					return nil, err
				}
				return services.ExtractValue(list, countries, ignore), nil
			},
		},
		RelatedInstances: func(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error) {
			return r.parent(ctx, related, "continent_id", Continent.Name)
		},
	}
}

func countrySpec(r relations) services.DocumentSpec {
	continent := domain.DocField{
		Name: "continent",
		Type: domain.FieldObject,
		Properties: []domain.DocField{
			{Name: "id", Type: domain.FieldLong},
			{Name: "name", Type: domain.FieldKeyword},
		},
	}

	return services.DocumentSpec{
		Name:   "CountryDocument",
		Index:  domain.NewIndex(CountryIndex, nil),
		Model:  Country,
		Fields: []string{"name", "area", "population"},
		Manual: []domain.DocField{
			{Name: "id", Type: domain.FieldLong},
			continent,
			{Name: "events_id", Type: domain.FieldLong},
			{Name: "event_count", Type: domain.FieldLong},
		},
		RelatedModels: []string{Continent.Name, Event.Name},
		RelatedPreparers: map[string]services.RelatedPreparer{
			"continent": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				list, err := r.parent(ctx, e, "continent_id", Continent.Name)
				if errors.Is(err, domain.ErrNotFound) || len(list) == 0 {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return services.ExtractValue(list[0], continent, ignore), nil
			},
			"events_id": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				events, err := r.children(ctx, Event.Name, "country_id", e.ID, ignore)
				if err != nil {
					return nil, err
				}
				ids := make([]int64, 0, len(events))
				for _, ev := range events {
					ids = append(ids, ev.ID)
				}
				return ids, nil
			},
			"event_count": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				events, err := r.children(ctx, Event.Name, "country_id", e.ID, ignore)
				if err != nil {
					return nil, err
				}
				return len(events), nil
			},
		},
		RelatedInstances: func(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error) {
			switch related.Type() {
			case Continent.Name:
				return r.children(ctx, Country.Name, "continent_id", related.ID, nil)
			case Event.Name:
				return r.parent(ctx, related, "country_id", Country.Name)
			}
			return nil, nil
		},
	}
}

func eventSpec(r relations, country *services.Document) services.DocumentSpec {
	refresh := true

	return services.DocumentSpec{
		Name:   "EventDocument",
		Index:  domain.NewIndex(EventIndex, nil),
		Model:  Event,
		Fields: []string{"name", "date", "source", "comment", "null_field"},
		Manual: []domain.DocField{
			{Name: "country", Type: domain.FieldObject, Properties: country.Fields()},
		},
		RelatedModels: []string{Country.Name},
		AutoRefresh:   &refresh,
		Pagination:    EventPagination,
		RelatedPreparers: map[string]services.RelatedPreparer{
			"country": func(ctx context.Context, e, ignore *domain.Entity) (any, error) {
				list, err := r.parent(ctx, e, "country_id", Country.Name)
				if errors.Is(err, domain.ErrNotFound) || len(list) == 0 {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				if list[0].Same(ignore) {
					return nil, nil
				}
				return country.Ignoring(ignore).Prepare(ctx, list[0])
			},
		},
		// Events held in France are not searchable.
		ShouldIndex: func(e *domain.Entity) bool {
			list, err := r.parent(context.Background(), e, "country_id", Country.Name)
			if err != nil || len(list) == 0 {
				return true
			}
			return list[0].Values["name"] != "France"
		},
		RelatedInstances: func(ctx context.Context, related *domain.Entity) ([]*domain.Entity, error) {
			return r.children(ctx, Event.Name, "country_id", related.ID, nil)
		},
	}
}
