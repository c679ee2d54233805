package geo

import "github.com/custodia-labs/searchsync/internal/core/domain"

// Namespace is the namespace of the sample models.
const Namespace = "geo"

// Sample models. Tables are geo_continent, geo_country and geo_event.
var (
	Continent = &domain.Model{
		Name:      "Continent",
		Namespace: Namespace,
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
		},
	}

	Country = &domain.Model{
		Name:      "Country",
		Namespace: Namespace,
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
			{Name: "area", Kind: domain.ColumnBigInteger},
			{Name: "population", Kind: domain.ColumnBigInteger},
			{Name: "continent_id", Kind: domain.ColumnForeignKey, Related: "Continent"},
		},
	}

	Event = &domain.Model{
		Name:      "Event",
		Namespace: Namespace,
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
			{Name: "date", Kind: domain.ColumnDateTime},
			{Name: "country_id", Kind: domain.ColumnForeignKey, Related: "Country"},
			{Name: "source", Kind: domain.ColumnText},
			{Name: "comment", Kind: domain.ColumnText},
			{Name: "null_field", Kind: domain.ColumnInteger, Null: true},
		},
	}
)

// Models returns the sample models, referenced models first.
func Models() []*domain.Model {
	return []*domain.Model{Continent, Country, Event}
}

// NewContinent builds an unsaved continent.
func NewContinent(name string) *domain.Entity {
	return domain.NewEntity(Continent, 0, map[string]any{"name": name})
}

// NewCountry builds an unsaved country of a saved continent.
func NewCountry(name string, area, population int64, continent *domain.Entity) *domain.Entity {
	return domain.NewEntity(Country, 0, map[string]any{
		"name":         name,
		"area":         area,
		"population":   population,
		"continent_id": continent.ID,
	})
}

// foreignKey reads a foreign key column of e.
func foreignKey(e *domain.Entity, name string) (int64, bool) {
	v, ok := e.Get(name)
	if !ok || v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
