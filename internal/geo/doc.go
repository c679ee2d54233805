// Package geo is the sample application served by the searchsync binary.
//
// It declares three models, Continent, Country and Event, linked by foreign
// keys, and one document per model:
//
//	ContinentDocument  continent  countries are embedded as nested objects
//	CountryDocument    country    embeds its continent and its event ids
//	EventDocument      event      embeds the full country document
//
// Every document lists the models it embeds as related models, so a change
// to a country re-derives its continent and its events. Events held in
// France are never indexed.
package geo
