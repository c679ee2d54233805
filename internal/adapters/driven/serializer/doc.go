// Package serializer converts entities to the payload of deferred delete
// tasks and back.
//
// Both formats write one {model, pk, fields} record per entity, where model
// is the namespaced label. Decoding revives field values to the Go types of
// the model's column kinds, so a revived entity extracts the same document
// as the original.
package serializer
