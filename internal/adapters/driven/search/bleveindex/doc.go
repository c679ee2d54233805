// Package bleveindex provides an embedded search backend built on bleve.
//
// Concrete indices live under a directory as <name>.bleve, or in memory when
// the directory is empty. Aliases are persisted to aliases.json and searched
// through bleve index aliases. Bulk items are answered with the statuses and
// error types of a remote engine, so the registry reports them the same way
// for every backend.
package bleveindex
