// Package domain defines the core types of searchsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Model: A relational entity type and its column schema
//   - Entity: One relational record instance
//   - Query: An immutable filter/exclude/order/slice description
//   - BulkRequest: One index/create/update/delete operation for the backend
//   - Index: A named search index and its version aliases
//   - Signal: A relational store lifecycle notification
//   - Task: A unit of deferred work
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
