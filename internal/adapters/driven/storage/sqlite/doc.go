// Package sqlite provides the SQLite-backed relational store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Through a single database connection it
// implements:
//
//   - EntityStore: Model tables, queries and counts
//   - Committer: Commit hooks of WithTx units of work
//   - TaskQueue / TaskSource: The deferred processor's task table
//
// Save, Delete and the membership operations publish post_save, pre_delete
// and m2m_changed signals to the publisher given to NewStore.
//
// # Schema
//
// The store's own tables are managed through versioned migrations stored in the
// migrations/ directory. Model tables are created by Register: one table per
// model holding its own and inherited columns, plus one join table per
// many-to-many relation.
//
// # Data Location
//
// By default, the database is stored at ~/.searchsync/data/searchsync.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
