// Package migrations holds the versioned schema of the store's own tables.
// Model tables are created at registration, not here.
package migrations

import "embed"

// FS holds the NNN_name.up.sql and NNN_name.down.sql files.
//
//go:embed *.sql
var FS embed.FS
