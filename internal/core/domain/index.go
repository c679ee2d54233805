package domain

import (
	"maps"
	"strings"
)

// VersionSeparator joins an index name and a version suffix.
const VersionSeparator = "--"

// Index is a named search index. Settings hold backend index settings
// such as number_of_shards.
type Index struct {
	Name     string
	Settings map[string]any

	// AutoRefresh makes writes to this index refresh by default.
	AutoRefresh *bool
}

// NewIndex creates an index declaration.
func NewIndex(name string, settings map[string]any) *Index {
	if settings == nil {
		settings = make(map[string]any)
	}
	return &Index{Name: name, Settings: settings}
}

// String returns the index name.
func (i *Index) String() string {
	return i.Name
}

// VersionName returns the physical name of a version of this index.
func (i *Index) VersionName(suffix string) string {
	return i.Name + VersionSeparator + suffix
}

// VersionPattern returns the wildcard pattern matching every version.
func (i *Index) VersionPattern() string {
	return i.Name + VersionSeparator + "*"
}

// IsVersion reports whether name is a version of this index.
func (i *Index) IsVersion(name string) bool {
	return strings.HasPrefix(name, i.Name+VersionSeparator)
}

// MergeSettings layers explicit settings over defaults. Explicit values win.
func MergeSettings(defaults, explicit map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(explicit))
	maps.Copy(out, defaults)
	maps.Copy(out, explicit)
	return out
}

// IndexBody is the creation payload of an index.
type IndexBody struct {
	Settings map[string]any
	Mappings map[string]any
}

// AliasOp is an alias update operation.
type AliasOp string

// Alias operations.
const (
	AliasAdd    AliasOp = "add"
	AliasRemove AliasOp = "remove"
)

// AliasAction is one step of an atomic alias update.
type AliasAction struct {
	Op    AliasOp
	Index string
	Alias string
}

// Hit is one search result.
type Hit struct {
	Index string
	ID    string
	Score float64
}
