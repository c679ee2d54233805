package domain

import (
	"slices"
	"strings"
)

// Query describes a selection of entities of one model. It is immutable:
// every builder returns a modified copy.
//
// Filter lookups are AND-ed. Each exclude group removes the entities
// matching all of its lookups.
type Query struct {
	Model    string
	Filter   []Lookup
	Excludes [][]Lookup
	Order    []string
	Offset   int

	// Limit bounds the number of rows; -1 means unbounded.
	Limit int
}

// NewQuery returns an unbounded query over model.
func NewQuery(model string) Query {
	return Query{Model: model, Limit: -1}
}

// Where narrows the query with more filter lookups.
func (q Query) Where(lookups ...Lookup) Query {
	q.Filter = append(slices.Clone(q.Filter), lookups...)
	return q
}

// Without adds an exclude group. An empty group is ignored.
func (q Query) Without(lookups ...Lookup) Query {
	if len(lookups) == 0 {
		return q
	}
	q.Excludes = append(slices.Clone(q.Excludes), slices.Clone(lookups))
	return q
}

// OrderBy replaces the ordering. A leading "-" sorts descending.
func (q Query) OrderBy(fields ...string) Query {
	q.Order = slices.Clone(fields)
	return q
}

// Slice restricts the query to [offset, offset+limit) of its current rows.
// Slicing an already sliced query composes the windows.
func (q Query) Slice(offset, limit int) Query {
	if offset < 0 {
		offset = 0
	}
	if q.Limit >= 0 {
		remaining := q.Limit - offset
		if remaining < 0 {
			remaining = 0
		}
		if limit < 0 || limit > remaining {
			limit = remaining
		}
	}
	q.Offset += offset
	q.Limit = limit
	return q
}

// Unsliced drops any offset or limit.
func (q Query) Unsliced() Query {
	q.Offset = 0
	q.Limit = -1
	return q
}

// Sliced reports whether the query carries an offset or limit.
func (q Query) Sliced() bool {
	return q.Offset > 0 || q.Limit >= 0
}

// Ordered reports whether an explicit ordering is set.
func (q Query) Ordered() bool {
	return len(q.Order) > 0
}

// Lookups returns every lookup of the query, filters first.
func (q Query) Lookups() []Lookup {
	out := slices.Clone(q.Filter)
	for _, group := range q.Excludes {
		out = append(out, group...)
	}
	return out
}

// Matches evaluates filters and excludes against an entity in memory.
func (q Query) Matches(e *Entity) bool {
	for _, l := range q.Filter {
		if !l.Match(e.Value(l.Field)) {
			return false
		}
	}
	for _, group := range q.Excludes {
		all := true
		for _, l := range group {
			if !l.Match(e.Value(l.Field)) {
				all = false
				break
			}
		}
		if all {
			return false
		}
	}
	return true
}

// Validate checks that every lookup and ordering of the query names a
// field of m and a supported operator.
func (q Query) Validate(m *Model) error {
	for _, l := range q.Lookups() {
		if l.Op != "" && !IsLookupOp(l.Op) {
			return &FilterError{Model: m.Name, Lookup: l.String(), Reason: "unsupported operator " + l.Op}
		}
		if _, ok := m.Field(l.Field); !ok {
			return &FilterError{Model: m.Name, Lookup: l.String(), Reason: "unknown field " + l.Field}
		}
	}
	for _, o := range q.Order {
		name := strings.TrimPrefix(o, "-")
		if _, ok := m.Field(name); !ok {
			return &FilterError{Model: m.Name, Lookup: o, Reason: "unknown ordering field " + name}
		}
	}
	return nil
}
