package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_SliceComposes(t *testing.T) {
	q := NewQuery("Country").Slice(0, 10)
	assert.True(t, q.Sliced())

	window := q.Slice(8, 5)
	assert.Equal(t, 8, window.Offset)
	assert.Equal(t, 2, window.Limit, "window is clipped to the outer slice")

	past := q.Slice(20, 5)
	assert.Equal(t, 0, past.Limit)
}

func TestQuery_BuildersDoNotAlias(t *testing.T) {
	base := NewQuery("Country").Where(Eq("name", "a"))
	first := base.Where(Eq("area", int64(1)))
	second := base.Where(Eq("area", int64(2)))

	assert.Len(t, base.Filter, 1)
	assert.Equal(t, int64(1), first.Filter[1].Value)
	assert.Equal(t, int64(2), second.Filter[1].Value)
}

func TestQuery_Matches(t *testing.T) {
	m := &Model{Name: "Country", Fields: []Field{{Name: "name", Kind: ColumnChar}}}
	fr := NewEntity(m, 1, map[string]any{"name": "France"})
	de := NewEntity(m, 2, map[string]any{"name": "Germany"})

	q := NewQuery("Country").Without(Eq("name", "France"))
	assert.False(t, q.Matches(fr))
	assert.True(t, q.Matches(de))

	q = NewQuery("Country").Where(In("id", int64(2)))
	assert.False(t, q.Matches(fr))
	assert.True(t, q.Matches(de))
}

func TestQuery_ExcludeGroupsAreIndependent(t *testing.T) {
	m := &Model{Name: "Country"}
	e := NewEntity(m, 3, map[string]any{"name": "Spain"})

	q := NewQuery("Country").
		Without(Eq("name", "France")).
		Without(In("id", int64(3)))
	assert.False(t, q.Matches(e))
}

func TestQuery_Unsliced(t *testing.T) {
	q := NewQuery("Country").Slice(5, 5).Unsliced()
	assert.False(t, q.Sliced())
}
