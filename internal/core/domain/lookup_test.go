package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"empty is nil", "", nil},
		{"integer", "42", int64(42)},
		{"negative integer", "-7", int64(-7)},
		{"float", "3.5", 3.5},
		{"date", "2021-03-04", time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"list", "1,b,2.5", []any{int64(1), "b", 2.5}},
		{"string", "France", "France"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceValue(tt.input))
		})
	}
}

func TestParseLookup(t *testing.T) {
	l, err := ParseLookup("population__gte=1000")
	require.NoError(t, err)
	assert.Equal(t, "population", l.Field)
	assert.Equal(t, OpGte, l.Op)
	assert.Equal(t, int64(1000), l.Value)
}

func TestParseLookup_DefaultsToExact(t *testing.T) {
	l, err := ParseLookup("name=France")
	require.NoError(t, err)
	assert.Equal(t, Lookup{Field: "name", Op: OpExact, Value: "France"}, l)
}

func TestParseLookup_UnknownOperatorStaysInFieldName(t *testing.T) {
	l, err := ParseLookup("continent__name=Europe")
	require.NoError(t, err)
	assert.Equal(t, "continent__name", l.Field)
	assert.Equal(t, OpExact, l.Op)
}

func TestParseLookup_MissingValue(t *testing.T) {
	_, err := ParseLookup("name")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLookup_Match(t *testing.T) {
	tests := []struct {
		name   string
		lookup Lookup
		value  any
		want   bool
	}{
		{"exact int", Eq("id", int64(3)), int64(3), true},
		{"exact mismatch", Eq("id", int64(3)), int64(4), false},
		{"iexact", Lookup{Op: OpIExact, Value: "france"}, "France", true},
		{"icontains", Lookup{Op: OpIContains, Value: "RAN"}, "France", true},
		{"startswith", Lookup{Op: OpStartsWith, Value: "Fr"}, "France", true},
		{"in", In("id", int64(1), int64(2)), int64(2), true},
		{"not in", In("id", int64(1), int64(2)), int64(5), false},
		{"gt", Lookup{Op: OpGt, Value: int64(10)}, int64(11), true},
		{"lte", Lookup{Op: OpLte, Value: 2.5}, int64(2), true},
		{"isnull true", Lookup{Op: OpIsNull, Value: true}, nil, true},
		{"isnull false", Lookup{Op: OpIsNull, Value: false}, nil, false},
		{"range", Lookup{Op: OpRange, Value: []any{int64(1), int64(5)}}, int64(5), true},
		{"nil never equals value", Eq("x", "a"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lookup.Match(tt.value))
		})
	}
}

func TestCompare_Times(t *testing.T) {
	a := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)

	c, ok := Compare(a, b)
	require.True(t, ok)
	assert.Equal(t, -1, c)
}
