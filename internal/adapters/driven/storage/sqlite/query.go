package sqlite

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// compiled is a SELECT statement with its arguments.
type compiled struct {
	sql  string
	args []any
}

// compileQuery translates q into SQL over the table of m. q must have been
// validated against m.
func compileQuery(m *domain.Model, q domain.Query) (compiled, error) {
	cols := columns(m)
	names := make([]string, 0, len(cols)+1)
	names = append(names, "id")
	for _, f := range cols {
		names = append(names, quote(f.Name))
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(names, ", "), quote(m.TableName()))

	var where []string
	for _, l := range q.Filter {
		cond, condArgs, err := compileLookup(m, l)
		if err != nil {
			return compiled{}, err
		}
		where = append(where, cond)
		args = append(args, condArgs...)
	}
	for _, group := range q.Excludes {
		parts := make([]string, 0, len(group))
		for _, l := range group {
			cond, condArgs, err := compileLookup(m, l)
			if err != nil {
				return compiled{}, err
			}
			parts = append(parts, cond)
			args = append(args, condArgs...)
		}
		// A NULL comparison does not match, so the group does not exclude.
		where = append(where, "NOT COALESCE(("+strings.Join(parts, " AND ")+"), 0)")
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	order := make([]string, 0, len(q.Order)+1)
	for _, o := range q.Order {
		name := strings.TrimPrefix(o, "-")
		f, _ := m.Field(name)
		clause := quote(f.Name)
		if strings.HasPrefix(o, "-") {
			clause += " DESC"
		}
		order = append(order, clause)
	}
	order = append(order, "id")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))

	if q.Sliced() {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	}
	return compiled{sql: sb.String(), args: args}, nil
}

// compileLookup returns the condition of one lookup.
//
//nolint:gocyclo // one branch per operator
func compileLookup(m *domain.Model, l domain.Lookup) (string, []any, error) {
	f, ok := m.Field(l.Field)
	if !ok {
		return "", nil, &domain.FilterError{Model: m.Name, Lookup: l.String(), Reason: "unknown field " + l.Field}
	}
	col := quote(f.Name)
	encode := func(v any) (any, error) {
		out, err := encodeValue(f.Kind, v)
		if err != nil {
			return nil, &domain.FilterError{Model: m.Name, Lookup: l.String(), Reason: err.Error()}
		}
		return out, nil
	}

	switch l.Op {
	case "", domain.OpExact:
		if l.Value == nil {
			return col + " IS NULL", nil, nil
		}
		v, err := encode(l.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{v}, nil
	case domain.OpIExact:
		return "LOWER(" + col + ") = ?", []any{strings.ToLower(toText(l.Value))}, nil
	case domain.OpContains:
		return col + " GLOB ?", []any{"*" + globEscape(toText(l.Value)) + "*"}, nil
	case domain.OpIContains:
		return "LOWER(" + col + ") GLOB ?", []any{"*" + globEscape(strings.ToLower(toText(l.Value))) + "*"}, nil
	case domain.OpStartsWith:
		return col + " GLOB ?", []any{globEscape(toText(l.Value)) + "*"}, nil
	case domain.OpIStartsWith:
		return "LOWER(" + col + ") GLOB ?", []any{globEscape(strings.ToLower(toText(l.Value))) + "*"}, nil
	case domain.OpEndsWith:
		return col + " GLOB ?", []any{"*" + globEscape(toText(l.Value))}, nil
	case domain.OpIEndsWith:
		return "LOWER(" + col + ") GLOB ?", []any{"*" + globEscape(strings.ToLower(toText(l.Value)))}, nil
	case domain.OpIn:
		items := domain.AsList(l.Value)
		if len(items) == 0 {
			return "0", nil, nil
		}
		args := make([]any, 0, len(items))
		for _, item := range items {
			v, err := encode(item)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		}
		return col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + ")", args, nil
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		v, err := encode(l.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " " + comparators[l.Op] + " ?", []any{v}, nil
	case domain.OpIsNull:
		want, _ := l.Value.(bool)
		if i, ok := l.Value.(int64); ok {
			want = i != 0
		}
		if want {
			return col + " IS NULL", nil, nil
		}
		return col + " IS NOT NULL", nil, nil
	case domain.OpRange:
		bounds := domain.AsList(l.Value)
		if len(bounds) != 2 {
			return "", nil, &domain.FilterError{Model: m.Name, Lookup: l.String(), Reason: "range needs two bounds"}
		}
		lo, err := encode(bounds[0])
		if err != nil {
			return "", nil, err
		}
		hi, err := encode(bounds[1])
		if err != nil {
			return "", nil, err
		}
		return col + " BETWEEN ? AND ?", []any{lo, hi}, nil
	}
	return "", nil, &domain.FilterError{Model: m.Name, Lookup: l.String(), Reason: "unsupported operator " + l.Op}
}

var comparators = map[string]string{
	domain.OpGt:  ">",
	domain.OpGte: ">=",
	domain.OpLt:  "<",
	domain.OpLte: "<=",
}

// globEscape quotes the GLOB metacharacters of s.
func globEscape(s string) string {
	r := strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]")
	return r.Replace(s)
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
