package domain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupSeparator separates a field name from its operator.
const LookupSeparator = "__"

// Lookup operators.
const (
	OpExact       = "exact"
	OpIExact      = "iexact"
	OpContains    = "contains"
	OpIContains   = "icontains"
	OpIn          = "in"
	OpGt          = "gt"
	OpGte         = "gte"
	OpLt          = "lt"
	OpLte         = "lte"
	OpStartsWith  = "startswith"
	OpIStartsWith = "istartswith"
	OpEndsWith    = "endswith"
	OpIEndsWith   = "iendswith"
	OpIsNull      = "isnull"
	OpRange       = "range"
)

var knownOps = map[string]bool{
	OpExact: true, OpIExact: true, OpContains: true, OpIContains: true, OpIn: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpStartsWith: true,
	OpIStartsWith: true, OpEndsWith: true, OpIEndsWith: true, OpIsNull: true, OpRange: true,
}

// IsLookupOp reports whether op is a supported lookup operator.
func IsLookupOp(op string) bool {
	return knownOps[op]
}

// Lookup is one field condition, e.g. population__gte=1000.
type Lookup struct {
	Field string
	Op    string
	Value any
}

// Eq returns an exact lookup.
func Eq(field string, value any) Lookup {
	return Lookup{Field: field, Op: OpExact, Value: value}
}

// In returns a membership lookup.
func In(field string, values ...any) Lookup {
	return Lookup{Field: field, Op: OpIn, Value: values}
}

// String renders the lookup in field__op=value form.
func (l Lookup) String() string {
	op := l.Op
	if op == "" {
		op = OpExact
	}
	return fmt.Sprintf("%s%s%s=%v", l.Field, LookupSeparator, op, l.Value)
}

// ParseLookup parses "field__op=value". The operator defaults to exact and the
// value is coerced with CoerceValue.
func ParseLookup(expr string) (Lookup, error) {
	key, raw, ok := strings.Cut(expr, "=")
	if !ok || key == "" {
		return Lookup{}, fmt.Errorf("%w: lookup %q must be of the form field=value", ErrInvalidInput, expr)
	}

	field, op := key, OpExact
	if i := strings.LastIndex(key, LookupSeparator); i > 0 {
		candidate := key[i+len(LookupSeparator):]
		if IsLookupOp(candidate) {
			field, op = key[:i], candidate
		}
	}
	return Lookup{Field: field, Op: op, Value: CoerceValue(raw)}, nil
}

// ParseLookups parses a list of lookup expressions.
func ParseLookups(exprs []string) ([]Lookup, error) {
	out := make([]Lookup, 0, len(exprs))
	for _, expr := range exprs {
		l, err := ParseLookup(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// CoerceValue converts a command line value into a typed one. It tries, in
// order: empty (nil), integer, float, datetime, comma separated list, string.
func CoerceValue(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if t, ok := parseTime(s); ok {
		return t
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, CoerceValue(strings.TrimSpace(p)))
		}
		return out
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime parses the datetime layouts accepted by CoerceValue.
func ParseTime(s string) (time.Time, bool) {
	return parseTime(s)
}

// Match evaluates the lookup against v in memory.
//
//nolint:gocyclo // one branch per operator
func (l Lookup) Match(v any) bool {
	switch l.Op {
	case "", OpExact:
		return equalValues(v, l.Value)
	case OpIExact:
		return strings.EqualFold(toString(v), toString(l.Value))
	case OpContains:
		return strings.Contains(toString(v), toString(l.Value))
	case OpIContains:
		return strings.Contains(strings.ToLower(toString(v)), strings.ToLower(toString(l.Value)))
	case OpStartsWith:
		return strings.HasPrefix(toString(v), toString(l.Value))
	case OpIStartsWith:
		return strings.HasPrefix(strings.ToLower(toString(v)), strings.ToLower(toString(l.Value)))
	case OpEndsWith:
		return strings.HasSuffix(toString(v), toString(l.Value))
	case OpIEndsWith:
		return strings.HasSuffix(strings.ToLower(toString(v)), strings.ToLower(toString(l.Value)))
	case OpIn:
		for _, item := range AsList(l.Value) {
			if equalValues(v, item) {
				return true
			}
		}
		return false
	case OpGt:
		c, ok := Compare(v, l.Value)
		return ok && c > 0
	case OpGte:
		c, ok := Compare(v, l.Value)
		return ok && c >= 0
	case OpLt:
		c, ok := Compare(v, l.Value)
		return ok && c < 0
	case OpLte:
		c, ok := Compare(v, l.Value)
		return ok && c <= 0
	case OpIsNull:
		want, _ := l.Value.(bool)
		if i, ok := l.Value.(int64); ok {
			want = i != 0
		}
		return (v == nil) == want
	case OpRange:
		bounds := AsList(l.Value)
		if len(bounds) != 2 {
			return false
		}
		lo, ok1 := Compare(v, bounds[0])
		hi, ok2 := Compare(v, bounds[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	}
	return false
}

// AsList returns v as a slice of values; a scalar becomes a one-element list.
func AsList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []int64:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// Compare orders two scalar values. Numbers compare numerically, times
// chronologically and everything else as strings.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			if s, isStr := b.(string); isStr {
				bt, ok = parseTime(s)
			}
		}
		if ok {
			return at.Compare(bt), true
		}
	}
	return strings.Compare(toString(a), toString(b)), true
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
