package serializer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// record is the portable form of one entity.
type record struct {
	Model  string         `json:"model" bson:"model"`
	PK     int64          `json:"pk" bson:"pk"`
	Fields map[string]any `json:"fields" bson:"fields"`
}

func toRecords(entities []*domain.Entity) ([]record, error) {
	out := make([]record, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.Model == nil {
			return nil, fmt.Errorf("%w: entity without model", domain.ErrInvalidInput)
		}
		out = append(out, record{Model: e.Model.Label(), PK: e.ID, Fields: e.Values})
	}
	return out, nil
}

func fromRecords(records []record, models driven.ModelResolver) ([]*domain.Entity, error) {
	out := make([]*domain.Entity, 0, len(records))
	for _, r := range records {
		m, ok := models(r.Model)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, r.Model)
		}
		values := make(map[string]any, len(r.Fields))
		for name, raw := range r.Fields {
			v := normalize(raw)
			if f, ok := m.Field(name); ok {
				revived, err := revive(f.Kind, v)
				if err != nil {
					return nil, fmt.Errorf("reviving %s.%s: %w", r.Model, name, err)
				}
				v = revived
			}
			values[name] = v
		}
		out = append(out, domain.NewEntity(m, r.PK, values))
	}
	return out, nil
}

// normalize turns decoder-specific containers and numbers into plain Go
// maps, slices and scalars.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	}
	return v
}

// revive converts a decoded value to the Go type of kind.
func revive(kind domain.ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case kind.IsInteger():
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%w: %v is not an integer", domain.ErrInvalidInput, n)
			}
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", domain.ErrInvalidInput, n)
			}
			return i, nil
		}
	case kind.IsFloat():
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case kind.IsBool():
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case kind.IsTime():
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			if parsed, ok := domain.ParseTime(t); ok {
				return parsed, nil
			}
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot read %T as %s", domain.ErrInvalidInput, v, kind)
}
