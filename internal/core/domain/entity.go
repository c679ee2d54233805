package domain

import (
	"reflect"
	"strings"
)

// Entity is one relational record instance.
type Entity struct {
	Model  *Model
	ID     int64
	Values map[string]any
}

// NewEntity creates an entity of the given model.
func NewEntity(model *Model, id int64, values map[string]any) *Entity {
	if values == nil {
		values = make(map[string]any)
	}
	return &Entity{Model: model, ID: id, Values: values}
}

// Type returns the entity's model name.
func (e *Entity) Type() string {
	if e == nil || e.Model == nil {
		return ""
	}
	return e.Model.Name
}

// Same reports whether both entities denote the same record.
func (e *Entity) Same(other *Entity) bool {
	if e == nil || other == nil {
		return false
	}
	return e.Type() == other.Type() && e.ID == other.ID
}

// Get returns a single attribute. "id" and "pk" return the primary key.
func (e *Entity) Get(name string) (any, bool) {
	if name == "id" || name == "pk" {
		return e.ID, true
	}
	v, ok := e.Values[name]
	return v, ok
}

// Set assigns an attribute.
func (e *Entity) Set(name string, v any) {
	if e.Values == nil {
		e.Values = make(map[string]any)
	}
	e.Values[name] = v
}

// Value walks a dotted attribute path. Each step may traverse an *Entity,
// a map or a slice; a slice fans the remaining path out over its elements.
// A missing step yields nil.
func (e *Entity) Value(path string) any {
	if e == nil {
		return nil
	}
	return walk(e, strings.Split(path, "."))
}

func walk(v any, parts []string) any {
	if len(parts) == 0 || v == nil {
		return v
	}
	head, rest := parts[0], parts[1:]

	switch t := v.(type) {
	case *Entity:
		if t == nil {
			return nil
		}
		next, ok := t.Get(head)
		if !ok {
			return nil
		}
		return walk(next, rest)
	case map[string]any:
		return walk(t[head], rest)
	case []*Entity:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, walk(item, parts))
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, walk(item, parts))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		mv := rv.MapIndex(reflect.ValueOf(head).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil
		}
		return walk(mv.Interface(), rest)
	}
	return nil
}
