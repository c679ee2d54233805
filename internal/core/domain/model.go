package domain

import "sync"

// ColumnKind is the declared type of a relational column.
type ColumnKind string

// Supported column kinds.
const (
	ColumnAuto                 ColumnKind = "auto"
	ColumnBigAuto              ColumnKind = "big_auto"
	ColumnBigInteger           ColumnKind = "big_integer"
	ColumnBoolean              ColumnKind = "boolean"
	ColumnChar                 ColumnKind = "char"
	ColumnDate                 ColumnKind = "date"
	ColumnDateTime             ColumnKind = "datetime"
	ColumnDecimal              ColumnKind = "decimal"
	ColumnEmail                ColumnKind = "email"
	ColumnFile                 ColumnKind = "file"
	ColumnFilePath             ColumnKind = "file_path"
	ColumnFloat                ColumnKind = "float"
	ColumnImage                ColumnKind = "image"
	ColumnInteger              ColumnKind = "integer"
	ColumnNullBoolean          ColumnKind = "null_boolean"
	ColumnPositiveInteger      ColumnKind = "positive_integer"
	ColumnPositiveSmallInteger ColumnKind = "positive_small_integer"
	ColumnSlug                 ColumnKind = "slug"
	ColumnSmallInteger         ColumnKind = "small_integer"
	ColumnText                 ColumnKind = "text"
	ColumnTime                 ColumnKind = "time"
	ColumnURL                  ColumnKind = "url"
	ColumnUUID                 ColumnKind = "uuid"
	ColumnChoice               ColumnKind = "choice"

	// ColumnForeignKey holds the primary key of another model.
	ColumnForeignKey ColumnKind = "foreign_key"

	// ColumnJSON holds an arbitrary structured value.
	ColumnJSON ColumnKind = "json"
)

// IsInteger reports whether values of this kind are stored as int64.
func (k ColumnKind) IsInteger() bool {
	switch k {
	case ColumnAuto, ColumnBigAuto, ColumnBigInteger, ColumnInteger, ColumnPositiveInteger,
		ColumnPositiveSmallInteger, ColumnSmallInteger, ColumnForeignKey, ColumnTime:
		return true
	default:
		return false
	}
}

// IsFloat reports whether values of this kind are stored as float64.
func (k ColumnKind) IsFloat() bool {
	return k == ColumnFloat || k == ColumnDecimal
}

// IsBool reports whether values of this kind are booleans.
func (k ColumnKind) IsBool() bool {
	return k == ColumnBoolean || k == ColumnNullBoolean
}

// IsTime reports whether values of this kind are time.Time.
func (k ColumnKind) IsTime() bool {
	return k == ColumnDate || k == ColumnDateTime
}

// Field is a column of a relational model.
type Field struct {
	Name string
	Kind ColumnKind
	Null bool

	// Related names the target model of a foreign key.
	Related string
}

// Relation is a many-to-many relation owned by a model.
type Relation struct {
	Name   string
	Target string

	// Table is the join table; defaults to <owner table>_<name>.
	Table string
}

// Model is a relational entity type. The primary key is always the
// integer column "id" and is not listed in Fields.
type Model struct {
	Name      string
	Namespace string
	Table     string
	Parent    *Model

	Fields     []Field
	ManyToMany []Relation

	lineageOnce sync.Once
	lineage     []string
}

// Label returns the namespaced model name, e.g. "geo.Country".
func (m *Model) Label() string {
	if m.Namespace == "" {
		return m.Name
	}
	return m.Namespace + "." + m.Name
}

// TableName returns the backing table name.
func (m *Model) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	if m.Namespace == "" {
		return toSnake(m.Name)
	}
	return m.Namespace + "_" + toSnake(m.Name)
}

// Field returns the named column. "id" and "pk" resolve to the primary key.
func (m *Model) Field(name string) (Field, bool) {
	if name == "id" || name == "pk" {
		return Field{Name: "id", Kind: ColumnAuto}, true
	}
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	if m.Parent != nil {
		return m.Parent.Field(name)
	}
	return Field{}, false
}

// Relation returns the named many-to-many relation.
func (m *Model) Relation(name string) (Relation, bool) {
	for _, r := range m.ManyToMany {
		if r.Name == name {
			if r.Table == "" {
				r.Table = m.TableName() + "_" + r.Name
			}
			return r, true
		}
	}
	return Relation{}, false
}

// Lineage returns the model name followed by the names of its ancestors.
// It is computed once.
func (m *Model) Lineage() []string {
	m.lineageOnce.Do(func() {
		seen := make(map[*Model]bool)
		for t := m; t != nil && !seen[t]; t = t.Parent {
			seen[t] = true
			m.lineage = append(m.lineage, t.Name)
		}
	})
	return m.lineage
}

// Is reports whether the model is name or inherits from it.
func (m *Model) Is(name string) bool {
	for _, n := range m.Lineage() {
		if n == name {
			return true
		}
	}
	return false
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
