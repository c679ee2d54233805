package domain

// FieldType is the type of a search document field.
type FieldType string

// Search field types.
const (
	FieldInteger FieldType = "integer"
	FieldLong    FieldType = "long"
	FieldShort   FieldType = "short"
	FieldDouble  FieldType = "double"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
	FieldText    FieldType = "text"
	FieldKeyword FieldType = "keyword"
	FieldDate    FieldType = "date"
	FieldFile    FieldType = "file"

	// FieldObject and FieldNested hold sub-documents described by Properties.
	FieldObject FieldType = "object"
	FieldNested FieldType = "nested"
)

// IsNumeric reports whether the field holds numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldInteger, FieldLong, FieldShort, FieldDouble, FieldFloat:
		return true
	default:
		return false
	}
}

// DocField is one field of a document schema.
type DocField struct {
	Name string
	Type FieldType

	// Attr is the dotted attribute path read by the default extractor.
	// Defaults to Name.
	Attr string

	// Properties describes the sub-fields of object and nested fields.
	Properties []DocField
}

// Source returns the attribute path the default extractor reads.
func (f DocField) Source() string {
	if f.Attr != "" {
		return f.Attr
	}
	return f.Name
}

// Mapping returns the backend mapping of the field.
func (f DocField) Mapping() map[string]any {
	switch f.Type {
	case FieldObject, FieldNested:
		return map[string]any{
			"type":       string(f.Type),
			"properties": Properties(f.Properties),
		}
	case FieldFile:
		// Files are indexed by their stored path.
		return map[string]any{"type": string(FieldText)}
	default:
		return map[string]any{"type": string(f.Type)}
	}
}

// Properties returns the mapping properties of a field list.
func Properties(fields []DocField) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = f.Mapping()
	}
	return props
}
