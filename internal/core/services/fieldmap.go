package services

import "github.com/custodia-labs/searchsync/internal/core/domain"

// fieldTypes maps every supported column kind to its search field type.
var fieldTypes = map[domain.ColumnKind]domain.FieldType{
	domain.ColumnAuto:                 domain.FieldInteger,
	domain.ColumnBigAuto:              domain.FieldLong,
	domain.ColumnBigInteger:           domain.FieldLong,
	domain.ColumnBoolean:              domain.FieldBoolean,
	domain.ColumnChar:                 domain.FieldText,
	domain.ColumnDate:                 domain.FieldDate,
	domain.ColumnDateTime:             domain.FieldDate,
	domain.ColumnDecimal:              domain.FieldDouble,
	domain.ColumnEmail:                domain.FieldText,
	domain.ColumnFile:                 domain.FieldFile,
	domain.ColumnFilePath:             domain.FieldKeyword,
	domain.ColumnFloat:                domain.FieldDouble,
	domain.ColumnImage:                domain.FieldFile,
	domain.ColumnInteger:              domain.FieldInteger,
	domain.ColumnNullBoolean:          domain.FieldBoolean,
	domain.ColumnPositiveInteger:      domain.FieldInteger,
	domain.ColumnPositiveSmallInteger: domain.FieldShort,
	domain.ColumnSlug:                 domain.FieldKeyword,
	domain.ColumnSmallInteger:         domain.FieldShort,
	domain.ColumnText:                 domain.FieldText,
	domain.ColumnTime:                 domain.FieldLong,
	domain.ColumnURL:                  domain.FieldText,
	domain.ColumnUUID:                 domain.FieldKeyword,
	domain.ColumnChoice:               domain.FieldKeyword,
}

// MapField returns the search field type of a model column.
// Unsupported kinds fail with *domain.FieldMappingError.
func MapField(model string, f domain.Field) (domain.FieldType, error) {
	t, ok := fieldTypes[f.Kind]
	if !ok {
		return "", &domain.FieldMappingError{Model: model, Field: f.Name, Kind: f.Kind}
	}
	return t, nil
}

// SupportedColumnKinds returns the kinds MapField accepts.
func SupportedColumnKinds() []domain.ColumnKind {
	kinds := make([]domain.ColumnKind, 0, len(fieldTypes))
	for k := range fieldTypes {
		kinds = append(kinds, k)
	}
	return kinds
}
