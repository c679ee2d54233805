package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown backend, processor or serializer kind.
	ErrUnsupportedType = errors.New("unsupported type")

	// Registry Errors.

	// ErrRegistrySealed indicates a registration attempt after Seal.
	ErrRegistrySealed = errors.New("document registry is sealed")

	// ErrUnknownIndex indicates an index name no descriptor declares.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrUnknownModel indicates an entity type no descriptor mirrors.
	ErrUnknownModel = errors.New("unknown model")

	// ErrIndexNotCreated indicates the backend has no index for a declared name.
	ErrIndexNotCreated = errors.New("index not created")

	// ErrConfirmationRequired indicates a destructive operation needs --force
	// when no terminal is attached.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// FieldMappingError reports a model field whose column kind has no
// search field equivalent.
type FieldMappingError struct {
	Model string
	Field string
	Kind  ColumnKind
}

func (e *FieldMappingError) Error() string {
	return fmt.Sprintf("field %s.%s of kind %q has no search field equivalent", e.Model, e.Field, e.Kind)
}

// RedeclaredFieldError reports a field declared both as a mirrored model
// field and in the manual schema of a document.
type RedeclaredFieldError struct {
	Document string
	Field    string
}

func (e *RedeclaredFieldError) Error() string {
	return fmt.Sprintf("you cannot redeclare the field named %q on %s", e.Field, e.Document)
}

// ConfigurationError reports missing or invalid document metadata.
type ConfigurationError struct {
	Document string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("document %s: %s", e.Document, e.Reason)
}

// FilterError reports an invalid filter or exclude expression.
// It is raised by the relational store and surfaced unchanged.
type FilterError struct {
	Model  string
	Lookup string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid lookup %q on %s: %s", e.Lookup, e.Model, e.Reason)
}

// TransportError reports a failed index management call on the search backend.
type TransportError struct {
	Op     string
	Index  string
	Status int
	Type   string
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s - %s", e.Type, e.Reason)
}

// IsNotFound reports whether the backend answered 404.
func (e *TransportError) IsNotFound() bool {
	return e.Status == 404
}

// BulkError aborts a synchronization when errors must be raised.
type BulkError struct {
	Errors []BulkItemError
}

func (e *BulkError) Error() string {
	if len(e.Errors) == 0 {
		return "bulk request failed"
	}
	first := e.Errors[0]
	return fmt.Sprintf("%d document(s) failed to index: %s %s/%s: %s",
		len(e.Errors), first.Action, first.Index, first.ID, first.Reason)
}

// IsTransportNotFound reports whether err is a backend 404.
func IsTransportNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsNotFound()
}
