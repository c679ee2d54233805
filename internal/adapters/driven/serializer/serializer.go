package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// Ensure the serializers implement the interface.
var (
	_ driven.EntitySerializer = JSON{}
	_ driven.EntitySerializer = BSON{}
)

// New returns the serializer registered under name.
func New(name string) (driven.EntitySerializer, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "bson":
		return BSON{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown serializer %q", domain.ErrInvalidInput, name)
	}
}

// JSON serializes entities as a JSON array of records.
type JSON struct{}

// Name returns "json".
func (JSON) Name() string { return "json" }

// Serialize encodes entities. Times are written in RFC 3339.
func (JSON) Serialize(entities []*domain.Entity) ([]byte, error) {
	records, err := toRecords(entities)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding entities: %w", err)
	}
	return data, nil
}

// Deserialize decodes entities, keeping integers exact.
func (JSON) Deserialize(data []byte, models driven.ModelResolver) ([]*domain.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return fromRecords(records, models)
}

// BSON serializes entities as one BSON document holding the records.
type BSON struct{}

type bsonEnvelope struct {
	Records []record `bson:"records"`
}

// Name returns "bson".
func (BSON) Name() string { return "bson" }

// Serialize encodes entities.
func (BSON) Serialize(entities []*domain.Entity) ([]byte, error) {
	records, err := toRecords(entities)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(bsonEnvelope{Records: records})
	if err != nil {
		return nil, fmt.Errorf("encoding entities: %w", err)
	}
	return data, nil
}

// Deserialize decodes entities.
func (BSON) Deserialize(data []byte, models driven.ModelResolver) ([]*domain.Entity, error) {
	var env bsonEnvelope
	if err := bson.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return fromRecords(env.Records, models)
}
