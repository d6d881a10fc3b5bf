package serializer

import (
	"fmt"

	"github.com/hamba/avro/v2"
)

// CurrentVersion is the schema version new bundles are written with.
const CurrentVersion = 1

// schemaV1 is an array of points. The payload travels as a JSON string so
// free-form metadata keys survive without schema evolution.
const schemaV1 = `{
  "type": "array",
  "items": {
    "type": "record",
    "name": "VectorPoint",
    "namespace": "ragstore.export",
    "fields": [
      {"name": "id", "type": "string"},
      {"name": "vector", "type": {"type": "array", "items": "float"}},
      {"name": "payload", "type": "string"},
      {"name": "metadata", "type": {
        "type": "record",
        "name": "PointMetadata",
        "fields": [
          {"name": "nodeType", "type": "string"},
          {"name": "entityId", "type": "string"},
          {"name": "originalUid", "type": "string"}
        ]
      }}
    ]
  }
}`

// schemas maps bundle versions to their parsed schema. Old versions stay
// readable forever; only CurrentVersion is written.
var schemas = map[int]avro.Schema{
	1: avro.MustParse(schemaV1),
}

// schemaFor returns the schema for a bundle version.
func schemaFor(version int) (avro.Schema, error) {
	s, ok := schemas[version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return s, nil
}

type avroMetadata struct {
	NodeType    string `avro:"nodeType"`
	EntityID    string `avro:"entityId"`
	OriginalUID string `avro:"originalUid"`
}

type avroPoint struct {
	ID       string       `avro:"id"`
	Vector   []float32    `avro:"vector"`
	Payload  string       `avro:"payload"`
	Metadata avroMetadata `avro:"metadata"`
}
