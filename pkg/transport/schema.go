package transport

import (
	"encoding/json"
	"fmt"
)

// FieldType names the encoding of a schema field.
type FieldType string

const (
	// FixedWidthBytes is an opaque byte field of constant size.
	FixedWidthBytes FieldType = "FIXED_WIDTH_BYTES"
)

// Field is one column of a sample.
type Field struct {
	Name string    `json:"name"`
	Size int       `json:"size"`
	Type FieldType `json:"type"`
}

// Schema describes the layout of every sample in a stream.
type Schema struct {
	Fields []Field `json:"field_definitions"`
}

// FixedWidthSchema returns the single-field schema used for opaque samples.
func FixedWidthSchema(sampleSize int) Schema {
	return Schema{Fields: []Field{{Name: "data", Size: sampleSize, Type: FixedWidthBytes}}}
}

// SampleSize returns the total width of a sample.
func (s Schema) SampleSize() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Size
	}
	return total
}

// Validate checks that the schema can describe fixed-width samples.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	for _, f := range s.Fields {
		if f.Size < 1 {
			return fmt.Errorf("field %q has invalid size %d", f.Name, f.Size)
		}
		if f.Type != FixedWidthBytes {
			return fmt.Errorf("field %q has unsupported type %q", f.Name, f.Type)
		}
	}
	return nil
}

// MarshalJSONString returns the schema's JSON form, as stored in stream metadata.
func (s Schema) MarshalJSONString() (string, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(encoded), nil
}

// ParseSchema decodes a schema produced by MarshalJSONString.
func ParseSchema(raw string) (Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Schema{}, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return s, s.Validate()
}
