package openapimock

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// DefaultMaxDepth is the schema-walk depth limit when a mock omits
// max_depth (spec.md §4.4).
const DefaultMaxDepth = 3

// Synthesize builds a value from schema, honoring an explicit example
// first and otherwise filling type-appropriate placeholders down to
// maxDepth: integer->0, string->"string", boolean->true, array->[one
// element], object->{every declared field}.
func Synthesize(schema *openapi3.Schema, maxDepth int) interface{} {
	return synthesize(schema, maxDepth, 0)
}

func synthesize(schema *openapi3.Schema, maxDepth, depth int) interface{} {
	if schema == nil {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	if depth >= maxDepth {
		return zeroValue(schema)
	}

	switch schemaType(schema) {
	case "integer", "number":
		return 0
	case "string":
		return "string"
	case "boolean":
		return true
	case "array":
		if schema.Items == nil || schema.Items.Value == nil {
			return []interface{}{}
		}
		return []interface{}{synthesize(schema.Items.Value, maxDepth, depth+1)}
	case "object":
		out := make(map[string]interface{}, len(schema.Properties))
		for name, ref := range schema.Properties {
			if ref == nil || ref.Value == nil {
				continue
			}
			out[name] = synthesize(ref.Value, maxDepth, depth+1)
		}
		return out
	default:
		if len(schema.Properties) > 0 {
			out := make(map[string]interface{}, len(schema.Properties))
			for name, ref := range schema.Properties {
				if ref == nil || ref.Value == nil {
					continue
				}
				out[name] = synthesize(ref.Value, maxDepth, depth+1)
			}
			return out
		}
		return nil
	}
}

// zeroValue returns a depth-limit placeholder without recursing further
// into nested object/array fields.
func zeroValue(schema *openapi3.Schema) interface{} {
	switch schemaType(schema) {
	case "integer", "number":
		return 0
	case "string":
		return "string"
	case "boolean":
		return true
	case "array":
		return []interface{}{}
	default:
		return map[string]interface{}{}
	}
}

// schemaType reads the schema's declared OpenAPI 3.0 type.
func schemaType(schema *openapi3.Schema) string {
	return schema.Type
}
