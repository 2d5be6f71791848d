package openapimock

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// ValidationError is one failed check against a compiled schema
// (spec.md §4.4: `[{location, path, message}]`).
type ValidationError struct {
	Location string `json:"location"`
	Path     string `json:"path"`
	Message  string `json:"message"`
}

// ValidateRequest checks the inbound request's path parameters, query
// string, and body against op's compiled schemas, returning every
// mismatch found. A nil/empty result means the request is valid.
func ValidateRequest(op *openapi3.Operation, req *http.Request, pathParams map[string]string, rawBody []byte) []ValidationError {
	var errs []ValidationError

	for _, pref := range op.Parameters {
		if pref == nil || pref.Value == nil {
			continue
		}
		p := pref.Value

		var raw string
		var present bool
		switch p.In {
		case "path":
			raw, present = pathParams[p.Name]
		case "query":
			raw, present = firstQueryValue(req, p.Name)
		default:
			continue
		}

		if !present {
			if p.Required {
				errs = append(errs, ValidationError{Location: p.In, Path: p.Name, Message: "required parameter missing"})
			}
			continue
		}

		if p.Schema != nil && p.Schema.Value != nil {
			if msg, ok := validatePrimitive(p.Schema.Value, raw); !ok {
				errs = append(errs, ValidationError{Location: p.In, Path: p.Name, Message: msg})
			}
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		content := op.RequestBody.Value.Content.Get("application/json")
		if content != nil && content.Schema != nil && content.Schema.Value != nil {
			if len(rawBody) == 0 {
				if op.RequestBody.Value.Required {
					errs = append(errs, ValidationError{Location: "body", Path: "", Message: "request body required"})
				}
			} else {
				var decoded interface{}
				if err := json.Unmarshal(rawBody, &decoded); err != nil {
					errs = append(errs, ValidationError{Location: "body", Path: "", Message: "invalid JSON: " + err.Error()})
				} else if msgs := validateAgainstSchema(content.Schema.Value, decoded, ""); len(msgs) > 0 {
					errs = append(errs, msgs...)
				}
			}
		}
	}

	return errs
}

func firstQueryValue(req *http.Request, name string) (string, bool) {
	values := req.URL.Query()[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func validatePrimitive(schema *openapi3.Schema, raw string) (string, bool) {
	switch schemaType(schema) {
	case "integer":
		var n int64
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return "expected integer, got " + raw, false
		}
	case "boolean":
		if raw != "true" && raw != "false" {
			return "expected boolean, got " + raw, false
		}
	}
	return "", true
}

func validateAgainstSchema(schema *openapi3.Schema, value interface{}, path string) []ValidationError {
	var errs []ValidationError

	switch schemaType(schema) {
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return []ValidationError{{Location: "body", Path: path, Message: "expected object"}}
		}
		for _, req := range schema.Required {
			if _, ok := obj[req]; !ok {
				errs = append(errs, ValidationError{Location: "body", Path: joinPath(path, req), Message: "required field missing"})
			}
		}
		for name, ref := range schema.Properties {
			if ref == nil || ref.Value == nil {
				continue
			}
			if v, ok := obj[name]; ok {
				errs = append(errs, validateAgainstSchema(ref.Value, v, joinPath(path, name))...)
			}
		}
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return []ValidationError{{Location: "body", Path: path, Message: "expected array"}}
		}
		if schema.Items != nil && schema.Items.Value != nil {
			for i, v := range arr {
				errs = append(errs, validateAgainstSchema(schema.Items.Value, v, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	case "integer", "number":
		if _, ok := value.(float64); !ok {
			errs = append(errs, ValidationError{Location: "body", Path: path, Message: "expected number"})
		}
	case "string":
		if _, ok := value.(string); !ok {
			errs = append(errs, ValidationError{Location: "body", Path: path, Message: "expected string"})
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			errs = append(errs, ValidationError{Location: "body", Path: path, Message: "expected boolean"})
		}
	}

	return errs
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
