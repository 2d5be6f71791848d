package openapimock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/config"
)

const petSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "pets", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "responses": {
          "200": {
            "description": "ok",
            "content": {
              "application/json": {
                "schema": {
                  "type": "object",
                  "properties": {"id": {"type": "integer"}, "name": {"type": "string"}}
                }
              }
            }
          },
          "404": {
            "description": "not found",
            "content": {
              "application/json": {
                "schema": {"type": "object", "properties": {"error": {"type": "string"}}}
              }
            }
          }
        }
      }
    },
    "/pets/{id}": {
      "get": {
        "operationId": "getPet",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "integer"}}
        ],
        "responses": {
          "200": {
            "description": "ok",
            "content": {
              "application/json": {
                "schema": {"type": "object", "properties": {"id": {"type": "integer"}}}
              }
            }
          }
        }
      }
    }
  }
}`

func writeSpec(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pets.json")
	require.NoError(t, os.WriteFile(path, []byte(petSpec), 0o644))
	return path
}

func TestSignatureSortsQueryKeys(t *testing.T) {
	q := url.Values{"b": {"2"}, "a": {"1"}}
	assert.Equal(t, "GET:/pets?a=1&b=2", Signature("GET", "/pets", q))
}

func TestSignatureWithNoQuery(t *testing.T) {
	assert.Equal(t, "GET:/pets", Signature("GET", "/pets", nil))
}

func TestMockModeSynthesizesDefaultStatus(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "mock"}, 0, t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/pets", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["id"])
	assert.Equal(t, "string", body["name"])
}

func TestMockStatusHeaderOverridesWhenDeclared(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "mock"}, 0, t.TempDir())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/pets", nil)
	req.Header.Set(MockStatusHeader, "404")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMockStatusHeaderIgnoredWhenNotDeclared(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "mock"}, 0, t.TempDir())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/pets", nil)
	req.Header.Set(MockStatusHeader, "999")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReplayModeReturns404WhenNoRecording(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "replay"}, 0, t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/pets", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSmartModeFallsBackToSynthesisWithoutRecording(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "smart"}, 0, t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/pets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSmartModeReplaysWhenRecordingExists(t *testing.T) {
	specPath := writeSpec(t)
	recordingsDir := t.TempDir()
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "smart"}, 0, recordingsDir)
	require.NoError(t, err)

	require.NoError(t, m.store.Append("GET:/pets", Recording{
		Request:  RecordedRequest{Method: "GET", Path: "/pets"},
		Response: RecordedResponse{Status: 201, Body: `{"id":7,"name":"rex"}`},
	}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/pets", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":7,"name":"rex"}`, rec.Body.String())
}

func TestValidateRejectsNonIntegerPathParam(t *testing.T) {
	specPath := writeSpec(t)
	m, err := New("pets", config.OpenAPIMockConfig{SpecFile: specPath, Mode: "mock", ValidateRequest: true}, 0, t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	// id present but non-integer, should trip schema validation.
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/pets/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []ValidationError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errs))
	require.NotEmpty(t, errs)
	assert.Equal(t, "path", errs[0].Location)
}

func TestSynthesizeHonorsExplicitExample(t *testing.T) {
	schema := &openapi3.Schema{Type: "string", Example: "fixed-value"}
	assert.Equal(t, "fixed-value", Synthesize(schema, DefaultMaxDepth))
}

func TestSynthesizeFillsArrayWithOneElement(t *testing.T) {
	schema := &openapi3.Schema{
		Type:  "array",
		Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: "integer"}},
	}
	assert.Equal(t, []interface{}{0}, Synthesize(schema, DefaultMaxDepth))
}
