package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/apierr"
)

// lastChunk decodes the back-to-back chunks in body and returns the last.
func lastChunk(t *testing.T, body []byte) Chunk {
	t.Helper()
	var last Chunk
	dec := json.NewDecoder(bytes.NewReader(body))
	for dec.More() {
		var c Chunk
		require.NoError(t, dec.Decode(&c))
		last = c
	}
	return last
}

func TestWriteResultEncodesChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	ow := NewOutputWriter(rec, req)
	ow.WriteResult(map[string]string{"status": "ok"})
	ow.Flush()

	var chunk Chunk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunk))
	assert.Equal(t, ChunkTypeResult, chunk.Type)
}

func TestWriteErrorEncodesChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	ow := NewOutputWriter(rec, req)
	ow.WriteError("something broke", errors.New("boom"))

	chunk := lastChunk(t, rec.Body.Bytes())
	assert.Equal(t, ChunkTypeError, chunk.Type)
	require.NotNil(t, chunk.Error)
	assert.Equal(t, "something broke: boom", chunk.Error.Message)
	assert.Empty(t, chunk.Error.Code)
}

func TestWriteErrorCarriesAPIErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	ow := NewOutputWriter(rec, req)
	ow.WriteError("run failed", apierr.New(apierr.SuiteNotFound, "no suite declared with id smoke"))

	chunk := lastChunk(t, rec.Body.Bytes())
	require.NotNil(t, chunk.Error)
	assert.Equal(t, string(apierr.SuiteNotFound), chunk.Error.Code)
}

func TestDiscardNeverPanics(t *testing.T) {
	ow := Discard()
	ow.WriteResult("x")
	ow.WriteError("y", errors.New("z"))
	ow.Flush()
}
