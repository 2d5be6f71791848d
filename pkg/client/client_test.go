package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/api"
	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/rpc"
	"github.com/argusci/argus/pkg/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.EnvConfig{}
	require.NoError(t, cfg.Load())
	cfg.Client.Endpoint = srv.URL
	return New(cfg)
}

func TestDoUnmarshalsResultChunk(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(rpc.Chunk{Type: rpc.ChunkTypeProgress, Payload: "building..."}))
		require.NoError(t, enc.Encode(rpc.Chunk{
			Type:    rpc.ChunkTypeResult,
			Payload: api.InitResponse{SessionID: "sess-1", State: session.StateInitialized},
		}))
	})

	resp, err := c.Init(api.InitRequest{ProjectPath: "/proj"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, session.StateInitialized, resp.State)
}

func TestDoSurfacesErrorChunkAsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(rpc.Chunk{
			Type:  rpc.ChunkTypeError,
			Error: &rpc.Error{Message: "session not found"},
		}))
	})

	_, err := c.Status(api.StatusRequest{ProjectPath: "/proj"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestDoRehydratesAPIErrorCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(rpc.Chunk{
			Type:  rpc.ChunkTypeError,
			Error: &rpc.Error{Code: string(apierr.SessionNotFound), Message: "session not found"},
		}))
	})

	_, err := c.Status(api.StatusRequest{ProjectPath: "/proj"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.SessionNotFound))
}
