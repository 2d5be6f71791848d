package openapimock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRecordingStoreOnMissingFileIsEmpty(t *testing.T) {
	s, err := OpenRecordingStore(t.TempDir(), "absent")
	require.NoError(t, err)
	assert.Empty(t, s.Entries())
}

func TestAppendThenFlushThenFreshLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenRecordingStore(dir, "pets")
	require.NoError(t, err)

	rec1 := Recording{
		Request:  RecordedRequest{Method: "GET", Path: "/pets", Query: map[string]string{"limit": "1"}},
		Response: RecordedResponse{Status: 200, Body: `{"id":1}`},
		Timestamp: time.Now(),
	}
	rec2 := Recording{
		Request:  RecordedRequest{Method: "POST", Path: "/pets"},
		Response: RecordedResponse{Status: 201, Body: `{"id":2}`},
		Timestamp: time.Now(),
	}

	sig1 := Signature(rec1.Request.Method, rec1.Request.Path, toURLValues(rec1.Request.Query))
	sig2 := Signature(rec2.Request.Method, rec2.Request.Path, toURLValues(rec2.Request.Query))

	require.NoError(t, s.Append(sig1, rec1))
	require.NoError(t, s.Append(sig2, rec2))
	require.NoError(t, s.Flush())

	reloaded, err := OpenRecordingStore(dir, "pets")
	require.NoError(t, err)

	assert.Equal(t, s.Entries(), reloaded.Entries())

	got1, ok := reloaded.Get(sig1)
	require.True(t, ok)
	assert.Equal(t, rec1.Response.Body, got1.Response.Body)

	got2, ok := reloaded.Get(sig2)
	require.True(t, ok)
	assert.Equal(t, rec2.Response.Body, got2.Response.Body)
}

func TestGetReturnsFalseForUnknownSignature(t *testing.T) {
	s, err := OpenRecordingStore(t.TempDir(), "pets")
	require.NoError(t, err)
	_, ok := s.Get("GET:/nowhere")
	assert.False(t, ok)
}
