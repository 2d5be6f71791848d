package runner

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestShellScriptRunnerPassesOnExitZero(t *testing.T) {
	r := &ShellScriptRunner{}
	path := filepath.Join(t.TempDir(), "ok.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\nexit 0\n"), 0o755))

	ch, err := r.Run(Config{SuiteID: "s", FilePath: path})
	require.NoError(t, err)

	events := drain(t, ch)
	assert.Equal(t, EventSuiteStart, events[0].Kind)
	assert.Equal(t, EventSuiteEnd, events[len(events)-1].Kind)
	assertHasKind(t, events, EventCasePass)
}

func TestShellScriptRunnerFailsOnNonzeroExit(t *testing.T) {
	r := &ShellScriptRunner{}
	path := filepath.Join(t.TempDir(), "bad.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	ch, err := r.Run(Config{SuiteID: "s", FilePath: path})
	require.NoError(t, err)

	events := drain(t, ch)
	assertHasKind(t, events, EventCaseFail)
}

func assertHasKind(t *testing.T, events []Event, kind EventKind) {
	t.Helper()
	for _, e := range events {
		if e.Kind == kind {
			return
		}
	}
	t.Fatalf("expected an event of kind %s, got %+v", kind, events)
}

func TestYAMLHTTPRunnerAssertsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	suite := `
cases:
  - name: health check
    method: GET
    path: /health
    expect:
      status: 200
      body_contains: "ok"
`
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suite), 0o644))

	r := &YAMLHTTPRunner{Client: srv.Client()}
	ch, err := r.Run(Config{SuiteID: "s", FilePath: path, BaseURL: srv.URL})
	require.NoError(t, err)

	events := drain(t, ch)
	assertHasKind(t, events, EventCasePass)
}

func TestYAMLHTTPRunnerFailsOnStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	suite := `
cases:
  - name: expects 200
    path: /health
    expect:
      status: 200
`
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suite), 0o644))

	r := &YAMLHTTPRunner{Client: srv.Client()}
	ch, err := r.Run(Config{SuiteID: "s", FilePath: path, BaseURL: srv.URL})
	require.NoError(t, err)

	events := drain(t, ch)
	assertHasKind(t, events, EventCaseFail)
}

func TestYAMLHTTPRunnerSkipsMarkedCases(t *testing.T) {
	suite := `
cases:
  - name: skip me
    path: /never
    skip: "not ready"
`
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suite), 0o644))

	r := &YAMLHTTPRunner{}
	ch, err := r.Run(Config{SuiteID: "s", FilePath: path, BaseURL: "http://unused"})
	require.NoError(t, err)

	events := drain(t, ch)
	assertHasKind(t, events, EventCaseSkip)
}

func TestSubprocessJSONRunnerParsesReports(t *testing.T) {
	r := &SubprocessJSONRunner{}
	script := `echo '{"case":"a","status":"pass","duration_ms":5}'; echo '{"case":"b","status":"fail","error":"boom"}'`

	ch, err := r.Run(Config{SuiteID: "s", FilePath: script})
	require.NoError(t, err)

	events := drain(t, ch)
	assertHasKind(t, events, EventCasePass)
	assertHasKind(t, events, EventCaseFail)
}

func TestRegistryGetRespectsAvailability(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&ShellScriptRunner{})

	_, ok := reg.Get("shell-exec")
	assert.True(t, ok)

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}
