package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/history"
	"github.com/argusci/argus/pkg/knowledge"
	runnerpkg "github.com/argusci/argus/pkg/runner"
	"github.com/argusci/argus/pkg/session"
	"github.com/argusci/argus/pkg/task"
)

type fakeRunner struct{ fail bool }

func (r *fakeRunner) ID() string      { return "fake" }
func (r *fakeRunner) Available() bool { return true }

func (r *fakeRunner) Run(cfg runnerpkg.Config) (<-chan runnerpkg.Event, error) {
	out := make(chan runnerpkg.Event, 4)
	go func() {
		defer close(out)
		out <- runnerpkg.Event{Kind: runnerpkg.EventSuiteStart, SuiteID: cfg.SuiteID}
		if r.fail {
			out <- runnerpkg.Event{Kind: runnerpkg.EventCaseFail, SuiteID: cfg.SuiteID, CaseName: "x"}
		} else {
			out <- runnerpkg.Event{Kind: runnerpkg.EventCasePass, SuiteID: cfg.SuiteID, CaseName: "x"}
		}
		out <- runnerpkg.Event{Kind: runnerpkg.EventSuiteEnd, SuiteID: cfg.SuiteID}
	}()
	return out, nil
}

func newTestFacade(t *testing.T) (*Facade, string) {
	t.Helper()
	registry := runnerpkg.NewRegistry()
	registry.Register(&fakeRunner{})

	taskStorage, err := task.NewMemoryTaskStorage()
	require.NoError(t, err)

	f := NewFacade(session.NewManager(nil), nil, registry, task.NewManager(taskStorage))
	return f, "/proj"
}

func TestInitCreatesSessionAtInitializedState(t *testing.T) {
	f, path := newTestFacade(t)
	resp, err := f.Init(InitRequest{ProjectPath: path}, &config.E2EConfig{}, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateInitialized, resp.State)
}

func TestInitRejectsMissingProjectPath(t *testing.T) {
	f, _ := newTestFacade(t)
	_, err := f.Init(InitRequest{}, &config.E2EConfig{}, "sess-1")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ConfigError))
}

func TestRunSuiteReportsPassAndFail(t *testing.T) {
	f, path := newTestFacade(t)
	cfg := &config.E2EConfig{
		Tests: config.Tests{Suites: []config.Suite{
			{ID: "s1", File: "s1.yaml", Runner: "fake"},
		}},
	}
	_, err := f.Init(InitRequest{ProjectPath: path}, cfg, "sess-1")
	require.NoError(t, err)

	resp, err := f.RunSuite(context.Background(), RunSuiteRequest{ProjectPath: path, SuiteID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Result.Passed)
	assert.Equal(t, 0, resp.Result.Failed)
	require.NotEmpty(t, resp.Result.TaskID)

	status, err := f.Status(StatusRequest{ProjectPath: path, TaskID: resp.Result.TaskID})
	require.NoError(t, err)
	require.NotNil(t, status.Task)
	assert.True(t, status.Task.Success)
}

func TestRunSuiteUnknownIDReturnsSuiteNotFound(t *testing.T) {
	f, path := newTestFacade(t)
	_, err := f.Init(InitRequest{ProjectPath: path}, &config.E2EConfig{}, "sess-1")
	require.NoError(t, err)

	_, err = f.RunSuite(context.Background(), RunSuiteRequest{ProjectPath: path, SuiteID: "ghost"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.SuiteNotFound))
}

func TestStatusReflectsSessionState(t *testing.T) {
	f, path := newTestFacade(t)
	_, err := f.Init(InitRequest{ProjectPath: path}, &config.E2EConfig{}, "sess-1")
	require.NoError(t, err)

	resp, err := f.Status(StatusRequest{ProjectPath: path})
	require.NoError(t, err)
	assert.Equal(t, session.StateInitialized, resp.State)
}

func TestHistoryWithoutStoreReturnsHistoryDisabled(t *testing.T) {
	f, path := newTestFacade(t)
	_, err := f.Init(InitRequest{ProjectPath: path}, &config.E2EConfig{}, "sess-1")
	require.NoError(t, err)

	_, err = f.History(HistoryRequest{ProjectPath: path})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.HistoryDisabled))
}

func TestDiagnoseThenReportFixUpdatesConfidence(t *testing.T) {
	f, path := newTestFacade(t)
	_, err := f.Init(InitRequest{ProjectPath: path}, &config.E2EConfig{}, "sess-1")
	require.NoError(t, err)

	s, err := f.Sessions.GetOrThrow(path)
	require.NoError(t, err)
	store, err := knowledge.OpenInMemory()
	require.NoError(t, err)
	s.Knowledge = store

	diag, err := f.Diagnose(DiagnoseRequest{
		ProjectPath: path,
		CaseName:    "connects to db",
		Error:       "ECONNREFUSED 127.0.0.1:5432",
	})
	require.NoError(t, err)
	require.NotEmpty(t, diag.Pattern.ID)

	fix, err := f.ReportFix(ReportFixRequest{
		ProjectPath: path,
		PatternID:   diag.Pattern.ID,
		Success:     true,
	})
	require.NoError(t, err)
	assert.Greater(t, fix.Confidence, diag.Confidence)
}

func TestHistoryReturnsRunsWhenStoreAttached(t *testing.T) {
	f, path := newTestFacade(t)
	cfg := &config.E2EConfig{Project: config.Project{Name: "proj"}}
	_, err := f.Init(InitRequest{ProjectPath: path}, cfg, "sess-1")
	require.NoError(t, err)

	s, err := f.Sessions.GetOrThrow(path)
	require.NoError(t, err)
	mem := history.NewMemoryStore()
	s.History = mem

	require.NoError(t, mem.SaveRun(history.TestRunRecord{ID: "r1", Project: "proj", Passed: 1}, nil))

	resp, err := f.History(HistoryRequest{ProjectPath: path, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
}
