package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/diagnostics"
	"github.com/argusci/argus/pkg/docker"
	"github.com/argusci/argus/pkg/history"
	"github.com/argusci/argus/pkg/mockserver"
	"github.com/argusci/argus/pkg/openapimock"
	"github.com/argusci/argus/pkg/orchestrator"
	"github.com/argusci/argus/pkg/runner"
	"github.com/argusci/argus/pkg/session"
	"github.com/argusci/argus/pkg/suite"
	"github.com/argusci/argus/pkg/task"
)

var requestValidator = validator.New()

// validateRequest runs struct-tag validation over any request payload,
// wrapping the first failure as a stable CONFIG_ERROR.
func validateRequest(req interface{}) error {
	if err := requestValidator.Struct(req); err != nil {
		return apierr.Wrap(apierr.ConfigError, "invalid request", err)
	}
	return nil
}

// Facade implements every tool-protocol operation in spec.md §6 by
// wiring SessionManager, DockerEngine, MultiServiceOrchestrator,
// ParallelSuiteExecutor, RunnerRegistry, and the knowledge/diagnostics
// layer together. It holds no protocol-framing logic of its own -- that
// belongs to pkg/daemon and pkg/cmd.
type Facade struct {
	Sessions *session.Manager
	Engine   *docker.Engine
	Runners  *runner.Registry

	// Tasks durably records every build/run_suite/clean invocation so a
	// client can poll its outcome via Status(TaskID: ...) instead of
	// holding the request connection open (spec.md §6).
	Tasks *task.Manager

	activeMocks map[string][]*mockserver.Server
	activeAPIs  map[string][]*openapimock.Mock
}

// NewFacade wires a Facade over the given session manager, docker engine,
// runner registry, and task tracker.
func NewFacade(sessions *session.Manager, engine *docker.Engine, runners *runner.Registry, tasks *task.Manager) *Facade {
	return &Facade{
		Sessions:    sessions,
		Engine:      engine,
		Runners:     runners,
		Tasks:       tasks,
		activeMocks: make(map[string][]*mockserver.Server),
		activeAPIs:  make(map[string][]*openapimock.Mock),
	}
}

// recordTask durably tracks one long-running operation: it persists tsk
// as Processing before work runs and Complete (with work's outcome)
// after, bypassing the shared priority queue since work executes
// synchronously in the caller's own goroutine. Returns tsk.ID alongside
// whatever error work (or the tracking itself) produced; if the task
// cannot be recorded at all, work is not run and the ID is empty.
func (f *Facade) recordTask(kind task.Kind, projectPath string, work func() (string, error)) (string, error) {
	tsk := task.New(kind, projectPath, 0)
	if err := f.Tasks.StartSync(tsk); err != nil {
		return "", err
	}

	result, workErr := work()

	errMsg := ""
	if workErr != nil {
		errMsg = workErr.Error()
	}
	if err := f.Tasks.Complete(tsk, workErr == nil, result, errMsg); err != nil {
		return tsk.ID, err
	}
	return tsk.ID, workErr
}

// Init creates a new session for req.ProjectPath at state "initialized".
func (f *Facade) Init(req InitRequest, cfg *config.E2EConfig, sessionID string) (*InitResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.Create(req.ProjectPath, cfg, req.ConfigPath, sessionID)
	if err != nil {
		return nil, err
	}
	return &InitResponse{SessionID: s.SessionID, State: s.State}, nil
}

// Build builds every declared service's image and transitions the
// session to "built".
func (f *Facade) Build(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	services := s.Config.AllServices()
	orch := &orchestrator.Orchestrator{Engine: f.Engine}

	start := time.Now()
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}

	taskID, err := f.recordTask(task.KindBuild, req.ProjectPath, func() (string, error) {
		if err := orch.BuildAll(ctx, services); err != nil {
			return "", err
		}
		return strings.Join(names, ","), nil
	})
	if err != nil {
		return nil, err
	}

	if err := f.Sessions.Transition(req.ProjectPath, session.StateBuilt); err != nil {
		return nil, err
	}

	return &BuildResponse{Services: names, Duration: time.Since(start), TaskID: taskID}, nil
}

// Setup starts every declared service in dependency order, waits for
// health, boots declared mocks, and transitions the session to
// "running".
func (f *Facade) Setup(ctx context.Context, req SetupRequest) (*SetupResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	services := s.Config.AllServices()
	orch := &orchestrator.Orchestrator{Engine: f.Engine}

	start := time.Now()
	if err := orch.StartAll(ctx, services, s.NetworkName); err != nil {
		return nil, err
	}

	if err := f.startMocks(req.ProjectPath, s); err != nil {
		return nil, err
	}

	if err := f.Sessions.Transition(req.ProjectPath, session.StateRunning); err != nil {
		return nil, err
	}

	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}
	return &SetupResponse{Services: names, Duration: time.Since(start)}, nil
}

func (f *Facade) startMocks(projectPath string, s *session.Session) error {
	for name, mockCfg := range s.Config.Mocks {
		if mockCfg.OpenAPI != nil {
			m, err := openapimock.New(name, *mockCfg.OpenAPI, mockCfg.Port, recordingsDir(projectPath))
			if err != nil {
				return err
			}
			if err := m.Start(); err != nil {
				return apierr.Wrap(apierr.ConfigError, "starting openapi mock "+name, err)
			}
			f.activeAPIs[projectPath] = append(f.activeAPIs[projectPath], m)
			continue
		}

		ms, err := mockserver.New(name, mockCfg)
		if err != nil {
			return err
		}
		if err := ms.Start(); err != nil {
			return apierr.Wrap(apierr.ConfigError, "starting mock "+name, err)
		}
		f.activeMocks[projectPath] = append(f.activeMocks[projectPath], ms)
	}
	return nil
}

func recordingsDir(projectPath string) string {
	return projectPath + "/.argus/recordings"
}

// Run executes req.SuiteIDs (or every declared suite if empty).
func (f *Facade) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	suites := s.Config.Tests.Suites
	if len(req.SuiteIDs) > 0 {
		wanted := make(map[string]bool, len(req.SuiteIDs))
		for _, id := range req.SuiteIDs {
			wanted[id] = true
		}
		var filtered []config.Suite
		for _, sv := range suites {
			if wanted[sv.ID] {
				filtered = append(filtered, sv)
			}
		}
		suites = filtered
	}

	jobs, err := f.jobsFor(suites)
	if err != nil {
		return nil, err
	}

	mode, workers, failFast := resilienceSettings(s.Config)
	exec := &suite.Executor{Mode: mode, Workers: workers, FailFast: failFast}
	outcomes := exec.Run(ctx, jobs, nil)

	return &RunResponse{Results: toSuiteResults(outcomes)}, nil
}

// RunSuite executes a single named suite.
func (f *Facade) RunSuite(ctx context.Context, req RunSuiteRequest) (*RunSuiteResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	var target *config.Suite
	for i := range s.Config.Tests.Suites {
		if s.Config.Tests.Suites[i].ID == req.SuiteID {
			target = &s.Config.Tests.Suites[i]
			break
		}
	}
	if target == nil {
		return nil, apierr.New(apierr.SuiteNotFound, "no suite declared with id "+req.SuiteID)
	}

	jobs, err := f.jobsFor([]config.Suite{*target})
	if err != nil {
		return nil, err
	}

	// A failing suite is reported inside SuiteResult, not as a facade
	// error (same convention as Run); the tracked task itself only
	// fails if the suite could not be executed at all.
	var result SuiteResult
	taskID, err := f.recordTask(task.KindRunSuite, req.ProjectPath, func() (string, error) {
		exec := &suite.Executor{Mode: suite.ModeSerial}
		outcomes := exec.Run(ctx, jobs, nil)
		result = toSuiteResults(outcomes)[0]
		return result.Status, nil
	})
	if err != nil {
		return nil, err
	}

	result.TaskID = taskID
	return &RunSuiteResponse{Result: result}, nil
}

func (f *Facade) jobsFor(suites []config.Suite) ([]suite.Job, error) {
	jobs := make([]suite.Job, 0, len(suites))
	for _, sv := range suites {
		r, ok := f.Runners.Get(sv.Runner)
		if !ok {
			return nil, apierr.New(apierr.ConfigError, "no available runner for suite "+sv.ID+": "+sv.Runner)
		}
		jobs = append(jobs, suite.Job{
			SuiteID: sv.ID,
			Runner:  r,
			Config:  runner.Config{SuiteID: sv.ID, FilePath: sv.File},
		})
	}
	return jobs, nil
}

func resilienceSettings(cfg *config.E2EConfig) (suite.Mode, int, bool) {
	if cfg.Resilience == nil {
		return suite.ModeSerial, 1, false
	}
	mode := suite.Mode(cfg.Resilience.Mode)
	if mode == "" {
		mode = suite.ModeSerial
	}
	return mode, cfg.Resilience.Workers, cfg.Resilience.FailFast
}

func toSuiteResults(outcomes []suite.SuiteOutcome) []SuiteResult {
	results := make([]SuiteResult, len(outcomes))
	for i, o := range outcomes {
		r := SuiteResult{SuiteID: o.SuiteID, Status: string(o.Status)}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		for _, ev := range o.Events {
			switch ev.Kind {
			case runner.EventCasePass:
				r.Passed++
			case runner.EventCaseFail:
				r.Failed++
			case runner.EventCaseSkip:
				r.Skipped++
			}
		}
		results[i] = r
	}
	return results
}

// Clean stops every running service and mock, swallowing individual
// errors as warnings, and transitions the session to "stopped".
func (f *Facade) Clean(ctx context.Context, req CleanRequest) (*CleanResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	orch := &orchestrator.Orchestrator{Engine: f.Engine}

	var warnings []error
	taskID, _ := f.recordTask(task.KindClean, req.ProjectPath, func() (string, error) {
		warnings = orch.CleanAll(ctx, s.Config.AllServices())

		for _, ms := range f.activeMocks[req.ProjectPath] {
			if err := ms.Stop(ctx); err != nil {
				warnings = append(warnings, err)
			}
		}
		delete(f.activeMocks, req.ProjectPath)

		for _, m := range f.activeAPIs[req.ProjectPath] {
			if err := m.Stop(ctx); err != nil {
				warnings = append(warnings, err)
			}
		}
		delete(f.activeAPIs, req.ProjectPath)

		// Clean swallows individual teardown errors as warnings rather
		// than aborting (spec.md §7), so the tracked task itself always
		// succeeds; the warning count travels in its result summary.
		return fmt.Sprintf("%d warnings", len(warnings)), nil
	})

	if err := f.Sessions.Transition(req.ProjectPath, session.StateStopped); err != nil {
		return nil, err
	}

	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.Error()
	}
	return &CleanResponse{Warnings: msgs, TaskID: taskID}, nil
}

// Status reports a session's current lifecycle state. If req.TaskID is
// set, it also reports that task's outcome (spec.md §6 polling path for
// build/run_suite/clean).
func (f *Facade) Status(req StatusRequest) (*StatusResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{State: s.State, Containers: s.Containers}
	if req.TaskID != "" {
		tsk, err := f.Tasks.Get(req.TaskID)
		if err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "task not found: "+req.TaskID, err)
		}
		resp.Task = tsk
	}
	return resp, nil
}

// History queries a session's persisted run history. Returns
// HISTORY_DISABLED if the session has no history store attached.
func (f *Facade) History(req HistoryRequest) (*HistoryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	if s.History == nil {
		return nil, history.ErrHistoryDisabled()
	}

	page, err := s.History.GetRuns(s.Config.Project.Name, history.RunFilter{
		Status: req.Status,
		Days:   req.Days,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &HistoryResponse{Runs: page.Runs, Total: page.Total}, nil
}

// Diagnose classifies a failure and looks up (or creates) its failure
// pattern via the session's knowledge store.
func (f *Facade) Diagnose(req DiagnoseRequest) (*DiagnoseResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	if s.Knowledge == nil {
		return nil, apierr.New(apierr.HistoryDisabled, "session has no knowledge store attached")
	}

	engine := diagnostics.New(s.Knowledge)
	d, err := engine.Diagnose(req.toClassifierInput())
	if err != nil {
		return nil, err
	}
	resp := toDiagnoseResponse(d)
	return &resp, nil
}

// ReportFix records the outcome of an attempted fix.
func (f *Facade) ReportFix(req ReportFixRequest) (*ReportFixResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	s, err := f.Sessions.GetOrThrow(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	if s.Knowledge == nil {
		return nil, apierr.New(apierr.HistoryDisabled, "session has no knowledge store attached")
	}

	engine := diagnostics.New(s.Knowledge)
	if err := engine.ReportFix(req.PatternID, req.RunID, req.CaseName, req.Description, req.Success); err != nil {
		return nil, err
	}

	pattern, err := s.Knowledge.Get(req.PatternID)
	if err != nil {
		return nil, err
	}
	return &ReportFixResponse{Confidence: pattern.Confidence}, nil
}
