// Package api defines the tool-protocol request/response contract of
// spec.md §6: init, build, setup, run, run_suite, clean, status, history,
// diagnose, report_fix. Every request carries a projectPath; every
// response is plain data, never a live handle, so it serializes cleanly
// across the daemon/client boundary. Grounded on the teacher's
// pkg/api/rpc.go (request/response struct pairing per tool-protocol verb).
package api

import (
	"time"

	"github.com/argusci/argus/pkg/classifier"
	"github.com/argusci/argus/pkg/diagnostics"
	"github.com/argusci/argus/pkg/history"
	"github.com/argusci/argus/pkg/knowledge"
	"github.com/argusci/argus/pkg/session"
	"github.com/argusci/argus/pkg/task"
)

// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
// ~~~~~~ Request payloads ~~~~~~
// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~

// InitRequest initializes a session for a project.
type InitRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	ConfigPath  string `json:"configPath"`
}

// BuildRequest builds every declared service's image.
type BuildRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
}

// SetupRequest starts every declared service in dependency order and
// waits for health.
type SetupRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
}

// RunRequest executes every declared suite.
type RunRequest struct {
	ProjectPath string   `json:"projectPath" validate:"required"`
	SuiteIDs    []string `json:"suiteIds,omitempty"`
}

// RunSuiteRequest executes a single named suite.
type RunSuiteRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	SuiteID     string `json:"suiteId" validate:"required"`
}

// CleanRequest tears down every running service and mock.
type CleanRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
}

// StatusRequest reports a session's current lifecycle state. If TaskID
// is set, the response also reports that tracked task's outcome
// (spec.md §6: a client can poll a build/run_suite/clean's TaskID here
// instead of holding the original request connection open).
type StatusRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	TaskID      string `json:"taskId,omitempty"`
}

// HistoryRequest queries persisted run history.
type HistoryRequest struct {
	ProjectPath string          `json:"projectPath" validate:"required"`
	Status      *history.RunStatus `json:"status,omitempty"`
	Days        *int            `json:"days,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// DiagnoseRequest classifies a failure and looks up (or creates) its
// failure pattern.
type DiagnoseRequest struct {
	ProjectPath     string `json:"projectPath" validate:"required"`
	RunID           string `json:"runId"`
	CaseName        string `json:"caseName" validate:"required"`
	SuiteID         string `json:"suiteId"`
	Error           string `json:"error" validate:"required"`
	Status          string `json:"status"`
	ContainerStatus string `json:"containerStatus"`
	OOMKilled       bool   `json:"oomKilled"`
	Diagnostics     string `json:"diagnostics"`
}

// ReportFixRequest records the outcome of an attempted fix against a
// previously diagnosed failure pattern.
type ReportFixRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	PatternID   string `json:"patternId" validate:"required"`
	RunID       string `json:"runId"`
	CaseName    string `json:"caseName"`
	Description string `json:"description"`
	Success     bool   `json:"success"`
}

// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
// ~~~~~~ Response payloads ~~~~~~
// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~

// InitResponse reports the newly created session.
type InitResponse struct {
	SessionID string        `json:"sessionId"`
	State     session.State `json:"state"`
}

// BuildResponse reports which services were built. TaskID identifies
// the durable task record tracking this build (spec.md §6): pass it to
// Status to poll the build's outcome instead of holding this connection
// open.
type BuildResponse struct {
	Services []string      `json:"services"`
	Duration time.Duration `json:"duration"`
	TaskID   string        `json:"taskId"`
}

// SetupResponse reports which services became healthy.
type SetupResponse struct {
	Services []string      `json:"services"`
	Duration time.Duration `json:"duration"`
}

// SuiteResult is one suite's terminal outcome, serialized for the wire.
// A suite cancelled by fail-fast before it started carries
// Status="cancelled" and zero cases (spec.md §8 S6).
type SuiteResult struct {
	SuiteID string `json:"suiteId"`
	Status  string `json:"status"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
	// TaskID identifies the durable task record tracking this suite run
	// (only set on RunSuiteResponse.Result; the per-suite entries inside
	// RunResponse.Results carry none, since Run records no task).
	TaskID string `json:"taskId,omitempty"`
}

// RunResponse reports every executed suite's outcome.
type RunResponse struct {
	Results []SuiteResult `json:"results"`
}

// RunSuiteResponse reports a single suite's outcome.
type RunSuiteResponse struct {
	Result SuiteResult `json:"result"`
}

// CleanResponse reports teardown warnings (spec.md §7: clean swallows
// errors rather than aborting).
type CleanResponse struct {
	Warnings []string `json:"warnings,omitempty"`
	TaskID   string   `json:"taskId"`
}

// StatusResponse reports a session's current lifecycle state, plus the
// polled Task's outcome when the request carried a TaskID.
type StatusResponse struct {
	State      session.State     `json:"state"`
	Containers map[string]string `json:"containers,omitempty"`
	Task       *task.Task        `json:"task,omitempty"`
}

// HistoryResponse reports a page of persisted run history.
type HistoryResponse struct {
	Runs  []history.TestRunRecord `json:"runs"`
	Total int                     `json:"total"`
}

// DiagnoseResponse reports the matched or newly created failure pattern.
type DiagnoseResponse struct {
	Pattern      knowledge.FailurePattern `json:"pattern"`
	SuggestedFix string                   `json:"suggestedFix"`
	Confidence   float64                  `json:"confidence"`
	FixHistory   []knowledge.FixRecord    `json:"fixHistory,omitempty"`
	IsNewPattern bool                     `json:"isNewPattern"`
}

// ReportFixResponse reports the pattern's updated confidence.
type ReportFixResponse struct {
	Confidence float64 `json:"confidence"`
}

// toClassifierInput adapts a DiagnoseRequest to classifier.Input.
func (r DiagnoseRequest) toClassifierInput() classifier.Input {
	return classifier.Input{
		RunID:           r.RunID,
		CaseName:        r.CaseName,
		SuiteID:         r.SuiteID,
		Error:           r.Error,
		Status:          r.Status,
		ContainerStatus: r.ContainerStatus,
		OOMKilled:       r.OOMKilled,
		Diagnostics:     r.Diagnostics,
	}
}

func toDiagnoseResponse(d *diagnostics.Diagnosis) DiagnoseResponse {
	return DiagnoseResponse{
		Pattern:      d.Pattern,
		SuggestedFix: d.SuggestedFix,
		Confidence:   d.Confidence,
		FixHistory:   d.FixHistory,
		IsNewPattern: d.IsNewPattern,
	}
}
