// Package history implements HistoryStore (spec.md §4.5): durable and
// in-memory run/case record stores behind one interface. The durable
// implementation is grounded on mattn/go-sqlite3, the embedded SQL engine
// the wider retrieval pack reaches for whenever a repo needs a
// zero-infrastructure persistent store; the migration-ladder shape follows
// the teacher's numbered, transactional migrations convention seen in
// pkg/task/storage.go's versioned bucket layout.
package history

import (
	"time"

	"github.com/argusci/argus/pkg/apierr"
)

// RunStatus is the aggregate status of a TestRunRecord.
type RunStatus string

const (
	RunPassed RunStatus = "passed"
	RunFailed RunStatus = "failed"
)

// Trigger identifies what kicked off a run.
type Trigger string

const (
	TriggerCLI       Trigger = "cli"
	TriggerMCP       Trigger = "mcp"
	TriggerDashboard Trigger = "dashboard"
	TriggerCI        Trigger = "ci"
)

// CaseStatus is the terminal status of a single test case.
type CaseStatus string

const (
	CasePassed  CaseStatus = "passed"
	CaseFailed  CaseStatus = "failed"
	CaseSkipped CaseStatus = "skipped"
)

// TestRunRecord is immutable after insert (spec.md §3).
type TestRunRecord struct {
	ID          string
	Project     string
	TimestampMS int64
	GitCommit   string
	GitBranch   string
	ConfigHash  string
	Trigger     Trigger
	DurationMS  int64
	Passed      int
	Failed      int
	Skipped     int
	Flaky       int
	Status      RunStatus
}

// TestCaseRunRecord is a child of a TestRunRecord (FK cascade-delete).
type TestCaseRunRecord struct {
	ID          string
	RunID       string
	SuiteID     string
	CaseName    string
	Status      CaseStatus
	DurationMS  int64
	Attempts    int
	ResponseMS  int64
	Assertions  int
	Error       string
	Snapshot    []byte
}

// RunFilter narrows getRuns.
type RunFilter struct {
	Status *RunStatus
	Days   *int
	Limit  int
	Offset int
}

// RunPage is the paginated result of getRuns.
type RunPage struct {
	Runs  []TestRunRecord
	Total int
}

// Store is the HistoryStore contract shared by the durable and in-memory
// implementations.
type Store interface {
	SaveRun(run TestRunRecord, cases []TestCaseRunRecord) error
	GetRuns(project string, filter RunFilter) (RunPage, error)
	GetRunByID(id string) (*TestRunRecord, []TestCaseRunRecord, error)
	GetCaseHistory(caseName, project string, limit int, suiteID string) ([]TestCaseRunRecord, error)
	GetRunsInDateRange(project string, from, to time.Time) ([]TestRunRecord, error)
	GetCasesForRun(runID string) ([]TestCaseRunRecord, error)
	GetDistinctCaseNames(project string, suiteID string, limit int) ([]string, error)
	Cleanup(project string, maxAge string, maxRuns int) (int, error)
	Close() error
}

// clampLimit enforces spec.md §4.5's 1 <= limit <= 100, defaulting to 20.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

var errHistoryDisabled = apierr.New(apierr.HistoryDisabled, "history store is disabled for this project")

// ErrHistoryDisabled reports that a session has no history store attached;
// Facade.History returns it in that case.
func ErrHistoryDisabled() error { return errHistoryDisabled }
