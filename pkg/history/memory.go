package history

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/argusci/argus/pkg/apierr"
)

// MemoryStore is the in-memory HistoryStore variant (spec.md §4.5), used
// for ephemeral sessions and tests where a durable file would be wasted
// setup cost.
type MemoryStore struct {
	mu    sync.Mutex
	runs  map[string]TestRunRecord
	cases map[string][]TestCaseRunRecord // keyed by run id, insertion order preserved
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]TestRunRecord),
		cases: make(map[string][]TestCaseRunRecord),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) SaveRun(run TestRunRecord, cases []TestCaseRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = xid.New().String()
	}
	casesCopy := append([]TestCaseRunRecord(nil), cases...)
	for i := range casesCopy {
		if casesCopy[i].ID == "" {
			casesCopy[i].ID = xid.New().String()
		}
		casesCopy[i].RunID = run.ID
	}

	m.runs[run.ID] = run
	m.cases[run.ID] = casesCopy
	return nil
}

func (m *MemoryStore) GetRuns(project string, filter RunFilter) (RunPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []TestRunRecord
	cutoff := int64(0)
	if filter.Days != nil {
		cutoff = time.Now().Add(-time.Duration(*filter.Days) * 24 * time.Hour).UnixMilli()
	}

	for _, r := range m.runs {
		if r.Project != project {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Days != nil && r.TimestampMS < cutoff {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].TimestampMS > matched[j].TimestampMS })

	total := len(matched)
	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return RunPage{Runs: matched[offset:end], Total: total}, nil
}

func (m *MemoryStore) GetRunByID(id string) (*TestRunRecord, []TestCaseRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, nil, apierr.New(apierr.ServiceNotFound, "run not found: "+id)
	}
	return &run, append([]TestCaseRunRecord(nil), m.cases[id]...), nil
}

func (m *MemoryStore) GetCaseHistory(caseName, project string, limit int, suiteID string) ([]TestCaseRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type withTimestamp struct {
		TestCaseRunRecord
		ts int64
	}
	var matched []withTimestamp

	for _, run := range m.runs {
		if run.Project != project {
			continue
		}
		for _, c := range m.cases[run.ID] {
			if c.CaseName != caseName {
				continue
			}
			if suiteID != "" && c.SuiteID != suiteID {
				continue
			}
			matched = append(matched, withTimestamp{TestCaseRunRecord: c, ts: run.TimestampMS})
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ts > matched[j].ts })

	limit = clampLimit(limit)
	if limit > len(matched) {
		limit = len(matched)
	}

	out := make([]TestCaseRunRecord, 0, limit)
	for _, w := range matched[:limit] {
		out = append(out, w.TestCaseRunRecord)
	}
	return out, nil
}

func (m *MemoryStore) GetRunsInDateRange(project string, from, to time.Time) ([]TestRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromMS, toMS := from.UnixMilli(), to.UnixMilli()
	var out []TestRunRecord
	for _, r := range m.runs {
		if r.Project == project && r.TimestampMS >= fromMS && r.TimestampMS <= toMS {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMS < out[j].TimestampMS })
	return out, nil
}

func (m *MemoryStore) GetCasesForRun(runID string) ([]TestCaseRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TestCaseRunRecord(nil), m.cases[runID]...), nil
}

func (m *MemoryStore) GetDistinctCaseNames(project string, suiteID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var names []string
	for _, run := range m.runs {
		if run.Project != project {
			continue
		}
		for _, c := range m.cases[run.ID] {
			if suiteID != "" && c.SuiteID != suiteID {
				continue
			}
			if !seen[c.CaseName] {
				seen[c.CaseName] = true
				names = append(names, c.CaseName)
			}
		}
	}
	sort.Strings(names)
	if limit > 0 && limit < len(names) {
		names = names[:limit]
	}
	return names, nil
}

// maxAgeDays parses the "<n>d" form from spec.md §4.5 against the
// same grammar as its ^(\d+)d$ regex, returning (days, true) on
// success. strconv.Atoi alone is too permissive here: it accepts a
// leading sign, so "-5d" or "+5d" would otherwise parse as valid ages.
func maxAgeDays(maxAge string) (int, bool) {
	digits := strings.TrimSuffix(maxAge, "d")
	if digits == maxAge || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m *MemoryStore) Cleanup(project string, maxAge string, maxRuns int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []TestRunRecord
	for _, r := range m.runs {
		if r.Project == project {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].TimestampMS > candidates[j].TimestampMS })

	toDelete := make(map[string]bool)

	if days, ok := maxAgeDays(maxAge); ok {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
		for _, r := range candidates {
			if r.TimestampMS < cutoff {
				toDelete[r.ID] = true
			}
		}
	}

	if maxRuns > 0 && len(candidates) > maxRuns {
		for _, r := range candidates[maxRuns:] {
			toDelete[r.ID] = true
		}
	}

	for id := range toDelete {
		delete(m.runs, id)
		delete(m.cases, id)
	}

	return len(toDelete), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make(map[string]TestRunRecord)
	m.cases = make(map[string][]TestCaseRunRecord)
	return nil
}
