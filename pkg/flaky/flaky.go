// Package flaky implements FlakyDetector (spec.md §4.7): historical
// pass/fail pattern analysis over a case's recent runs.
package flaky

import "github.com/argusci/argus/pkg/history"

const (
	// DefaultWindow is the number of most-recent records considered.
	DefaultWindow = 10
	// DefaultMinTransitions is the minimum pass<->fail flips required to
	// call a case flaky.
	DefaultMinTransitions = 2
)

// Detector classifies a case's recent history as flaky or stable.
type Detector struct {
	Window         int
	MinTransitions int
}

// New constructs a Detector with spec.md's default thresholds.
func New() *Detector {
	return &Detector{Window: DefaultWindow, MinTransitions: DefaultMinTransitions}
}

// IsFlaky reports whether records (ordered most-recent-first, as
// HistoryStore.GetCaseHistory returns them) exhibits at least
// MinTransitions pass<->fail flips within the last Window non-skipped
// entries.
func (d *Detector) IsFlaky(records []history.TestCaseRunRecord) bool {
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}
	minTransitions := d.MinTransitions
	if minTransitions <= 0 {
		minTransitions = DefaultMinTransitions
	}

	var statuses []history.CaseStatus
	for _, r := range records {
		if r.Status == history.CaseSkipped {
			continue
		}
		statuses = append(statuses, r.Status)
		if len(statuses) == window {
			break
		}
	}

	transitions := 0
	for i := 1; i < len(statuses); i++ {
		if statuses[i] != statuses[i-1] {
			transitions++
		}
	}

	return transitions >= minTransitions
}
