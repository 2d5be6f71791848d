package flaky

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/argusci/argus/pkg/history"
)

func statuses(ss ...history.CaseStatus) []history.TestCaseRunRecord {
	out := make([]history.TestCaseRunRecord, len(ss))
	for i, s := range ss {
		out[i] = history.TestCaseRunRecord{Status: s}
	}
	return out
}

func TestIsFlakyDetectsTransitions(t *testing.T) {
	d := New()
	records := statuses(history.CasePassed, history.CaseFailed, history.CasePassed)
	assert.True(t, d.IsFlaky(records))
}

func TestIsFlakyStableSequenceIsNotFlaky(t *testing.T) {
	d := New()
	records := statuses(history.CasePassed, history.CasePassed, history.CasePassed)
	assert.False(t, d.IsFlaky(records))
}

func TestIsFlakyExcludesSkipped(t *testing.T) {
	d := New()
	records := statuses(history.CasePassed, history.CaseSkipped, history.CasePassed)
	assert.False(t, d.IsFlaky(records))
}

func TestIsFlakyRespectsWindow(t *testing.T) {
	d := &Detector{Window: 2, MinTransitions: 1}
	records := statuses(history.CasePassed, history.CasePassed, history.CaseFailed, history.CasePassed)
	assert.False(t, d.IsFlaky(records))
}

func TestIsFlakySingleTransitionBelowThreshold(t *testing.T) {
	d := New()
	records := statuses(history.CasePassed, history.CaseFailed)
	assert.False(t, d.IsFlaky(records))
}
