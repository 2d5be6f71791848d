package suite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runnerpkg "github.com/argusci/argus/pkg/runner"
)

type fakeRunner struct {
	id      string
	delay   time.Duration
	fail    bool
	started *int32
}

func (r *fakeRunner) ID() string      { return r.id }
func (r *fakeRunner) Available() bool { return true }

func (r *fakeRunner) Run(cfg runnerpkg.Config) (<-chan runnerpkg.Event, error) {
	out := make(chan runnerpkg.Event, 4)
	go func() {
		defer close(out)
		out <- runnerpkg.Event{Kind: runnerpkg.EventSuiteStart, SuiteID: cfg.SuiteID}
		if r.delay > 0 {
			time.Sleep(r.delay)
		}
		if r.fail {
			out <- runnerpkg.Event{Kind: runnerpkg.EventCaseFail, SuiteID: cfg.SuiteID, CaseName: "x"}
			out <- runnerpkg.Event{Kind: runnerpkg.EventSuiteEnd, SuiteID: cfg.SuiteID, Failed: 1}
			return
		}
		out <- runnerpkg.Event{Kind: runnerpkg.EventCasePass, SuiteID: cfg.SuiteID, CaseName: "x"}
		out <- runnerpkg.Event{Kind: runnerpkg.EventSuiteEnd, SuiteID: cfg.SuiteID, Passed: 1}
	}()
	return out, nil
}

func TestExecutorSerialRunsInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	e := &Executor{Mode: ModeSerial}
	jobs := []Job{
		{SuiteID: "a", Runner: &fakeRunner{id: "a"}, Config: runnerpkg.Config{SuiteID: "a"}},
		{SuiteID: "b", Runner: &fakeRunner{id: "b"}, Config: runnerpkg.Config{SuiteID: "b"}},
	}

	outcomes := e.Run(context.Background(), jobs, func(ev runnerpkg.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind == runnerpkg.EventSuiteStart {
			order = append(order, ev.SuiteID)
		}
	})

	assert.Equal(t, []string{"a", "b"}, order)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Failed)
	assert.False(t, outcomes[1].Failed)
}

func TestExecutorBySuiteRunsConcurrently(t *testing.T) {
	e := &Executor{Mode: ModeBySuite, Workers: 2}
	jobs := []Job{
		{SuiteID: "a", Runner: &fakeRunner{id: "a", delay: 10 * time.Millisecond}, Config: runnerpkg.Config{SuiteID: "a"}},
		{SuiteID: "b", Runner: &fakeRunner{id: "b", delay: 10 * time.Millisecond}, Config: runnerpkg.Config{SuiteID: "b"}},
	}

	start := time.Now()
	outcomes := e.Run(context.Background(), jobs, nil)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 2)
	assert.Less(t, elapsed, 20*time.Millisecond)
}

func TestExecutorFailFastCancelsPending(t *testing.T) {
	e := &Executor{Mode: ModeSerial, FailFast: true}
	jobs := []Job{
		{SuiteID: "a", Runner: &fakeRunner{id: "a", fail: true}, Config: runnerpkg.Config{SuiteID: "a"}},
		{SuiteID: "b", Runner: &fakeRunner{id: "b"}, Config: runnerpkg.Config{SuiteID: "b"}},
	}

	outcomes := e.Run(context.Background(), jobs, nil)
	assert.True(t, outcomes[0].Failed)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, "b", outcomes[1].SuiteID)
	assert.Equal(t, StatusCancelled, outcomes[1].Status)
	assert.Empty(t, outcomes[1].Events)
}

func TestExecutorFailFastCancelsConcurrentPending(t *testing.T) {
	e := &Executor{Mode: ModeBySuite, Workers: 2, FailFast: true}
	jobs := []Job{
		{SuiteID: "a", Runner: &fakeRunner{id: "a", fail: true}, Config: runnerpkg.Config{SuiteID: "a"}},
		{SuiteID: "b", Runner: &fakeRunner{id: "b", delay: 30 * time.Millisecond}, Config: runnerpkg.Config{SuiteID: "b"}},
		{SuiteID: "c", Runner: &fakeRunner{id: "c", delay: 30 * time.Millisecond}, Config: runnerpkg.Config{SuiteID: "c"}},
		{SuiteID: "d", Runner: &fakeRunner{id: "d", delay: 30 * time.Millisecond}, Config: runnerpkg.Config{SuiteID: "d"}},
	}

	outcomes := e.Run(context.Background(), jobs, nil)
	require.Len(t, outcomes, 4)

	var cancelled int
	for _, o := range outcomes {
		if o.Status == StatusCancelled {
			cancelled++
			assert.NotEmpty(t, o.SuiteID)
			assert.Empty(t, o.Events)
		}
	}
	assert.GreaterOrEqual(t, cancelled, 1, "at least one pending suite should be cancelled once worker pool 2 drains behind the failing job")
}
