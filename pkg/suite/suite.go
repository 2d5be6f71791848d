// Package suite implements ParallelSuiteExecutor (spec.md §4.12): serial,
// by-suite, and by-file scheduling of runner.Runner invocations, with
// fail-fast cancellation. Grounded on golang.org/x/sync/semaphore,
// following the bounded-concurrency pattern the wider
// retrieval pack reaches for whenever it needs "N workers, stop on first
// error, let in-flight work finish."
package suite

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	runnerpkg "github.com/argusci/argus/pkg/runner"
)

// Mode selects the scheduling strategy (spec.md §4.12).
type Mode string

const (
	ModeSerial  Mode = "serial"
	ModeBySuite Mode = "by-suite"
	ModeByFile  Mode = "by-file"
)

// Job is one unit of scheduled work: a suite (Mode serial/by-suite) or a
// single file within a suite (Mode by-file).
type Job struct {
	SuiteID string
	Runner  runnerpkg.Runner
	Config  runnerpkg.Config
}

// Executor runs a set of Jobs under a Mode, fanning the unified runner
// event stream of each job out to a single sink while preserving each
// job's internal order (spec.md §4.12, §5).
type Executor struct {
	Mode     Mode
	Workers  int
	FailFast bool
}

// Status is the terminal classification of a SuiteOutcome (spec.md §8
// S6: a suite cancelled by fail-fast before it started carries
// Status=StatusCancelled and zero cases, distinct from a suite that ran
// and failed).
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// SuiteOutcome is the terminal state of one Job.
type SuiteOutcome struct {
	SuiteID string
	Events  []runnerpkg.Event
	Status  Status
	Failed  bool
	Err     error
}

// Run schedules jobs per e.Mode, emitting every observed event to emit
// (which must be safe for concurrent use), and returns each job's
// terminal outcome. In serial mode jobs run one at a time in order; in
// by-suite and by-file modes up to e.Workers (default runtime.NumCPU())
// run concurrently. When FailFast is set, the first job outcome with
// Failed=true cancels ctx for not-yet-started jobs; jobs already running
// are allowed to finish.
func (e *Executor) Run(ctx context.Context, jobs []Job, emit func(runnerpkg.Event)) []SuiteOutcome {
	if emit == nil {
		emit = func(runnerpkg.Event) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]SuiteOutcome, len(jobs))

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if e.Mode == ModeSerial {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, job := range jobs {
		i, job := i, job

		// A fail-fast cancellation from an earlier job (or from the
		// caller) reaches here before the job is dispatched: tag it
		// cancelled rather than leaving it a zero-value outcome, so
		// every job in jobs gets a reported status.
		if ctx.Err() != nil {
			mu.Lock()
			outcomes[i] = SuiteOutcome{SuiteID: job.SuiteID, Err: ctx.Err(), Failed: true, Status: StatusCancelled}
			mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			outcomes[i] = SuiteOutcome{SuiteID: job.SuiteID, Err: err, Failed: true, Status: StatusCancelled}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		run := func() {
			defer wg.Done()
			defer sem.Release(1)

			outcome := runJob(job, emit)
			outcomes[i] = outcome

			if outcome.Failed && e.FailFast {
				cancel()
			}
		}

		if e.Mode == ModeSerial {
			run()
		} else {
			go run()
		}
	}

	wg.Wait()
	return outcomes
}

func runJob(job Job, emit func(runnerpkg.Event)) SuiteOutcome {
	ch, err := job.Runner.Run(job.Config)
	if err != nil {
		return SuiteOutcome{SuiteID: job.SuiteID, Err: err, Failed: true, Status: StatusFailed}
	}

	var events []runnerpkg.Event
	failed := false
	for ev := range ch {
		events = append(events, ev)
		emit(ev)
		if ev.Kind == runnerpkg.EventCaseFail || (ev.Kind == runnerpkg.EventSuiteEnd && ev.Failed > 0) {
			failed = true
		}
	}

	status := StatusPassed
	if failed {
		status = StatusFailed
	}
	return SuiteOutcome{SuiteID: job.SuiteID, Events: events, Failed: failed, Status: status}
}
