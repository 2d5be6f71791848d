// Package retry implements RetryExecutor (spec.md §4.11): per-case retry
// with fixed/linear/exponential backoff. cenkalti/backoff/v4 supplies the
// exponential curve; fixed and linear are computed directly since the
// spec's delay formulas are simpler than backoff.ConstantBackOff's jitter
// model and must be deterministic for the computeDelay testable property.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects the backoff curve.
type Strategy string

const (
	Fixed       Strategy = "fixed"
	Linear      Strategy = "linear"
	Exponential Strategy = "exponential"
)

// Backoff configures a single retry curve.
type Backoff struct {
	Strategy Strategy
	Initial  time.Duration
	Max      time.Duration // zero means unclamped
}

// Policy is a per-case retry policy (spec.md §4.11).
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Matches reports whether a given failure should be retried at all
	// (by pattern or category, per spec.md §4.11). A nil Matches always
	// retries.
	Matches func(err error) bool
}

// computeDelay returns the delay before the given attempt (1-indexed),
// per spec.md §4.11's three curves, clamped to Backoff.Max when set.
func computeDelay(b Backoff, attempt int) time.Duration {
	var d time.Duration
	switch b.Strategy {
	case Linear:
		d = b.Initial * time.Duration(attempt)
	case Exponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = b.Initial
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxInterval = durationOrMax(b.Max)
		eb.Reset()
		for i := 0; i < attempt; i++ {
			d = eb.NextBackOff()
		}
	case Fixed:
		fallthrough
	default:
		d = b.Initial
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

func durationOrMax(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour * 24 * 365
	}
	return d
}

// ComputeDelay is the exported form of computeDelay, for callers
// inspecting a policy's schedule without running it (e.g. dashboards).
func ComputeDelay(b Backoff, attempt int) time.Duration {
	return computeDelay(b, attempt)
}

// Result is the terminal outcome of Executor.Run.
type Result struct {
	Success  bool
	Attempts int
	LastErr  error
}

// Executor runs an operation under a Policy.
type Executor struct {
	policy Policy
	sleep  func(context.Context, time.Duration) error
}

// New constructs an Executor for policy.
func New(policy Policy) *Executor {
	return &Executor{policy: policy, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run invokes op, retrying on failure per the policy until MaxAttempts is
// reached or op succeeds. A failure that the policy's Matches rejects is
// returned immediately without further attempts.
func (e *Executor) Run(ctx context.Context, op func(attempt int) error) Result {
	maxAttempts := e.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return Result{Success: true, Attempts: attempt}
		}
		lastErr = err

		if e.policy.Matches != nil && !e.policy.Matches(err) {
			return Result{Success: false, Attempts: attempt, LastErr: err}
		}
		if attempt == maxAttempts {
			break
		}

		delay := computeDelay(e.policy.Backoff, attempt)
		if err := e.sleep(ctx, delay); err != nil {
			return Result{Success: false, Attempts: attempt, LastErr: err}
		}
	}

	return Result{Success: false, Attempts: maxAttempts, LastErr: lastErr}
}
