package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeDelayFixed(t *testing.T) {
	b := Backoff{Strategy: Fixed, Initial: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, ComputeDelay(b, 1))
	assert.Equal(t, 100*time.Millisecond, ComputeDelay(b, 5))
}

func TestComputeDelayLinear(t *testing.T) {
	b := Backoff{Strategy: Linear, Initial: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, ComputeDelay(b, 1))
	assert.Equal(t, 300*time.Millisecond, ComputeDelay(b, 3))
}

func TestComputeDelayExponential(t *testing.T) {
	b := Backoff{Strategy: Exponential, Initial: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, ComputeDelay(b, 1))
	assert.Equal(t, 200*time.Millisecond, ComputeDelay(b, 2))
	assert.Equal(t, 400*time.Millisecond, ComputeDelay(b, 3))
}

func TestComputeDelayClampsToMax(t *testing.T) {
	b := Backoff{Strategy: Exponential, Initial: 100 * time.Millisecond, Max: 250 * time.Millisecond}
	assert.Equal(t, 200*time.Millisecond, ComputeDelay(b, 2))
	assert.Equal(t, 250*time.Millisecond, ComputeDelay(b, 3))
}

func TestExecutorRunSucceedsEventually(t *testing.T) {
	e := New(Policy{MaxAttempts: 3, Backoff: Backoff{Strategy: Fixed, Initial: time.Microsecond}})

	attempts := 0
	result := e.Run(context.Background(), func(attempt int) error {
		attempts++
		if attempt < 2 {
			return errors.New("not yet")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, attempts)
}

func TestExecutorRunExhaustsAttempts(t *testing.T) {
	e := New(Policy{MaxAttempts: 2, Backoff: Backoff{Strategy: Fixed, Initial: time.Microsecond}})

	result := e.Run(context.Background(), func(attempt int) error {
		return errors.New("always fails")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.EqualError(t, result.LastErr, "always fails")
}

func TestExecutorRunStopsWhenMatchesRejects(t *testing.T) {
	e := New(Policy{
		MaxAttempts: 5,
		Backoff:     Backoff{Strategy: Fixed, Initial: time.Microsecond},
		Matches:     func(err error) bool { return false },
	})

	calls := 0
	result := e.Run(context.Background(), func(attempt int) error {
		calls++
		return errors.New("non-retryable")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecutorRunRespectsCancellation(t *testing.T) {
	e := New(Policy{MaxAttempts: 3, Backoff: Backoff{Strategy: Fixed, Initial: time.Hour}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Run(ctx, func(attempt int) error { return errors.New("fail") })
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastErr, context.Canceled)
}
