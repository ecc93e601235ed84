package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clubsuite/notify/pkg/errors"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "push",
		FailureThreshold: 0.5,
		MinSamples:       10,
		Window:           time.Minute,
		Cooldown:         50 * time.Millisecond,
		TrialRequests:    2,
	}
}

// tripBreaker drives the breaker to OPEN with all-failing attempts.
func tripBreaker(cb *CircuitBreaker) {
	for i := 0; i < 10; i++ {
		if cb.Allow() {
			cb.RecordFailure()
		}
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_DoesNotTripBelowMinSamples(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	// 9 failures out of 9 attempts is a 100% failure rate, but below the
	// minimum sample size the rate is not meaningful yet.
	for i := 0; i < 9; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TripsAboveThresholdWithMinSamples(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	// 6 failures in 10 attempts: 60% > 50% threshold with 10 samples.
	for i := 0; i < 4; i++ {
		require.True(t, cb.Allow())
		cb.RecordSuccess()
	}
	for i := 0; i < 6; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_ExactThresholdDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	// 5 of 10 is exactly the threshold; the trip condition is strictly above.
	for i := 0; i < 5; i++ {
		require.True(t, cb.Allow())
		cb.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpenDeniesUntilCooldown(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	tripBreaker(cb)

	require.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	snap := cb.GetState()
	assert.Equal(t, "OPEN", snap.Mode)
	assert.False(t, snap.NextAttemptAt.IsZero())

	time.Sleep(60 * time.Millisecond)

	// The first attempt after cool-down transitions to HALF_OPEN and passes.
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenClosesAfterTrialSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	tripBreaker(cb)
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordSuccess()
	require.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	tripBreaker(cb)
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenLimitsTrialAttempts(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	tripBreaker(cb)
	time.Sleep(60 * time.Millisecond)

	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	// Trial budget of 2 is spent, further attempts are rejected until the
	// in-flight trials report back.
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_WindowResetsRollingCounts(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Window = 50 * time.Millisecond
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 5; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}
	require.Equal(t, uint32(5), cb.GetState().Failures)

	time.Sleep(60 * time.Millisecond)

	// Counts roll over with the window instead of accumulating forever.
	assert.Equal(t, uint32(0), cb.GetState().Failures)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_NotifiesOnStateChange(t *testing.T) {
	var transitions []string
	cfg := testBreakerConfig()
	cfg.OnStateChange = func(name string, from, to CircuitState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	cb := NewCircuitBreaker(cfg)

	tripBreaker(cb)
	require.Equal(t, []string{"CLOSED>OPEN"}, transitions)

	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	require.True(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestCircuitBreaker_ExecuteShortCircuitsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	tripBreaker(cb)

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, called)
}

func TestCircuitBreaker_ExecuteRecordsOutcomes(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return apperrors.NewTransientError("push", "boom")
	})
	require.Error(t, err)
	assert.Equal(t, uint32(1), cb.GetState().Failures)

	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cb.GetState().Successes)
}
