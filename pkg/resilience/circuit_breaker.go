package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clubsuite/notify/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, attempts are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, attempts are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, limited trial attempts are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker, usually the channel it guards
	Name string
	// FailureThreshold is the failure rate within the rolling window above
	// which the breaker trips from closed to open
	FailureThreshold float64
	// MinSamples is the minimum number of attempts in the window before the
	// failure rate is considered meaningful
	MinSamples uint32
	// Window is the cyclic period of the closed state after which the rolling
	// counts are cleared. Keeps the window bounded, never lifetime-cumulative.
	Window time.Duration
	// Cooldown is the period of the open state, after which the next attempt
	// moves the breaker to half-open
	Cooldown time.Duration
	// TrialRequests is the number of attempts allowed through while half-open;
	// the same count of consecutive successes closes the breaker again
	TrialRequests uint32
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// Counts holds the numbers of attempts and their successes/failures
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Snapshot is a point-in-time view of breaker state for reporting.
type Snapshot struct {
	Name           string       `json:"name"`
	State          CircuitState `json:"-"`
	Mode           string       `json:"mode"`
	Successes      uint32       `json:"successes"`
	Failures       uint32       `json:"failures"`
	ErrorRate      float64      `json:"error_rate"`
	LastTransition time.Time    `json:"last_transition"`
	NextAttemptAt  time.Time    `json:"next_attempt_at,omitempty"`
}

// CircuitBreaker is a per-channel state machine that stops calling a failing
// channel for a cool-down period.
type CircuitBreaker struct {
	name             string
	failureThreshold float64
	minSamples       uint32
	window           time.Duration
	cooldown         time.Duration
	trialRequests    uint32
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex          sync.Mutex
	state          CircuitState
	generation     uint64
	counts         Counts
	expiry         time.Time
	lastTransition time.Time

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		minSamples:       config.MinSamples,
		window:           config.Window,
		cooldown:         config.Cooldown,
		trialRequests:    config.TrialRequests,
		onStateChange:    config.OnStateChange,
		lastTransition:   time.Now(),
		logger:           logging.GetLogger(),
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 0.5
	}
	if cb.minSamples == 0 {
		cb.minSamples = 10
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	if cb.trialRequests == 0 {
		cb.trialRequests = 2
	}

	cb.toNewGeneration(time.Now())
	return cb
}

// Allow reports whether an attempt may pass through right now. Time passing
// may move the breaker from open to half-open as a side effect. Every allowed
// attempt must be followed by RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, _ := cb.currentState(now)

	if state == StateOpen {
		return false
	}
	if state == StateHalfOpen && cb.counts.Requests >= cb.trialRequests {
		return false
	}

	cb.counts.Requests++
	return true
}

// RecordSuccess records a successful attempt outcome
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, _ := cb.currentState(now)

	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.trialRequests {
		cb.setState(StateClosed, now)
	}
}

// RecordFailure records a failed attempt outcome
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, _ := cb.currentState(now)

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch state {
	case StateClosed:
		if cb.readyToTrip() {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// readyToTrip must be called with the mutex held.
func (cb *CircuitBreaker) readyToTrip() bool {
	if cb.counts.Requests < cb.minSamples {
		return false
	}
	rate := float64(cb.counts.TotalFailures) / float64(cb.counts.Requests)
	return rate > cb.failureThreshold
}

// Execute runs the given request if the circuit breaker accepts it
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(context.Context) error) error {
	if !cb.Allow() {
		return &CircuitBreakerError{Name: cb.name, State: cb.State()}
	}

	defer func() {
		if r := recover(); r != nil {
			cb.RecordFailure()
			panic(r)
		}
	}()

	err := req(ctx)
	if err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state, _ := cb.currentState(time.Now())
	return state
}

// Counts returns a copy of the current counts
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.counts
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetState returns a snapshot of mode, counts and error rate for reporting.
func (cb *CircuitBreaker) GetState() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state, _ := cb.currentState(time.Now())

	snap := Snapshot{
		Name:           cb.name,
		State:          state,
		Mode:           state.String(),
		Successes:      cb.counts.TotalSuccesses,
		Failures:       cb.counts.TotalFailures,
		LastTransition: cb.lastTransition,
	}
	if cb.counts.Requests > 0 {
		snap.ErrorRate = float64(cb.counts.TotalFailures) / float64(cb.counts.Requests)
	}
	if state == StateOpen {
		snap.NextAttemptAt = cb.expiry
	}
	return snap
}

// currentState must be called with the mutex held.
func (cb *CircuitBreaker) currentState(now time.Time) (CircuitState, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

// setState must be called with the mutex held.
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.lastTransition = now

	cb.toNewGeneration(now)

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
	)
}

// toNewGeneration must be called with the mutex held.
func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	var zero time.Time
	switch cb.state {
	case StateClosed:
		if cb.window == 0 {
			cb.expiry = zero
		} else {
			cb.expiry = now.Add(cb.window)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.cooldown)
	default: // StateHalfOpen
		cb.expiry = zero
	}
}

// CircuitBreakerError represents an error when the circuit breaker is open
type CircuitBreakerError struct {
	Name  string
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
