package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a delivery error for retry and cascade decisions.
type ErrorType string

const (
	// ErrorTypeInvalidInput - the request itself is malformed (missing target
	// or payload). Fails fast, no attempts are made.
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	// ErrorTypeTransient - network errors, 5xx responses, timeouts. Retryable.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeRateLimited - 429 from the provider. Retryable after the
	// server-suggested delay.
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeInvalidTarget - 404/410, the stored subscription is gone. The
	// caller should invalidate it; never retried.
	ErrorTypeInvalidTarget ErrorType = "invalid_target"
	// ErrorTypeTerminal - validation or auth failure at the provider. Never retried.
	ErrorTypeTerminal ErrorType = "terminal"
	// ErrorTypeCircuitOpen - synthetic zero-cost failure emitted while a
	// channel's breaker is open.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	// ErrorTypeFrequencyCap - scheduling refused because the user hit a cap.
	ErrorTypeFrequencyCap ErrorType = "frequency_cap"
	// ErrorTypeCascadeExhausted - every channel was tried and none succeeded.
	ErrorTypeCascadeExhausted ErrorType = "cascade_exhausted"
	// ErrorTypeInternal - everything that is this service's own fault.
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a delivery error with context
type AppError struct {
	Type       ErrorType         `json:"type"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithRetryAfter records the provider-suggested delay before the next attempt.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorTypeInvalidInput, "INVALID_INPUT", message)
}

func NewTransientError(channel, message string) *AppError {
	return NewAppError(ErrorTypeTransient, "TRANSIENT_FAILURE", message).
		WithDetail("channel", channel)
}

func NewRateLimitedError(channel string, retryAfter time.Duration) *AppError {
	return NewAppError(ErrorTypeRateLimited, "RATE_LIMITED", "provider rate limit reached").
		WithDetail("channel", channel).
		WithRetryAfter(retryAfter)
}

func NewInvalidTargetError(channel, message string) *AppError {
	return NewAppError(ErrorTypeInvalidTarget, "INVALID_TARGET", message).
		WithDetail("channel", channel)
}

func NewTerminalError(channel, message string) *AppError {
	return NewAppError(ErrorTypeTerminal, "TERMINAL_FAILURE", message).
		WithDetail("channel", channel)
}

func NewCircuitOpenError(channel string) *AppError {
	return NewAppError(ErrorTypeCircuitOpen, "CIRCUIT_OPEN",
		fmt.Sprintf("circuit breaker for channel %s is open", channel)).
		WithDetail("channel", channel)
}

func NewFrequencyCapError(nextEligible time.Time) *AppError {
	return NewAppError(ErrorTypeFrequencyCap, "FREQUENCY_CAP_REACHED", "user notification frequency cap reached").
		WithDetail("next_eligible", nextEligible.Format(time.RFC3339))
}

func NewCascadeExhaustedError(attempts int) *AppError {
	return NewAppError(ErrorTypeCascadeExhausted, "CASCADE_EXHAUSTED",
		fmt.Sprintf("all channels exhausted after %d attempts", attempts))
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetType returns the error type if it's an AppError. Unknown errors classify
// as transient so that unexpected provider failures stay retryable.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeTransient
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetRetryAfter returns the provider-suggested delay, or zero when absent.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// IsRetryable reports whether the same channel may be tried again.
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrorTypeTransient, ErrorTypeRateLimited:
		return true
	default:
		return false
	}
}
