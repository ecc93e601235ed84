package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetType_DefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTypeTransient, GetType(fmt.Errorf("connection reset")))
	assert.Equal(t, ErrorTypeTerminal, GetType(NewTerminalError("email", "bad auth")))
}

func TestGetType_UnwrapsCause(t *testing.T) {
	inner := NewInvalidTargetError("push", "gone")
	wrapped := fmt.Errorf("send failed: %w", inner)

	assert.Equal(t, ErrorTypeInvalidTarget, GetType(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeInvalidTarget))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"transient", NewTransientError("push", "timeout"), true},
		{"rate limited", NewRateLimitedError("sms", time.Second), true},
		{"invalid target", NewInvalidTargetError("push", "gone"), false},
		{"terminal", NewTerminalError("email", "auth"), false},
		{"circuit open", NewCircuitOpenError("push"), false},
		{"unknown error", fmt.Errorf("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, GetRetryAfter(NewRateLimitedError("sms", 2*time.Second)))
	assert.Equal(t, time.Duration(0), GetRetryAfter(NewTransientError("push", "timeout")))
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := NewInternalError("store write failed").WithCause(fmt.Errorf("disk full"))

	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "disk full")
	assert.EqualError(t, err.Unwrap(), "disk full")
}
