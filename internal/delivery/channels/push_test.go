package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

func testPayload() delivery.Payload {
	return delivery.Payload{
		Title:    "Payment due",
		Body:     "Your Gold membership payment is due.",
		DeepLink: "club://billing/inv-42",
	}
}

func TestPushSender_Success(t *testing.T) {
	var received pushMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pushResponse{MessageID: "prov-123"})
	}))
	defer server.Close()

	s := NewPushSender(zaptest.NewLogger(t), server.URL, 0)
	receipt, err := s.Send(context.Background(), "user-1", testPayload())

	require.NoError(t, err)
	assert.Equal(t, "prov-123", receipt.ProviderMessageID)
	assert.Equal(t, 0.0, receipt.Cost)
	assert.Equal(t, "user-1", received.UserID)
	assert.Equal(t, "Payment due", received.Title)
}

func TestPushSender_GoneSubscriptionIsInvalidTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	s := NewPushSender(zaptest.NewLogger(t), server.URL, 0)
	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTarget))
}

func TestPushSender_RateLimitedCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := NewPushSender(zaptest.NewLogger(t), server.URL, 0)
	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimited))
	assert.Equal(t, 7*time.Second, apperrors.GetRetryAfter(err))
}

func TestPushSender_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewPushSender(zaptest.NewLogger(t), server.URL, 0)
	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransient))
}

func TestPushSender_UnreachableGatewayIsTransient(t *testing.T) {
	s := NewPushSender(zaptest.NewLogger(t), "http://127.0.0.1:1", 0)
	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransient))
}

func TestPushSender_MissingConfigIsTerminal(t *testing.T) {
	s := NewPushSender(zaptest.NewLogger(t), "", 0)
	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTerminal))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   apperrors.ErrorType
	}{
		{http.StatusNotFound, apperrors.ErrorTypeInvalidTarget},
		{http.StatusGone, apperrors.ErrorTypeInvalidTarget},
		{http.StatusTooManyRequests, apperrors.ErrorTypeRateLimited},
		{http.StatusInternalServerError, apperrors.ErrorTypeTransient},
		{http.StatusServiceUnavailable, apperrors.ErrorTypeTransient},
		{http.StatusBadRequest, apperrors.ErrorTypeTerminal},
		{http.StatusUnauthorized, apperrors.ErrorTypeTerminal},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.status, Header: http.Header{}, Status: http.StatusText(tt.status)}
		err := classifyStatus("push", resp)
		require.Error(t, err, tt.status)
		assert.True(t, apperrors.IsType(err, tt.want), "status %d", tt.status)
	}

	assert.NoError(t, classifyStatus("push", &http.Response{StatusCode: http.StatusOK}))
}

func TestParseRetryAfter_DefaultsToOneSecond(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Second, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "not-a-number")
	assert.Equal(t, time.Second, parseRetryAfter(resp))
}
