package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clubsuite/notify/pkg/errors"
)

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries the machine-readable error code alongside the message.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SuccessResponse sends a 200 with the standard envelope.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// CreatedResponse sends a 201 with the standard envelope.
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// AppErrorResponse maps an AppError to an HTTP status and sends it.
func AppErrorResponse(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.NewInternalError(err.Error())
	}

	status := statusForType(appErr.Type)
	if appErr.Type == errors.ErrorTypeFrequencyCap || appErr.Type == errors.ErrorTypeRateLimited {
		if retryAfter := appErr.RetryAfter; retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		}
	}

	c.JSON(status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 for malformed request bodies.
func BadRequestResponse(c *gin.Context, message string) {
	AppErrorResponse(c, errors.NewInvalidInputError(message))
}

func statusForType(t errors.ErrorType) int {
	switch t {
	case errors.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrorTypeInvalidTarget:
		return http.StatusNotFound
	case errors.ErrorTypeFrequencyCap, errors.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrorTypeCircuitOpen:
		return http.StatusServiceUnavailable
	case errors.ErrorTypeCascadeExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
