package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	"github.com/clubsuite/notify/internal/delivery/channels"
	"github.com/clubsuite/notify/internal/scheduling"
	"github.com/clubsuite/notify/internal/templates"
	"github.com/clubsuite/notify/pkg/errors"
)

// ScheduleCanceller cancels a pending scheduled notification.
type ScheduleCanceller interface {
	Cancel(ctx context.Context, id uuid.UUID) error
}

// InboxReader serves the in-app inbox surface.
type InboxReader interface {
	ListInbox(ctx context.Context, userID string, limit int) ([]*channels.InboxMessage, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// NotificationHandler serves the delivery and scheduling endpoints.
type NotificationHandler struct {
	logger    *zap.Logger
	cascade   *delivery.Cascade
	scheduler *scheduling.Scheduler
	renderer  *templates.Renderer
	results   delivery.ResultStore
	canceller ScheduleCanceller
	inbox     InboxReader
}

// NewNotificationHandler creates the handler. results, canceller, and inbox
// may be nil; the corresponding endpoints then return 503.
func NewNotificationHandler(logger *zap.Logger, cascade *delivery.Cascade, scheduler *scheduling.Scheduler, renderer *templates.Renderer, results delivery.ResultStore, canceller ScheduleCanceller, inbox InboxReader) *NotificationHandler {
	return &NotificationHandler{
		logger:    logger,
		cascade:   cascade,
		scheduler: scheduler,
		renderer:  renderer,
		results:   results,
		canceller: canceller,
		inbox:     inbox,
	}
}

type sendRequest struct {
	UserID     string                    `json:"user_id" binding:"required"`
	TemplateID string                    `json:"template_id"`
	Variables  map[string]string         `json:"variables"`
	Locale     string                    `json:"locale"`
	Payload    *delivery.Payload         `json:"payload"`
	Type       delivery.NotificationType `json:"type"`
	Priority   delivery.Priority         `json:"priority"`
	Channels   []delivery.Channel        `json:"channels"`
	MaxCost    *float64                  `json:"max_cost"`
	// RespectPreferences defaults to true when omitted.
	RespectPreferences *bool `json:"respect_preferences"`
}

func (r *sendRequest) normalize() {
	if r.Type == "" {
		r.Type = delivery.TypeTransactional
	}
	if r.Priority == "" {
		r.Priority = delivery.PriorityNormal
	}
}

func (h *NotificationHandler) resolvePayload(templateID string, vars map[string]string, locale string, payload *delivery.Payload) (delivery.Payload, error) {
	if templateID != "" {
		return h.renderer.Render(templateID, vars, locale)
	}
	if payload == nil {
		return delivery.Payload{}, errors.NewInvalidInputError("either template_id or payload is required")
	}
	return *payload, nil
}

// SendNotification runs one immediate delivery cascade.
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}
	req.normalize()

	payload, err := h.resolvePayload(req.TemplateID, req.Variables, req.Locale, req.Payload)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	respectPrefs := true
	if req.RespectPreferences != nil {
		respectPrefs = *req.RespectPreferences
	}

	result, sendErr := h.cascade.Send(c.Request.Context(), delivery.NotificationRequest{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Payload:            payload,
		Type:               req.Type,
		Priority:           req.Priority,
		Channels:           req.Channels,
		MaxCost:            req.MaxCost,
		RespectPreferences: respectPrefs,
	})

	if result != nil && h.results != nil {
		if err := h.results.SaveResult(c.Request.Context(), result); err != nil {
			h.logger.Error("failed to persist delivery result",
				zap.String("request_id", result.RequestID.String()),
				zap.Error(err))
		}
	}

	if sendErr != nil {
		appErr, ok := sendErr.(*errors.AppError)
		if !ok {
			appErr = errors.NewInternalError(sendErr.Error())
		}
		c.JSON(statusForType(appErr.Type), APIResponse{
			Success:   false,
			Data:      result,
			Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
			RequestID: requestID(c),
			Timestamp: time.Now(),
		})
		return
	}
	SuccessResponse(c, result)
}

type scheduleRequest struct {
	UserID     string                    `json:"user_id" binding:"required"`
	TemplateID string                    `json:"template_id"`
	Variables  map[string]string         `json:"variables"`
	Locale     string                    `json:"locale"`
	Payload    *delivery.Payload         `json:"payload"`
	Type       delivery.NotificationType `json:"type"`
	Priority   delivery.Priority         `json:"priority"`
	Optimize   bool                      `json:"optimize_for_engagement"`
	// Quiet hours and frequency caps default to respected when omitted.
	RespectQuietHours   *bool `json:"respect_quiet_hours"`
	RespectFrequencyCap *bool `json:"respect_frequency_cap"`
}

func (r *scheduleRequest) options() scheduling.ScheduleOptions {
	opts := scheduling.ScheduleOptions{
		Type:                  r.Type,
		Priority:              r.Priority,
		OptimizeForEngagement: r.Optimize,
		RespectQuietHours:     true,
		RespectFrequencyCap:   true,
	}
	if opts.Type == "" {
		opts.Type = delivery.TypeTransactional
	}
	if opts.Priority == "" {
		opts.Priority = delivery.PriorityNormal
	}
	if r.RespectQuietHours != nil {
		opts.RespectQuietHours = *r.RespectQuietHours
	}
	if r.RespectFrequencyCap != nil {
		opts.RespectFrequencyCap = *r.RespectFrequencyCap
	}
	return opts
}

// ScheduleNotification computes a send time and persists a pending record.
func (h *NotificationHandler) ScheduleNotification(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	payload, err := h.resolvePayload(req.TemplateID, req.Variables, req.Locale, req.Payload)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	result, err := h.scheduler.Schedule(c.Request.Context(), req.UserID, payload, req.options())
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	CreatedResponse(c, result)
}

type batchScheduleRequest struct {
	UserIDs             []string                  `json:"user_ids" binding:"required,min=1"`
	TemplateID          string                    `json:"template_id"`
	Variables           map[string]string         `json:"variables"`
	Locale              string                    `json:"locale"`
	Payload             *delivery.Payload         `json:"payload"`
	Type                delivery.NotificationType `json:"type"`
	Priority            delivery.Priority         `json:"priority"`
	RespectQuietHours   *bool                     `json:"respect_quiet_hours"`
	RespectFrequencyCap *bool                     `json:"respect_frequency_cap"`
}

type batchEntryResponse struct {
	UserID string                     `json:"user_id"`
	Result *scheduling.ScheduleResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// ScheduleBatch schedules one campaign payload for many users, grouped by
// timezone.
func (h *NotificationHandler) ScheduleBatch(c *gin.Context) {
	var req batchScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	payload, err := h.resolvePayload(req.TemplateID, req.Variables, req.Locale, req.Payload)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	scheduleReq := scheduleRequest{
		Type:                req.Type,
		Priority:            req.Priority,
		RespectQuietHours:   req.RespectQuietHours,
		RespectFrequencyCap: req.RespectFrequencyCap,
	}
	entries := h.scheduler.ScheduleBatch(c.Request.Context(), req.UserIDs, payload, scheduleReq.options())

	out := make([]batchEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = batchEntryResponse{UserID: e.UserID, Result: e.Result}
		if e.Err != nil {
			out[i].Error = e.Err.Error()
		}
	}
	SuccessResponse(c, out)
}

// CancelSchedule cancels a pending scheduled notification.
func (h *NotificationHandler) CancelSchedule(c *gin.Context) {
	if h.canceller == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid schedule id")
		return
	}
	if err := h.canceller.Cancel(c.Request.Context(), id); err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, gin.H{"id": id, "status": scheduling.StatusCancelled})
}

// GetBreakerStates reports every channel's circuit breaker snapshot.
func (h *NotificationHandler) GetBreakerStates(c *gin.Context) {
	SuccessResponse(c, h.cascade.BreakerStates())
}

// GetChannelMetrics reports the rolling delivery metrics per channel.
func (h *NotificationHandler) GetChannelMetrics(c *gin.Context) {
	SuccessResponse(c, h.cascade.Metrics().SnapshotAll())
}

// GetInbox lists a user's in-app notifications.
func (h *NotificationHandler) GetInbox(c *gin.Context) {
	if h.inbox == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := h.inbox.ListInbox(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, messages)
}

// MarkInboxRead stamps an inbox message read.
func (h *NotificationHandler) MarkInboxRead(c *gin.Context) {
	if h.inbox == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid message id")
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), id); err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, gin.H{"id": id, "read": true})
}
