package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

// PushSender delivers notifications through the push gateway's JSON webhook.
type PushSender struct {
	logger     *zap.Logger
	webhookURL string
	cost       float64
	httpClient *http.Client
}

// pushMessage is the gateway wire format
type pushMessage struct {
	UserID   string            `json:"user_id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Icon     string            `json:"icon,omitempty"`
	Image    string            `json:"image,omitempty"`
	DeepLink string            `json:"deep_link,omitempty"`
	Actions  []delivery.Action `json:"actions,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"message_id"`
}

// NewPushSender creates a new push notification sender
func NewPushSender(logger *zap.Logger, webhookURL string, cost float64) *PushSender {
	return &PushSender{
		logger:     logger,
		webhookURL: webhookURL,
		cost:       cost,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the channel type
func (s *PushSender) Channel() delivery.Channel {
	return delivery.ChannelPush
}

// CostPerMessage returns the nominal per-message cost
func (s *PushSender) CostPerMessage() float64 {
	return s.cost
}

// Send delivers the payload to all of the user's registered devices
func (s *PushSender) Send(ctx context.Context, userID string, payload delivery.Payload) (delivery.SendReceipt, error) {
	if s.webhookURL == "" {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("push", "push webhook URL not configured")
	}

	msg := pushMessage{
		UserID:   userID,
		Title:    payload.Title,
		Body:     payload.Body,
		Icon:     payload.Icon,
		Image:    payload.ImageURL,
		DeepLink: payload.DeepLink,
		Actions:  payload.Actions,
		Data:     payload.Data,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("push", "failed to marshal push message").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("push", "failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTransientError("push", fmt.Sprintf("push gateway unreachable: %v", err)).WithCause(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("push", resp); err != nil {
		return delivery.SendReceipt{}, err
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// Delivery was accepted; a malformed body only costs us the message id.
		s.logger.Warn("push gateway returned unparseable body", zap.Error(err))
	}

	s.logger.Debug("push notification accepted",
		zap.String("user_id", userID),
		zap.String("message_id", parsed.MessageID))

	return delivery.SendReceipt{
		ProviderMessageID: parsed.MessageID,
		Cost:              s.cost,
	}, nil
}
