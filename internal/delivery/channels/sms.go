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

// SMSConfig configures the SMS provider API sender
type SMSConfig struct {
	APIURL string
	APIKey string
	Cost   float64
}

// SMSSender delivers notifications through an HTTP SMS provider API.
type SMSSender struct {
	logger     *zap.Logger
	config     SMSConfig
	directory  Directory
	httpClient *http.Client
}

type smsMessage struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type smsResponse struct {
	MessageID string  `json:"message_id"`
	Cost      float64 `json:"cost"`
}

// NewSMSSender creates a new SMS notification sender
func NewSMSSender(logger *zap.Logger, config SMSConfig, directory Directory) *SMSSender {
	return &SMSSender{
		logger:    logger,
		config:    config,
		directory: directory,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the channel type
func (s *SMSSender) Channel() delivery.Channel {
	return delivery.ChannelSMS
}

// CostPerMessage returns the nominal per-message cost
func (s *SMSSender) CostPerMessage() float64 {
	return s.config.Cost
}

// Send delivers the payload to the user's phone number
func (s *SMSSender) Send(ctx context.Context, userID string, payload delivery.Payload) (delivery.SendReceipt, error) {
	if s.config.APIURL == "" {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("sms", "SMS API URL not configured")
	}

	phone, err := s.directory.PhoneNumber(ctx, userID)
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTransientError("sms", "phone number lookup failed").WithCause(err)
	}
	if phone == "" {
		return delivery.SendReceipt{}, apperrors.NewInvalidTargetError("sms", "user has no phone number on file")
	}

	text := payload.Title
	if payload.Body != "" {
		text = payload.Title + ": " + payload.Body
	}

	body, err := json.Marshal(smsMessage{To: phone, Text: text})
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("sms", "failed to marshal SMS message").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewBuffer(body))
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("sms", "failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTransientError("sms", fmt.Sprintf("SMS provider unreachable: %v", err)).WithCause(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("sms", resp); err != nil {
		return delivery.SendReceipt{}, err
	}

	receipt := delivery.SendReceipt{Cost: s.config.Cost}

	var parsed smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
		receipt.ProviderMessageID = parsed.MessageID
		// Prefer the provider's billed amount when it reports one.
		if parsed.Cost > 0 {
			receipt.Cost = parsed.Cost
		}
	}

	s.logger.Debug("sms notification accepted",
		zap.String("user_id", userID),
		zap.String("message_id", receipt.ProviderMessageID))

	return receipt, nil
}
