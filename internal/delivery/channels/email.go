package channels

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

// Directory resolves a user id into channel-specific addresses. Backed by
// the profile store.
type Directory interface {
	EmailAddress(ctx context.Context, userID string) (string, error)
	PhoneNumber(ctx context.Context, userID string) (string, error)
}

// EmailConfig configures the SMTP email sender
type EmailConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	Cost     float64
}

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	logger    *zap.Logger
	config    EmailConfig
	directory Directory
}

// NewEmailSender creates a new email notification sender
func NewEmailSender(logger *zap.Logger, config EmailConfig, directory Directory) *EmailSender {
	if config.Port == 0 {
		config.Port = 587
	}
	return &EmailSender{
		logger:    logger,
		config:    config,
		directory: directory,
	}
}

// Channel returns the channel type
func (s *EmailSender) Channel() delivery.Channel {
	return delivery.ChannelEmail
}

// CostPerMessage returns the nominal per-message cost
func (s *EmailSender) CostPerMessage() float64 {
	return s.config.Cost
}

// Send delivers the payload to the user's email address
func (s *EmailSender) Send(ctx context.Context, userID string, payload delivery.Payload) (delivery.SendReceipt, error) {
	if s.config.Server == "" {
		return delivery.SendReceipt{}, apperrors.NewTerminalError("email", "SMTP server not configured")
	}

	address, err := s.directory.EmailAddress(ctx, userID)
	if err != nil {
		return delivery.SendReceipt{}, apperrors.NewTransientError("email", "address lookup failed").WithCause(err)
	}
	if address == "" {
		return delivery.SendReceipt{}, apperrors.NewInvalidTargetError("email", "user has no email address on file")
	}

	message := s.buildMIMEMessage(address, payload)

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Server)
	}

	serverAddr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)

	// net/smtp has no context support, so the dial runs in a goroutine and
	// the select enforces the attempt deadline.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(serverAddr, auth, s.config.From, []string{address}, []byte(message))
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		return delivery.SendReceipt{}, apperrors.NewTransientError("email", "email send deadline exceeded").WithCause(ctx.Err())
	case <-time.After(30 * time.Second):
		return delivery.SendReceipt{}, apperrors.NewTransientError("email", "email send timeout")
	}

	if err != nil {
		if strings.Contains(err.Error(), "535") || strings.Contains(strings.ToLower(err.Error()), "auth") {
			return delivery.SendReceipt{}, apperrors.NewTerminalError("email", "SMTP authentication failed").WithCause(err)
		}
		return delivery.SendReceipt{}, apperrors.NewTransientError("email", "SMTP delivery failed").WithCause(err)
	}

	s.logger.Debug("email notification accepted",
		zap.String("user_id", userID),
		zap.String("smtp_server", s.config.Server))

	return delivery.SendReceipt{Cost: s.config.Cost}, nil
}

// buildMIMEMessage builds a MIME-formatted email message
func (s *EmailSender) buildMIMEMessage(to string, payload delivery.Payload) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s\r\n", s.config.From))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Title))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("X-Mailer: ClubSuite Notifications\r\n")
	message.WriteString("\r\n")

	message.WriteString(payload.Body)
	if payload.DeepLink != "" {
		message.WriteString("\r\n\r\n")
		message.WriteString(payload.DeepLink)
	}
	for _, action := range payload.Actions {
		if action.URL != "" {
			message.WriteString(fmt.Sprintf("\r\n%s: %s", action.Label, action.URL))
		}
	}

	return message.String()
}
