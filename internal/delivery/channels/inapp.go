package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

// InboxMessage is a delivered in-app notification row.
type InboxMessage struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	Body      string     `json:"body" db:"body"`
	DeepLink  string     `json:"deep_link,omitempty" db:"deep_link"`
	Icon      string     `json:"icon,omitempty" db:"icon"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// InboxStore persists in-app inbox messages.
type InboxStore interface {
	SaveInboxMessage(ctx context.Context, msg *InboxMessage) error
}

// InAppSender delivers notifications by writing the user's in-app inbox.
// There is no external provider; a failed write is a transient store error.
type InAppSender struct {
	logger *zap.Logger
	store  InboxStore
	cost   float64
}

// NewInAppSender creates a new in-app notification sender
func NewInAppSender(logger *zap.Logger, store InboxStore, cost float64) *InAppSender {
	return &InAppSender{
		logger: logger,
		store:  store,
		cost:   cost,
	}
}

// Channel returns the channel type
func (s *InAppSender) Channel() delivery.Channel {
	return delivery.ChannelInApp
}

// CostPerMessage returns the nominal per-message cost
func (s *InAppSender) CostPerMessage() float64 {
	return s.cost
}

// Send writes the payload into the user's inbox
func (s *InAppSender) Send(ctx context.Context, userID string, payload delivery.Payload) (delivery.SendReceipt, error) {
	msg := &InboxMessage{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     payload.Title,
		Body:      payload.Body,
		DeepLink:  payload.DeepLink,
		Icon:      payload.Icon,
		CreatedAt: time.Now(),
	}

	if err := s.store.SaveInboxMessage(ctx, msg); err != nil {
		return delivery.SendReceipt{}, apperrors.NewTransientError("in_app", "failed to write inbox message").WithCause(err)
	}

	s.logger.Debug("in-app notification stored",
		zap.String("user_id", userID),
		zap.String("message_id", msg.ID.String()))

	return delivery.SendReceipt{
		ProviderMessageID: msg.ID.String(),
		Cost:              s.cost,
	}, nil
}
