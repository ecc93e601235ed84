package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/clubsuite/notify/pkg/errors"
)

// Channel represents a delivery medium
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// NotificationType classifies a notification for routing and scheduling
type NotificationType string

const (
	TypeTransactional NotificationType = "transactional"
	TypePromotional   NotificationType = "promotional"
	TypeInformational NotificationType = "informational"
	TypeCritical      NotificationType = "critical"
	TypeSocial        NotificationType = "social"
	// TypePaymentDue is the club-billing reminder type; it escalates to SMS
	// like critical notifications do.
	TypePaymentDue NotificationType = "payment_due"
)

// Priority represents the requested delivery priority
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Action is a button rendered alongside the notification body
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// Payload is the channel-agnostic rendered message
type Payload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	DeepLink string            `json:"deep_link,omitempty"`
	Icon     string            `json:"icon,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Actions  []Action          `json:"actions,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Empty reports whether the payload carries no renderable content.
func (p Payload) Empty() bool {
	return p.Title == "" && p.Body == ""
}

// NotificationRequest describes one delivery. Immutable once submitted.
type NotificationRequest struct {
	ID       uuid.UUID        `json:"id"`
	UserID   string           `json:"user_id"`
	Payload  Payload          `json:"payload"`
	Type     NotificationType `json:"type"`
	Priority Priority         `json:"priority"`
	// Channels overrides the type-derived channel order when non-empty.
	Channels []Channel `json:"channels,omitempty"`
	// MaxCost caps the total nominal spend across the cascade when set.
	MaxCost             *float64 `json:"max_cost,omitempty"`
	RespectPreferences  bool     `json:"respect_preferences"`
	RespectQuietHours   bool     `json:"respect_quiet_hours"`
	RespectFrequencyCap bool     `json:"respect_frequency_cap"`
}

// DeliveryAttempt records a single attempt against one channel.
// Append-only; owned exclusively by the cascade run that produced it.
type DeliveryAttempt struct {
	Channel   Channel          `json:"channel"`
	Timestamp time.Time        `json:"timestamp"`
	Success   bool             `json:"success"`
	LatencyMs int64            `json:"latency_ms"`
	ErrorType errors.ErrorType `json:"error_type,omitempty"`
	Error     string           `json:"error,omitempty"`
	Cost      float64          `json:"cost"`
}

// DeliveryResult is produced once per cascade invocation. Immutable.
type DeliveryResult struct {
	RequestID   uuid.UUID         `json:"request_id"`
	UserID      string            `json:"user_id"`
	Success     bool              `json:"success"`
	Channel     Channel           `json:"channel,omitempty"`
	Attempts    []DeliveryAttempt `json:"attempts"`
	TotalCost   float64           `json:"total_cost"`
	Elapsed     time.Duration     `json:"elapsed"`
	Error       string            `json:"error,omitempty"`
	ErrorType   errors.ErrorType  `json:"error_type,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// SendReceipt is what a channel sender reports back for one attempt.
type SendReceipt struct {
	ProviderMessageID string  `json:"provider_message_id,omitempty"`
	// Cost is what this attempt actually cost. Providers that only bill
	// accepted messages report zero on failure.
	Cost float64 `json:"cost"`
}

// UserPreferences is the slice of the profile store the delivery core reads.
type UserPreferences struct {
	UserID          string           `json:"user_id"`
	Timezone        string           `json:"timezone"`
	QuietHoursStart int              `json:"quiet_hours_start"`
	QuietHoursEnd   int              `json:"quiet_hours_end"`
	ChannelOptOuts  map[Channel]bool `json:"channel_opt_outs"`
}

// OptedOut reports whether the user disabled the given channel.
func (p *UserPreferences) OptedOut(ch Channel) bool {
	if p == nil || p.ChannelOptOuts == nil {
		return false
	}
	return p.ChannelOptOuts[ch]
}

// DefaultChannelOrder derives the cascade order from the notification type.
// Payment-due and critical types escalate to SMS; promotional traffic never
// reaches SMS by default.
func DefaultChannelOrder(t NotificationType) []Channel {
	switch t {
	case TypeCritical, TypePaymentDue:
		return []Channel{ChannelPush, ChannelEmail, ChannelSMS}
	case TypePromotional:
		return []Channel{ChannelPush, ChannelInApp, ChannelEmail}
	default:
		return []Channel{ChannelPush, ChannelInApp, ChannelEmail}
	}
}
