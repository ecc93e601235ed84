package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubsuite/notify/internal/delivery"
)

// Status tracks a scheduled notification through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ScheduledNotification is a deferred delivery persisted until its sendAt
// moment. The scheduler creates it pending; the dispatcher transitions it.
type ScheduledNotification struct {
	ID        uuid.UUID                 `json:"id" db:"id"`
	UserID    string                    `json:"user_id" db:"user_id"`
	Payload   delivery.Payload          `json:"payload" db:"payload"`
	Type      delivery.NotificationType `json:"type" db:"type"`
	Priority  delivery.Priority         `json:"priority" db:"priority"`
	SendAt    time.Time                 `json:"send_at" db:"send_at"`
	Timezone  string                    `json:"timezone" db:"timezone"`
	Status    Status                    `json:"status" db:"status"`
	CreatedAt time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at" db:"updated_at"`
}

// ScheduleResult reports where a notification landed on the calendar.
type ScheduleResult struct {
	ID       uuid.UUID     `json:"id"`
	SendAt   time.Time     `json:"send_at"`
	Timezone string        `json:"timezone"`
	Delay    time.Duration `json:"delay"`
}

// BatchEntry is one user's outcome from ScheduleBatch.
type BatchEntry struct {
	UserID string          `json:"user_id"`
	Result *ScheduleResult `json:"result,omitempty"`
	Err    error           `json:"-"`
}

// ScheduleOptions controls the timing decision for one schedule call.
type ScheduleOptions struct {
	Type     delivery.NotificationType `json:"type"`
	Priority delivery.Priority         `json:"priority"`
	// OptimizeForEngagement picks the user's historically best click hour
	// instead of the type's static preferred hours.
	OptimizeForEngagement bool `json:"optimize_for_engagement"`
	RespectQuietHours     bool `json:"respect_quiet_hours"`
	RespectFrequencyCap   bool `json:"respect_frequency_cap"`
}

// TypeConfig is the static scheduling policy for a notification type.
type TypeConfig struct {
	// Immediate sends right away, skipping hour optimization.
	Immediate bool
	// PreferredHours are candidate local send hours in ascending order.
	PreferredHours []int
	SkipWeekends   bool
	// IgnoreQuietHours exempts the type from quiet-hour postponement.
	IgnoreQuietHours bool
}

// DefaultTypeConfigs returns the per-type scheduling policies.
func DefaultTypeConfigs() map[delivery.NotificationType]TypeConfig {
	return map[delivery.NotificationType]TypeConfig{
		delivery.TypeCritical: {
			Immediate:        true,
			IgnoreQuietHours: true,
		},
		delivery.TypeTransactional: {
			Immediate: true,
		},
		delivery.TypePaymentDue: {
			Immediate: true,
		},
		delivery.TypePromotional: {
			PreferredHours: []int{12, 13, 18, 19, 20},
		},
		delivery.TypeInformational: {
			PreferredHours: []int{10, 16},
			SkipWeekends:   true,
		},
		delivery.TypeSocial: {
			PreferredHours: []int{18, 19, 20, 21},
		},
	}
}

// EngagementStore reads a user's historical notification click timestamps.
type EngagementStore interface {
	GetClickHistory(ctx context.Context, userID string) ([]time.Time, error)
}

// FrequencyStore counts recent sends for frequency capping.
type FrequencyStore interface {
	CountSentSince(ctx context.Context, userID string, since time.Time) (int, error)
	RecordSend(ctx context.Context, userID string, at time.Time) error
}

// ScheduleStore persists scheduled notifications and drives their status.
type ScheduleStore interface {
	SaveScheduled(ctx context.Context, n *ScheduledNotification) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledNotification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}
