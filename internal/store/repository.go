package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clubsuite/notify/internal/delivery"
	"github.com/clubsuite/notify/internal/delivery/channels"
	"github.com/clubsuite/notify/internal/scheduling"
	"github.com/clubsuite/notify/pkg/errors"
)

// PreferencesRepository reads user profiles: scheduling preferences and
// per-channel addresses. Implements delivery.PreferencesStore and
// channels.Directory.
type PreferencesRepository struct {
	db *DB
}

// NewPreferencesRepository creates a new preferences repository.
func NewPreferencesRepository(db *DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

type preferencesRow struct {
	UserID          string `db:"user_id"`
	Timezone        string `db:"timezone"`
	QuietHoursStart int    `db:"quiet_hours_start"`
	QuietHoursEnd   int    `db:"quiet_hours_end"`
	ChannelOptOuts  []byte `db:"channel_opt_outs"`
}

// GetPreferences returns the user's stored preferences. A user without a
// profile row gets nil, which callers treat as platform defaults.
func (r *PreferencesRepository) GetPreferences(ctx context.Context, userID string) (*delivery.UserPreferences, error) {
	var row preferencesRow
	query := `
		SELECT user_id, timezone, quiet_hours_start, quiet_hours_end, channel_opt_outs
		FROM user_preferences WHERE user_id = $1`

	err := r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load user preferences").WithCause(err)
	}

	prefs := &delivery.UserPreferences{
		UserID:          row.UserID,
		Timezone:        row.Timezone,
		QuietHoursStart: row.QuietHoursStart,
		QuietHoursEnd:   row.QuietHoursEnd,
	}
	optOuts, err := decodeOptOuts(row.ChannelOptOuts)
	if err != nil {
		return nil, err
	}
	prefs.ChannelOptOuts = optOuts
	return prefs, nil
}

// decodeOptOuts parses the channel_opt_outs JSONB column. Rows written before
// any opt-out carry an empty document; `[]` and `null` are tolerated as empty
// so a column default can never poison the preferences read.
func decodeOptOuts(raw []byte) (map[delivery.Channel]bool, error) {
	switch s := strings.TrimSpace(string(raw)); s {
	case "", "[]", "{}", "null":
		return nil, nil
	}

	var optOuts map[delivery.Channel]bool
	if err := json.Unmarshal(raw, &optOuts); err != nil {
		return nil, errors.NewInternalError("failed to decode channel opt-outs").WithCause(err)
	}
	return optOuts, nil
}

// EmailAddress returns the user's email, or empty when none is on file.
func (r *PreferencesRepository) EmailAddress(ctx context.Context, userID string) (string, error) {
	return r.contactField(ctx, userID, "email")
}

// PhoneNumber returns the user's phone number, or empty when none is on file.
func (r *PreferencesRepository) PhoneNumber(ctx context.Context, userID string) (string, error) {
	return r.contactField(ctx, userID, "phone")
}

func (r *PreferencesRepository) contactField(ctx context.Context, userID, column string) (string, error) {
	var value sql.NullString
	query := `SELECT ` + column + ` FROM user_contacts WHERE user_id = $1`

	err := r.db.GetContext(ctx, &value, query, userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternalError("failed to load user contact").WithCause(err)
	}
	return value.String, nil
}

// EngagementRepository reads notification click history for send-hour
// optimization.
type EngagementRepository struct {
	db *DB
}

// NewEngagementRepository creates a new engagement repository.
func NewEngagementRepository(db *DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// GetClickHistory returns the user's recent notification click timestamps,
// newest first, bounded so one hot user cannot drag a full table scan along.
func (r *EngagementRepository) GetClickHistory(ctx context.Context, userID string) ([]time.Time, error) {
	var clicks []time.Time
	query := `
		SELECT clicked_at FROM notification_clicks
		WHERE user_id = $1
		ORDER BY clicked_at DESC
		LIMIT 500`

	if err := r.db.SelectContext(ctx, &clicks, query, userID); err != nil {
		return nil, errors.NewInternalError("failed to load click history").WithCause(err)
	}
	return clicks, nil
}

// ScheduleRepository persists scheduled notifications.
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

type scheduledRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    string    `db:"user_id"`
	Payload   []byte    `db:"payload"`
	Type      string    `db:"type"`
	Priority  string    `db:"priority"`
	SendAt    time.Time `db:"send_at"`
	Timezone  string    `db:"timezone"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SaveScheduled inserts a pending scheduled notification.
func (r *ScheduleRepository) SaveScheduled(ctx context.Context, n *scheduling.ScheduledNotification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return errors.NewInternalError("failed to encode payload").WithCause(err)
	}

	query := `
		INSERT INTO scheduled_notifications
			(id, user_id, payload, type, priority, send_at, timezone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.UserID, payload, string(n.Type), string(n.Priority),
		n.SendAt.UTC(), n.Timezone, string(n.Status), n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return errors.NewInternalError("failed to save scheduled notification").WithCause(err)
	}
	return nil
}

// FetchDue returns up to limit pending notifications whose sendAt has passed,
// oldest first.
func (r *ScheduleRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*scheduling.ScheduledNotification, error) {
	var rows []scheduledRow
	query := `
		SELECT id, user_id, payload, type, priority, send_at, timezone, status, created_at, updated_at
		FROM scheduled_notifications
		WHERE status = $1 AND send_at <= $2
		ORDER BY send_at ASC
		LIMIT $3`

	if err := r.db.SelectContext(ctx, &rows, query, string(scheduling.StatusPending), now.UTC(), limit); err != nil {
		return nil, errors.NewInternalError("failed to fetch due notifications").WithCause(err)
	}

	due := make([]*scheduling.ScheduledNotification, 0, len(rows))
	for _, row := range rows {
		n := &scheduling.ScheduledNotification{
			ID:        row.ID,
			UserID:    row.UserID,
			Type:      delivery.NotificationType(row.Type),
			Priority:  delivery.Priority(row.Priority),
			SendAt:    row.SendAt,
			Timezone:  row.Timezone,
			Status:    scheduling.Status(row.Status),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &n.Payload); err != nil {
				return nil, errors.NewInternalError("failed to decode payload").WithCause(err)
			}
		}
		due = append(due, n)
	}
	return due, nil
}

// UpdateStatus transitions a scheduled notification.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status scheduling.Status) error {
	query := `UPDATE scheduled_notifications SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return errors.NewInternalError("failed to update scheduled notification").WithCause(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.NewInvalidInputError("scheduled notification not found")
	}
	return nil
}

// Cancel marks a pending notification cancelled so the dispatcher skips it.
// Only pending rows cancel; a record the dispatcher already resolved keeps
// its terminal status.
func (r *ScheduleRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE scheduled_notifications SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query,
		string(scheduling.StatusCancelled), time.Now().UTC(), id, string(scheduling.StatusPending))
	if err != nil {
		return errors.NewInternalError("failed to cancel scheduled notification").WithCause(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.NewInvalidInputError("scheduled notification not found or not pending")
	}
	return nil
}

// ResultRepository is the delivery log.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult appends one cascade outcome to the delivery log.
func (r *ResultRepository) SaveResult(ctx context.Context, result *delivery.DeliveryResult) error {
	attempts, err := json.Marshal(result.Attempts)
	if err != nil {
		return errors.NewInternalError("failed to encode attempts").WithCause(err)
	}

	query := `
		INSERT INTO delivery_results
			(request_id, user_id, success, channel, attempts, total_cost, elapsed_ms, error_type, error, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		result.RequestID, result.UserID, result.Success, string(result.Channel),
		attempts, result.TotalCost, result.Elapsed.Milliseconds(),
		string(result.ErrorType), result.Error, result.CompletedAt.UTC())
	if err != nil {
		return errors.NewInternalError("failed to save delivery result").WithCause(err)
	}
	return nil
}

// InboxRepository stores in-app notifications. Implements channels.InboxStore.
type InboxRepository struct {
	db *DB
}

// NewInboxRepository creates a new inbox repository.
func NewInboxRepository(db *DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// SaveInboxMessage inserts one inbox message.
func (r *InboxRepository) SaveInboxMessage(ctx context.Context, msg *channels.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, user_id, title, body, deep_link, icon, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.Title, msg.Body, msg.DeepLink, msg.Icon, msg.CreatedAt.UTC())
	if err != nil {
		return errors.NewInternalError("failed to save inbox message").WithCause(err)
	}
	return nil
}

// ListInbox returns the user's most recent inbox messages.
func (r *InboxRepository) ListInbox(ctx context.Context, userID string, limit int) ([]*channels.InboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []*channels.InboxMessage
	query := `
		SELECT id, user_id, title, body, deep_link, icon, created_at, read_at
		FROM inbox_messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &messages, query, userID, limit); err != nil {
		return nil, errors.NewInternalError("failed to list inbox messages").WithCause(err)
	}
	return messages, nil
}

// MarkRead stamps a message as read.
func (r *InboxRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE inbox_messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return errors.NewInternalError("failed to mark message read").WithCause(err)
	}
	return nil
}

// RecordClick logs a notification click for engagement optimization.
func (r *EngagementRepository) RecordClick(ctx context.Context, userID string, at time.Time) error {
	query := `INSERT INTO notification_clicks (user_id, clicked_at) VALUES ($1, $2)`

	if _, err := r.db.ExecContext(ctx, query, userID, at.UTC()); err != nil {
		return errors.NewInternalError("failed to record click").WithCause(err)
	}
	return nil
}
