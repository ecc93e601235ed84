package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

type dispatchStore struct {
	due      []*ScheduledNotification
	fetchErr error
	statuses map[uuid.UUID]Status
}

func (s *dispatchStore) SaveScheduled(ctx context.Context, n *ScheduledNotification) error {
	return nil
}

func (s *dispatchStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledNotification, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.due, nil
}

func (s *dispatchStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if s.statuses == nil {
		s.statuses = make(map[uuid.UUID]Status)
	}
	s.statuses[id] = status
	return nil
}

type stubSender struct {
	requests []delivery.NotificationRequest
	fail     bool
}

func (s *stubSender) Send(ctx context.Context, req delivery.NotificationRequest) (*delivery.DeliveryResult, error) {
	s.requests = append(s.requests, req)
	if s.fail {
		return &delivery.DeliveryResult{RequestID: req.ID, Success: false},
			apperrors.NewCascadeExhaustedError(3)
	}
	return &delivery.DeliveryResult{RequestID: req.ID, Success: true, Channel: delivery.ChannelPush}, nil
}

func dueNotification() *ScheduledNotification {
	return &ScheduledNotification{
		ID:       uuid.New(),
		UserID:   "user-1",
		Payload:  delivery.Payload{Title: "Class reminder", Body: "Yoga at 18:00"},
		Type:     delivery.TypeTransactional,
		Priority: delivery.PriorityNormal,
		SendAt:   time.Now().Add(-time.Minute),
		Timezone: "Europe/Rome",
		Status:   StatusPending,
	}
}

func TestDispatcher_MarksSentOnSuccess(t *testing.T) {
	n := dueNotification()
	store := &dispatchStore{due: []*ScheduledNotification{n}}
	sender := &stubSender{}
	d := NewDispatcher(zaptest.NewLogger(t), store, sender, nil, "@every 1m", 10)

	d.DispatchDue(context.Background())

	require.Len(t, sender.requests, 1)
	assert.Equal(t, n.ID, sender.requests[0].ID)
	assert.Equal(t, "user-1", sender.requests[0].UserID)
	assert.True(t, sender.requests[0].RespectPreferences)
	assert.Equal(t, StatusSent, store.statuses[n.ID])
}

func TestDispatcher_MarksFailedOnExhaustion(t *testing.T) {
	n := dueNotification()
	store := &dispatchStore{due: []*ScheduledNotification{n}}
	sender := &stubSender{fail: true}
	d := NewDispatcher(zaptest.NewLogger(t), store, sender, nil, "@every 1m", 10)

	d.DispatchDue(context.Background())

	assert.Equal(t, StatusFailed, store.statuses[n.ID])
}

func TestDispatcher_FetchErrorDoesNotPanic(t *testing.T) {
	store := &dispatchStore{fetchErr: apperrors.NewInternalError("db down")}
	sender := &stubSender{}
	d := NewDispatcher(zaptest.NewLogger(t), store, sender, nil, "@every 1m", 10)

	d.DispatchDue(context.Background())

	assert.Empty(t, sender.requests)
}

func TestDispatcher_NoDueNotifications(t *testing.T) {
	store := &dispatchStore{}
	sender := &stubSender{}
	d := NewDispatcher(zaptest.NewLogger(t), store, sender, nil, "@every 1m", 10)

	d.DispatchDue(context.Background())

	assert.Empty(t, sender.requests)
	assert.Empty(t, store.statuses)
}
