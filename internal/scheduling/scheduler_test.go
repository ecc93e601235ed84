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

type stubPrefsStore struct {
	prefs map[string]*delivery.UserPreferences
	err   error
}

func (s *stubPrefsStore) GetPreferences(ctx context.Context, userID string) (*delivery.UserPreferences, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.prefs[userID], nil
}

type stubEngagement struct {
	history []time.Time
	err     error
}

func (s *stubEngagement) GetClickHistory(ctx context.Context, userID string) ([]time.Time, error) {
	return s.history, s.err
}

// stubFrequency answers the daily count for long trailing windows and the
// hourly count for short ones, mirroring the two cap queries.
type stubFrequency struct {
	now      time.Time
	hourly   int
	daily    int
	countErr error
	recorded []time.Time
}

func (s *stubFrequency) CountSentSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	if s.now.Sub(since) > 2*time.Hour {
		return s.daily, nil
	}
	return s.hourly, nil
}

func (s *stubFrequency) RecordSend(ctx context.Context, userID string, at time.Time) error {
	s.recorded = append(s.recorded, at)
	return nil
}

type stubScheduleStore struct {
	saved []*ScheduledNotification
	err   error
}

func (s *stubScheduleStore) SaveScheduled(ctx context.Context, n *ScheduledNotification) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, n)
	return nil
}

func (s *stubScheduleStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledNotification, error) {
	return nil, nil
}

func (s *stubScheduleStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return nil
}

func newTestScheduler(t *testing.T, prefs delivery.PreferencesStore, engagement EngagementStore, frequency FrequencyStore, store ScheduleStore, now time.Time) *Scheduler {
	t.Helper()
	s := NewScheduler(zaptest.NewLogger(t), DefaultConfig(), prefs, engagement, frequency, store, nil)
	s.nowFunc = func() time.Time { return now }
	return s
}

func testPayload() delivery.Payload {
	return delivery.Payload{Title: "Spring offer", Body: "20% off until Sunday"}
}

// romeTime builds an instant at the given local wall clock in Europe/Rome.
func romeTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestIsQuietHour(t *testing.T) {
	tests := []struct {
		hour, start, end int
		quiet            bool
	}{
		{23, 22, 8, true},
		{2, 22, 8, true},
		{9, 22, 8, false},
		{21, 22, 8, false},
		{22, 22, 8, true},
		{8, 22, 8, false},
		{10, 9, 17, true},
		{20, 9, 17, false},
		{9, 9, 17, true},
		{17, 9, 17, false},
		{5, 7, 7, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.quiet, isQuietHour(tt.hour, tt.start, tt.end),
			"hour %d in window %d-%d", tt.hour, tt.start, tt.end)
	}
}

func TestScheduler_PromotionalDefaultsToRomePreferredHours(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 9, 0)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:              delivery.TypePromotional,
		Priority:          delivery.PriorityNormal,
		RespectQuietHours: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", result.Timezone)
	assert.Equal(t, 12, result.SendAt.Hour())
	assert.Equal(t, 10, result.SendAt.Day())
	require.Len(t, store.saved, 1)
	assert.Equal(t, StatusPending, store.saved[0].Status)
}

func TestScheduler_PromotionalRollsToTomorrowAfterLastSlot(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 21, 30)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:              delivery.TypePromotional,
		RespectQuietHours: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 12, result.SendAt.Hour())
	assert.Equal(t, 11, result.SendAt.Day())
}

func TestScheduler_QuietHoursPostponeToWindowEnd(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 23, 0)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:              delivery.TypeTransactional,
		RespectQuietHours: true,
	})

	require.NoError(t, err)
	// 23:00 is inside the default 22-8 window; postponed to 08:00 tomorrow.
	assert.Equal(t, 8, result.SendAt.Hour())
	assert.Equal(t, 11, result.SendAt.Day())
	assert.True(t, result.SendAt.After(now))
}

func TestScheduler_CriticalBypassesQuietHours(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 23, 0)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:              delivery.TypeCritical,
		Priority:          delivery.PriorityCritical,
		RespectQuietHours: true,
	})

	require.NoError(t, err)
	assert.True(t, result.SendAt.Equal(now.In(result.SendAt.Location())))
	assert.Equal(t, time.Duration(0), result.Delay)
}

func TestScheduler_DailyCapRefusesEleventhSend(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	freq := &stubFrequency{now: now, daily: 10, hourly: 0}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, freq, store, now)

	_, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                delivery.TypePromotional,
		RespectFrequencyCap: true,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFrequencyCap))
	assert.Empty(t, store.saved)
	// The retry hint is the next hour boundary.
	appErr := err.(*apperrors.AppError)
	assert.Equal(t, nextHourBoundary(now).Format(time.RFC3339), appErr.Details["next_eligible"])
}

func TestScheduler_HourlyCapRefusesFourthSend(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	freq := &stubFrequency{now: now, daily: 5, hourly: 3}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, freq, store, now)

	_, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                delivery.TypePromotional,
		RespectFrequencyCap: true,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFrequencyCap))
}

func TestScheduler_FrequencyStoreErrorFailsOpen(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	freq := &stubFrequency{now: now, countErr: apperrors.NewInternalError("redis down")}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, freq, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                delivery.TypePromotional,
		RespectFrequencyCap: true,
	})

	// A broken counter store never blocks sends.
	require.NoError(t, err)
	assert.NotNil(t, result)
	require.Len(t, store.saved, 1)
}

func TestScheduler_RecordsSendForCapAccounting(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	freq := &stubFrequency{now: now}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, freq, store, now)

	_, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                delivery.TypePromotional,
		RespectFrequencyCap: true,
	})

	require.NoError(t, err)
	assert.Len(t, freq.recorded, 1)
}

func TestScheduler_EngagementPicksBestClickHour(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 10, 0)
	history := []time.Time{
		romeTime(t, 2026, time.March, 2, 14, 5),
		romeTime(t, 2026, time.March, 3, 14, 40),
		romeTime(t, 2026, time.March, 4, 14, 10),
		romeTime(t, 2026, time.March, 5, 9, 0),
		romeTime(t, 2026, time.March, 6, 9, 30),
	}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, &stubEngagement{history: history}, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                  delivery.TypePromotional,
		OptimizeForEngagement: true,
		RespectQuietHours:     true,
	})

	require.NoError(t, err)
	assert.Equal(t, 14, result.SendAt.Hour())
	assert.Equal(t, 10, result.SendAt.Day())
}

func TestScheduler_EngagementTieBreaksToEarlierHour(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 10, 0)
	history := []time.Time{
		romeTime(t, 2026, time.March, 2, 14, 5),
		romeTime(t, 2026, time.March, 3, 9, 40),
	}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, &stubEngagement{history: history}, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                  delivery.TypePromotional,
		OptimizeForEngagement: true,
	})

	require.NoError(t, err)
	// Hour 9 already passed today, so next occurrence is tomorrow.
	assert.Equal(t, 9, result.SendAt.Hour())
	assert.Equal(t, 11, result.SendAt.Day())
}

func TestScheduler_EngagementNoHistoryFallsBackToPreferredHour(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 10, 0)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, &stubEngagement{}, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:                  delivery.TypePromotional,
		OptimizeForEngagement: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 12, result.SendAt.Hour())
}

func TestScheduler_InformationalSkipsWeekends(t *testing.T) {
	// Friday evening, both preferred hours (10 and 16) already passed.
	now := romeTime(t, 2026, time.March, 13, 20, 0)
	require.Equal(t, time.Friday, now.Weekday())
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type:              delivery.TypeInformational,
		RespectQuietHours: true,
	})

	require.NoError(t, err)
	assert.Equal(t, time.Monday, result.SendAt.Weekday())
	assert.Equal(t, 10, result.SendAt.Hour())
}

func TestScheduler_UserTimezonePreferenceWins(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 9, 0)
	prefs := &stubPrefsStore{prefs: map[string]*delivery.UserPreferences{
		"user-ny": {UserID: "user-ny", Timezone: "America/New_York"},
	}}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, prefs, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-ny", testPayload(), ScheduleOptions{
		Type: delivery.TypePromotional,
	})

	require.NoError(t, err)
	assert.Equal(t, "America/New_York", result.Timezone)
	assert.Equal(t, 12, result.SendAt.Hour())
	assert.Equal(t, "America/New_York", result.SendAt.Location().String())
}

func TestScheduler_UnknownTimezoneFallsBackToDefault(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 9, 0)
	prefs := &stubPrefsStore{prefs: map[string]*delivery.UserPreferences{
		"user-1": {UserID: "user-1", Timezone: "Mars/Olympus_Mons"},
	}}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, prefs, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type: delivery.TypePromotional,
	})

	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", result.Timezone)
}

func TestScheduler_SendAtNeverRetroactive(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	result, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type: delivery.TypeTransactional,
	})

	require.NoError(t, err)
	assert.False(t, result.SendAt.Before(now))
}

func TestScheduler_StoreErrorSurfacesAsInternal(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 14, 20)
	store := &stubScheduleStore{err: apperrors.NewInternalError("insert failed")}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, nil, store, now)

	_, err := s.Schedule(context.Background(), "user-1", testPayload(), ScheduleOptions{
		Type: delivery.TypePromotional,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
}

func TestScheduler_BatchGroupsByTimezone(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 9, 0)
	prefs := &stubPrefsStore{prefs: map[string]*delivery.UserPreferences{
		"user-ny": {UserID: "user-ny", Timezone: "America/New_York"},
	}}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, prefs, nil, nil, store, now)

	entries := s.ScheduleBatch(context.Background(), []string{"rome-1", "rome-2", "user-ny"}, testPayload(), ScheduleOptions{
		Type:              delivery.TypePromotional,
		RespectQuietHours: true,
	})

	require.Len(t, entries, 3)
	for _, e := range entries {
		require.NoError(t, e.Err)
		require.NotNil(t, e.Result)
	}

	// Same timezone shares one computed sendAt; another timezone gets its own.
	assert.True(t, entries[0].Result.SendAt.Equal(entries[1].Result.SendAt))
	assert.False(t, entries[0].Result.SendAt.Equal(entries[2].Result.SendAt))
	assert.Equal(t, "America/New_York", entries[2].Result.Timezone)
	assert.Len(t, store.saved, 3)
}

func TestScheduler_BatchSkipsCappedUsers(t *testing.T) {
	now := romeTime(t, 2026, time.March, 10, 9, 0)
	freq := &stubFrequency{now: now, daily: 10}
	store := &stubScheduleStore{}
	s := newTestScheduler(t, &stubPrefsStore{}, nil, freq, store, now)

	entries := s.ScheduleBatch(context.Background(), []string{"user-1"}, testPayload(), ScheduleOptions{
		Type:                delivery.TypePromotional,
		RespectFrequencyCap: true,
	})

	require.Len(t, entries, 1)
	require.Error(t, entries[0].Err)
	assert.True(t, apperrors.IsType(entries[0].Err, apperrors.ErrorTypeFrequencyCap))
	assert.Empty(t, store.saved)
}

func TestBestClickHour(t *testing.T) {
	loc := time.UTC
	assert.Equal(t, -1, bestClickHour(nil, loc))

	history := []time.Time{
		time.Date(2026, 3, 1, 18, 0, 0, 0, loc),
		time.Date(2026, 3, 2, 18, 30, 0, 0, loc),
		time.Date(2026, 3, 3, 7, 0, 0, 0, loc),
	}
	assert.Equal(t, 18, bestClickHour(history, loc))
}
