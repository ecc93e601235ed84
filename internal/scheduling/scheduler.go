package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	apperrors "github.com/clubsuite/notify/pkg/errors"
	"github.com/clubsuite/notify/pkg/metrics"
)

// Config holds the scheduler defaults applied when a user has no stored
// preferences.
type Config struct {
	DefaultTimezone string
	QuietHoursStart int
	QuietHoursEnd   int
	MaxPerHour      int
	MaxPerDay       int
}

// DefaultConfig returns the production scheduling defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimezone: "Europe/Rome",
		QuietHoursStart: 22,
		QuietHoursEnd:   8,
		MaxPerHour:      3,
		MaxPerDay:       10,
	}
}

// Scheduler decides when a deferred notification should be sent: timezone
// resolution, frequency caps, quiet hours, and engagement-based hour picking.
type Scheduler struct {
	logger      *zap.Logger
	config      Config
	typeConfigs map[delivery.NotificationType]TypeConfig
	prefs       delivery.PreferencesStore
	engagement  EngagementStore
	frequency   FrequencyStore
	store       ScheduleStore
	metrics     *metrics.Metrics

	// nowFunc is swapped in tests to pin the clock.
	nowFunc func() time.Time
}

// NewScheduler creates a scheduler. The engagement, frequency, and metrics
// collaborators may be nil; the corresponding features degrade gracefully.
func NewScheduler(logger *zap.Logger, config Config, prefs delivery.PreferencesStore, engagement EngagementStore, frequency FrequencyStore, store ScheduleStore, m *metrics.Metrics) *Scheduler {
	if m == nil {
		m = &metrics.Metrics{}
	}
	return &Scheduler{
		logger:      logger,
		config:      config,
		typeConfigs: DefaultTypeConfigs(),
		prefs:       prefs,
		engagement:  engagement,
		frequency:   frequency,
		store:       store,
		metrics:     m,
		nowFunc:     time.Now,
	}
}

// Schedule computes the send timestamp for one user and persists a pending
// record. A frequency-capped user gets a frequency_cap error carrying the
// next hour boundary as the retry hint.
func (s *Scheduler) Schedule(ctx context.Context, userID string, payload delivery.Payload, opts ScheduleOptions) (*ScheduleResult, error) {
	now := s.nowFunc()
	prefs := s.loadPreferences(ctx, userID)
	loc, tzName := s.resolveLocation(prefs)
	localNow := now.In(loc)

	if opts.RespectFrequencyCap {
		if err := s.checkFrequencyCaps(ctx, userID, now); err != nil {
			s.metrics.RecordScheduled(string(opts.Type), "frequency_capped")
			return nil, err
		}
	}

	typeCfg := s.typeConfig(opts.Type)
	critical := opts.Priority == delivery.PriorityCritical || opts.Type == delivery.TypeCritical

	var sendAt time.Time
	switch {
	case critical:
		sendAt = localNow
	case opts.OptimizeForEngagement:
		sendAt = s.engagementSendAt(ctx, userID, localNow, typeCfg)
	default:
		sendAt = staticSendAt(localNow, typeCfg)
	}

	if opts.RespectQuietHours && !critical && !typeCfg.IgnoreQuietHours {
		sendAt = s.postponePastQuietHours(sendAt, prefs)
	}

	// sendAt never precedes the moment it was computed.
	if sendAt.Before(localNow) {
		sendAt = localNow
	}

	record := &ScheduledNotification{
		ID:        uuid.New(),
		UserID:    userID,
		Payload:   payload,
		Type:      opts.Type,
		Priority:  opts.Priority,
		SendAt:    sendAt,
		Timezone:  tzName,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveScheduled(ctx, record); err != nil {
		s.metrics.RecordScheduled(string(opts.Type), "store_error")
		return nil, apperrors.NewInternalError("failed to persist scheduled notification").WithCause(err)
	}

	if s.frequency != nil {
		if err := s.frequency.RecordSend(ctx, userID, now); err != nil {
			s.logger.Warn("failed to record send for frequency capping",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	s.metrics.RecordScheduled(string(opts.Type), "scheduled")
	s.logger.Info("notification scheduled",
		zap.String("user_id", userID),
		zap.String("type", string(opts.Type)),
		zap.Time("send_at", sendAt),
		zap.String("timezone", tzName))

	return &ScheduleResult{
		ID:       record.ID,
		SendAt:   sendAt,
		Timezone: tzName,
		Delay:    sendAt.Sub(localNow),
	}, nil
}

// ScheduleBatch schedules the same payload for many users. Users are grouped
// by resolved timezone and each group shares one static-path sendAt, so a
// campaign costs one timing computation per timezone instead of per user.
func (s *Scheduler) ScheduleBatch(ctx context.Context, userIDs []string, payload delivery.Payload, opts ScheduleOptions) []BatchEntry {
	now := s.nowFunc()
	typeCfg := s.typeConfig(opts.Type)

	type tzGroup struct {
		loc    *time.Location
		sendAt time.Time
	}
	groups := make(map[string]*tzGroup)
	entries := make([]BatchEntry, 0, len(userIDs))

	for _, userID := range userIDs {
		prefs := s.loadPreferences(ctx, userID)
		loc, tzName := s.resolveLocation(prefs)

		group, ok := groups[tzName]
		if !ok {
			localNow := now.In(loc)
			sendAt := staticSendAt(localNow, typeCfg)
			if opts.RespectQuietHours && !typeCfg.IgnoreQuietHours {
				sendAt = s.postponePastQuietHours(sendAt, nil)
			}
			if sendAt.Before(localNow) {
				sendAt = localNow
			}
			group = &tzGroup{loc: loc, sendAt: sendAt}
			groups[tzName] = group
		}

		if opts.RespectFrequencyCap {
			if err := s.checkFrequencyCaps(ctx, userID, now); err != nil {
				entries = append(entries, BatchEntry{UserID: userID, Err: err})
				continue
			}
		}

		record := &ScheduledNotification{
			ID:        uuid.New(),
			UserID:    userID,
			Payload:   payload,
			Type:      opts.Type,
			Priority:  opts.Priority,
			SendAt:    group.sendAt,
			Timezone:  tzName,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.SaveScheduled(ctx, record); err != nil {
			entries = append(entries, BatchEntry{
				UserID: userID,
				Err:    apperrors.NewInternalError("failed to persist scheduled notification").WithCause(err),
			})
			continue
		}
		if s.frequency != nil {
			if err := s.frequency.RecordSend(ctx, userID, now); err != nil {
				s.logger.Warn("failed to record send for frequency capping",
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}
		s.metrics.RecordScheduled(string(opts.Type), "scheduled")
		entries = append(entries, BatchEntry{
			UserID: userID,
			Result: &ScheduleResult{
				ID:       record.ID,
				SendAt:   group.sendAt,
				Timezone: tzName,
				Delay:    group.sendAt.Sub(now.In(group.loc)),
			},
		})
	}
	return entries
}

func (s *Scheduler) typeConfig(t delivery.NotificationType) TypeConfig {
	if cfg, ok := s.typeConfigs[t]; ok {
		return cfg
	}
	return TypeConfig{Immediate: true}
}

// loadPreferences fetches the user's scheduling preferences, failing open to
// nil (defaults) on store errors.
func (s *Scheduler) loadPreferences(ctx context.Context, userID string) *delivery.UserPreferences {
	if s.prefs == nil {
		return nil
	}
	prefs, err := s.prefs.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load scheduling preferences, using defaults",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	return prefs
}

func (s *Scheduler) resolveLocation(prefs *delivery.UserPreferences) (*time.Location, string) {
	tzName := s.config.DefaultTimezone
	if prefs != nil && prefs.Timezone != "" {
		tzName = prefs.Timezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		s.logger.Warn("unknown timezone, falling back to default",
			zap.String("timezone", tzName))
		tzName = s.config.DefaultTimezone
		loc, err = time.LoadLocation(tzName)
		if err != nil {
			return time.UTC, "UTC"
		}
	}
	return loc, tzName
}

// checkFrequencyCaps enforces the trailing hourly and daily caps. Counter
// store errors fail open: a broken counter must not block deliveries.
func (s *Scheduler) checkFrequencyCaps(ctx context.Context, userID string, now time.Time) error {
	if s.frequency == nil {
		return nil
	}

	daily, err := s.frequency.CountSentSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		s.logger.Warn("daily frequency count failed, allowing send",
			zap.String("user_id", userID),
			zap.Error(err))
	} else if s.config.MaxPerDay > 0 && daily >= s.config.MaxPerDay {
		s.metrics.RecordFrequencyCapHit("daily")
		return apperrors.NewFrequencyCapError(nextHourBoundary(now))
	}

	hourly, err := s.frequency.CountSentSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		s.logger.Warn("hourly frequency count failed, allowing send",
			zap.String("user_id", userID),
			zap.Error(err))
	} else if s.config.MaxPerHour > 0 && hourly >= s.config.MaxPerHour {
		s.metrics.RecordFrequencyCapHit("hourly")
		return apperrors.NewFrequencyCapError(nextHourBoundary(now))
	}

	return nil
}

// engagementSendAt picks the hour with the most historical clicks. No history
// falls back to the type's first preferred hour, then to hour 10.
func (s *Scheduler) engagementSendAt(ctx context.Context, userID string, localNow time.Time, typeCfg TypeConfig) time.Time {
	hour := -1
	if s.engagement != nil {
		history, err := s.engagement.GetClickHistory(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to load click history, using static hours",
				zap.String("user_id", userID),
				zap.Error(err))
		} else {
			hour = bestClickHour(history, localNow.Location())
		}
	}
	if hour < 0 {
		if len(typeCfg.PreferredHours) > 0 {
			hour = typeCfg.PreferredHours[0]
		} else {
			hour = 10
		}
	}
	return nextOccurrenceOfHour(localNow, hour)
}

// bestClickHour buckets click timestamps by local hour of day and returns the
// most frequent one. Ties break toward the earlier hour; -1 means no history.
func bestClickHour(history []time.Time, loc *time.Location) int {
	if len(history) == 0 {
		return -1
	}
	var counts [24]int
	for _, t := range history {
		counts[t.In(loc).Hour()]++
	}
	best, bestCount := -1, 0
	for hour := 0; hour < 24; hour++ {
		if counts[hour] > bestCount {
			best, bestCount = hour, counts[hour]
		}
	}
	return best
}

// staticSendAt applies the type's static policy: immediate for delay-zero
// types, otherwise the next upcoming preferred hour, rolling to the next
// day's first hour and skipping weekends when the type asks for it.
func staticSendAt(localNow time.Time, typeCfg TypeConfig) time.Time {
	if typeCfg.Immediate || len(typeCfg.PreferredHours) == 0 {
		return localNow
	}

	day := localNow
	if !typeCfg.SkipWeekends || !isWeekend(day) {
		for _, hour := range typeCfg.PreferredHours {
			candidate := atHour(day, hour)
			if candidate.After(localNow) {
				return candidate
			}
		}
	}
	day = day.AddDate(0, 0, 1)
	for typeCfg.SkipWeekends && isWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}
	return atHour(day, typeCfg.PreferredHours[0])
}

// postponePastQuietHours moves sendAt to the quiet window's end hour when it
// falls inside the window, rolling to the next day if that hour already
// passed. Handles overnight-wrapping windows (start > end).
func (s *Scheduler) postponePastQuietHours(sendAt time.Time, prefs *delivery.UserPreferences) time.Time {
	start, end := s.quietWindow(prefs)
	if !isQuietHour(sendAt.Hour(), start, end) {
		return sendAt
	}
	endToday := atHour(sendAt, end)
	if !endToday.After(sendAt) {
		endToday = endToday.AddDate(0, 0, 1)
	}
	return endToday
}

func (s *Scheduler) quietWindow(prefs *delivery.UserPreferences) (int, int) {
	if prefs != nil && prefs.QuietHoursStart != prefs.QuietHoursEnd {
		return prefs.QuietHoursStart, prefs.QuietHoursEnd
	}
	return s.config.QuietHoursStart, s.config.QuietHoursEnd
}

// isQuietHour reports whether hour falls inside [start, end). A window whose
// start exceeds its end wraps overnight, e.g. 22 to 8 covers 22..23 and 0..7.
func isQuietHour(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func nextOccurrenceOfHour(localNow time.Time, hour int) time.Time {
	candidate := atHour(localNow, hour)
	if candidate.After(localNow) {
		return candidate
	}
	return candidate.AddDate(0, 0, 1)
}

func nextHourBoundary(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}
