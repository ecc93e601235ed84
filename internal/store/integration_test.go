//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubsuite/notify/internal/delivery"
	"github.com/clubsuite/notify/internal/scheduling"
	"github.com/clubsuite/notify/pkg/config"
	apperrors "github.com/clubsuite/notify/pkg/errors"
)

// TestStoreIntegration exercises the repositories against a real database.
// Run with: INTEGRATION_TESTS=1 go test -tags=integration ./internal/store
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}

	cfg := &config.DatabaseConfig{
		Host:            getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:            5432,
		Name:            getEnvOrDefault("TEST_DB_NAME", "clubsuite_notify_test"),
		User:            getEnvOrDefault("TEST_DB_USER", "clubsuite"),
		Password:        getEnvOrDefault("TEST_DB_PASSWORD", ""),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	migrator, err := NewMigrator(cfg, "../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	migrator.Close()

	db, err := NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	t.Run("PreferencesColumnDefaultDecodes", func(t *testing.T) {
		testPreferencesColumnDefault(t, db)
	})
	t.Run("CancelOnlyPending", func(t *testing.T) {
		testCancelOnlyPending(t, db)
	})
}

// A row created with only the column defaults must read back as "no
// opt-outs", never as a decode failure.
func testPreferencesColumnDefault(t *testing.T, db *DB) {
	ctx := context.Background()
	userID := "it-prefs-" + uuid.NewString()

	_, err := db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, timezone, quiet_hours_start, quiet_hours_end)
		VALUES ($1, 'Europe/Rome', 22, 8)`, userID)
	require.NoError(t, err)

	repo := NewPreferencesRepository(db)
	prefs, err := repo.GetPreferences(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.Equal(t, "Europe/Rome", prefs.Timezone)
	assert.Empty(t, prefs.ChannelOptOuts)
}

func testCancelOnlyPending(t *testing.T, db *DB) {
	ctx := context.Background()
	repo := NewScheduleRepository(db)

	save := func(t *testing.T) uuid.UUID {
		t.Helper()
		n := &scheduling.ScheduledNotification{
			ID:        uuid.New(),
			UserID:    "it-cancel-" + uuid.NewString(),
			Payload:   delivery.Payload{Title: "Reminder", Body: "Class at 18:00"},
			Type:      delivery.TypeInformational,
			Priority:  delivery.PriorityNormal,
			SendAt:    time.Now().Add(time.Hour),
			Timezone:  "Europe/Rome",
			Status:    scheduling.StatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, repo.SaveScheduled(ctx, n))
		return n.ID
	}

	status := func(t *testing.T, id uuid.UUID) string {
		t.Helper()
		var s string
		require.NoError(t, db.GetContext(ctx, &s,
			`SELECT status FROM scheduled_notifications WHERE id = $1`, id))
		return s
	}

	t.Run("pending cancels", func(t *testing.T) {
		id := save(t)
		require.NoError(t, repo.Cancel(ctx, id))
		assert.Equal(t, string(scheduling.StatusCancelled), status(t, id))
	})

	t.Run("sent stays sent", func(t *testing.T) {
		id := save(t)
		require.NoError(t, repo.UpdateStatus(ctx, id, scheduling.StatusSent))

		err := repo.Cancel(ctx, id)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidInput))
		assert.Equal(t, string(scheduling.StatusSent), status(t, id))
	})
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
