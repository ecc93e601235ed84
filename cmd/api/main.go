package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/api"
	"github.com/clubsuite/notify/internal/delivery"
	"github.com/clubsuite/notify/internal/delivery/channels"
	"github.com/clubsuite/notify/internal/scheduling"
	"github.com/clubsuite/notify/internal/store"
	"github.com/clubsuite/notify/internal/templates"
	"github.com/clubsuite/notify/pkg/config"
	"github.com/clubsuite/notify/pkg/errors"
	"github.com/clubsuite/notify/pkg/logging"
	"github.com/clubsuite/notify/pkg/metrics"
	"github.com/clubsuite/notify/pkg/resilience"
)

func main() {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "clubsuite-notify",
		Version:     "1.0.0",
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	var logger *zap.Logger
	if cfg.Logging.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	db, err := store.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Health(ctx); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}
	cancel()
	logger.Info("database connection established")

	redisClient, err := store.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("redis connection established")

	m := metrics.NewMetrics(metrics.DefaultConfig())

	prefsRepo := store.NewPreferencesRepository(db)
	engagementRepo := store.NewEngagementRepository(db)
	scheduleRepo := store.NewScheduleRepository(db)
	resultRepo := store.NewResultRepository(db)
	inboxRepo := store.NewInboxRepository(db)
	frequencyStore := store.NewRedisFrequencyStore(redisClient)

	cascadeCfg := delivery.CascadeConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:       cfg.Delivery.MaxRetryAttempts,
			InitialDelay:      cfg.Delivery.RetryBaseDelay,
			MaxDelay:          cfg.Delivery.RetryMaxDelay,
			BackoffMultiplier: cfg.Delivery.RetryMultiplier,
			Jitter:            true,
			RetryableErrors:   errors.IsRetryable,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Delivery.BreakerThreshold,
			MinSamples:       uint32(cfg.Delivery.BreakerMinSamples),
			Window:           cfg.Delivery.BreakerWindow,
			Cooldown:         cfg.Delivery.BreakerCooldown,
			TrialRequests:    uint32(cfg.Delivery.BreakerTrialCloses),
		},
		ChannelTimeout:   cfg.Delivery.ChannelTimeout,
		MaxTotalAttempts: cfg.Delivery.MaxTotalAttempts,
	}

	recorder := delivery.NewRecorder(cfg.Delivery.MetricsWindowSize)
	cascade := delivery.NewCascade(logger.Named("cascade"), cascadeCfg, prefsRepo, recorder, m)
	cascade.RegisterSender(channels.NewPushSender(logger.Named("push"), cfg.Channels.PushWebhookURL, cfg.Channels.PushCost))
	cascade.RegisterSender(channels.NewEmailSender(logger.Named("email"), channels.EmailConfig{
		Server:   cfg.Channels.SMTPServer,
		Port:     cfg.Channels.SMTPPort,
		Username: cfg.Channels.SMTPUsername,
		Password: cfg.Channels.SMTPPassword,
		From:     cfg.Channels.EmailFrom,
		Cost:     cfg.Channels.EmailCost,
	}, prefsRepo))
	cascade.RegisterSender(channels.NewSMSSender(logger.Named("sms"), channels.SMSConfig{
		APIURL: cfg.Channels.SMSAPIURL,
		APIKey: cfg.Channels.SMSAPIKey,
		Cost:   cfg.Channels.SMSCost,
	}, prefsRepo))
	cascade.RegisterSender(channels.NewInAppSender(logger.Named("in_app"), inboxRepo, cfg.Channels.InAppCost))

	scheduler := scheduling.NewScheduler(logger.Named("scheduler"), scheduling.Config{
		DefaultTimezone: cfg.Scheduling.DefaultTimezone,
		QuietHoursStart: cfg.Scheduling.QuietHoursStart,
		QuietHoursEnd:   cfg.Scheduling.QuietHoursEnd,
		MaxPerHour:      cfg.Scheduling.MaxPerHour,
		MaxPerDay:       cfg.Scheduling.MaxPerDay,
	}, prefsRepo, engagementRepo, frequencyStore, scheduleRepo, m)

	dispatcher := scheduling.NewDispatcher(logger.Named("dispatcher"), scheduleRepo, cascade, m,
		cfg.Scheduling.DispatchSpec, cfg.Scheduling.DispatchBatchSize)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}

	renderer := templates.NewRenderer(logger.Named("templates"), templates.DefaultCatalog())
	handler := api.NewNotificationHandler(logger.Named("api"), cascade, scheduler, renderer, resultRepo, scheduleRepo, inboxRepo)
	health := api.NewHealthHandler(db, redisClient)
	router := api.NewRouter(cfg, logger.Named("http"), m, handler, health)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting API server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
