package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/pkg/config"
	"github.com/clubsuite/notify/pkg/metrics"
)

// NewRouter creates and configures the API router.
func NewRouter(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, handler *NotificationHandler, health *HealthHandler) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	if m != nil {
		router.Use(m.PrometheusMiddleware())
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.GET("/health", health.Check)

	v1 := router.Group("/api/v1")
	{
		notifications := v1.Group("/notifications")
		{
			notifications.POST("/send", handler.SendNotification)
			notifications.POST("/schedule", handler.ScheduleNotification)
			notifications.POST("/schedule/batch", handler.ScheduleBatch)
		}

		v1.POST("/schedules/:id/cancel", handler.CancelSchedule)

		channels := v1.Group("/channels")
		{
			channels.GET("/breakers", handler.GetBreakerStates)
			channels.GET("/metrics", handler.GetChannelMetrics)
		}

		v1.GET("/users/:id/inbox", handler.GetInbox)
		v1.POST("/inbox/:id/read", handler.MarkInboxRead)
	}

	return router
}
