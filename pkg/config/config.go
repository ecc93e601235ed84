package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Channels   ChannelsConfig   `json:"channels"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DeliveryConfig tunes the cascade, retry and breaker behavior
type DeliveryConfig struct {
	MaxRetryAttempts   int           `json:"max_retry_attempts"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay"`
	RetryMaxDelay      time.Duration `json:"retry_max_delay"`
	RetryMultiplier    float64       `json:"retry_multiplier"`
	ChannelTimeout     time.Duration `json:"channel_timeout"`
	MaxTotalAttempts   int           `json:"max_total_attempts"`
	BreakerMinSamples  int           `json:"breaker_min_samples"`
	BreakerThreshold   float64       `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"breaker_cooldown"`
	BreakerWindow      time.Duration `json:"breaker_window"`
	BreakerTrialCloses int           `json:"breaker_trial_closes"`
	MetricsWindowSize  int           `json:"metrics_window_size"`
}

// SchedulingConfig holds scheduler defaults
type SchedulingConfig struct {
	DefaultTimezone   string `json:"default_timezone"`
	QuietHoursStart   int    `json:"quiet_hours_start"`
	QuietHoursEnd     int    `json:"quiet_hours_end"`
	MaxPerHour        int    `json:"max_per_hour"`
	MaxPerDay         int    `json:"max_per_day"`
	DispatchSpec      string `json:"dispatch_spec"`
	DispatchBatchSize int    `json:"dispatch_batch_size"`
}

// ChannelsConfig configures the reference channel senders
type ChannelsConfig struct {
	PushWebhookURL string  `json:"push_webhook_url"`
	PushCost       float64 `json:"push_cost"`
	SMTPServer     string  `json:"smtp_server"`
	SMTPPort       int     `json:"smtp_port"`
	SMTPUsername   string  `json:"smtp_username"`
	SMTPPassword   string  `json:"smtp_password"`
	EmailFrom      string  `json:"email_from"`
	EmailCost      float64 `json:"email_cost"`
	SMSAPIURL      string  `json:"sms_api_url"`
	SMSAPIKey      string  `json:"sms_api_key"`
	SMSCost        float64 `json:"sms_cost"`
	InAppCost      float64 `json:"in_app_cost"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			AllowedOrigins: getEnvStringSlice("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "clubsuite_notify"),
			User:            getEnvString("DB_USER", "clubsuite"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Delivery: DeliveryConfig{
			MaxRetryAttempts:   getEnvInt("DELIVERY_MAX_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:     getEnvDuration("DELIVERY_RETRY_BASE_DELAY", 100*time.Millisecond),
			RetryMaxDelay:      getEnvDuration("DELIVERY_RETRY_MAX_DELAY", 30*time.Second),
			RetryMultiplier:    getEnvFloat("DELIVERY_RETRY_MULTIPLIER", 2.0),
			ChannelTimeout:     getEnvDuration("DELIVERY_CHANNEL_TIMEOUT", 30*time.Second),
			MaxTotalAttempts:   getEnvInt("DELIVERY_MAX_TOTAL_ATTEMPTS", 12),
			BreakerMinSamples:  getEnvInt("BREAKER_MIN_SAMPLES", 10),
			BreakerThreshold:   getEnvFloat("BREAKER_THRESHOLD", 0.5),
			BreakerCooldown:    getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
			BreakerWindow:      getEnvDuration("BREAKER_WINDOW", time.Minute),
			BreakerTrialCloses: getEnvInt("BREAKER_TRIAL_CLOSES", 2),
			MetricsWindowSize:  getEnvInt("DELIVERY_METRICS_WINDOW_SIZE", 1000),
		},
		Scheduling: SchedulingConfig{
			DefaultTimezone:   getEnvString("SCHED_DEFAULT_TIMEZONE", "Europe/Rome"),
			QuietHoursStart:   getEnvInt("SCHED_QUIET_HOURS_START", 22),
			QuietHoursEnd:     getEnvInt("SCHED_QUIET_HOURS_END", 8),
			MaxPerHour:        getEnvInt("SCHED_MAX_PER_HOUR", 3),
			MaxPerDay:         getEnvInt("SCHED_MAX_PER_DAY", 10),
			DispatchSpec:      getEnvString("SCHED_DISPATCH_SPEC", "@every 1m"),
			DispatchBatchSize: getEnvInt("SCHED_DISPATCH_BATCH_SIZE", 100),
		},
		Channels: ChannelsConfig{
			PushWebhookURL: getEnvString("PUSH_WEBHOOK_URL", ""),
			PushCost:       getEnvFloat("PUSH_COST", 0),
			SMTPServer:     getEnvString("SMTP_SERVER", ""),
			SMTPPort:       getEnvInt("SMTP_PORT", 587),
			SMTPUsername:   getEnvString("SMTP_USERNAME", ""),
			SMTPPassword:   getEnvString("SMTP_PASSWORD", ""),
			EmailFrom:      getEnvString("EMAIL_FROM", "noreply@clubsuite.io"),
			EmailCost:      getEnvFloat("EMAIL_COST", 0.0001),
			SMSAPIURL:      getEnvString("SMS_API_URL", ""),
			SMSAPIKey:      getEnvString("SMS_API_KEY", ""),
			SMSCost:        getEnvFloat("SMS_COST", 0.05),
			InAppCost:      getEnvFloat("IN_APP_COST", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Delivery.BreakerThreshold <= 0 || c.Delivery.BreakerThreshold > 1 {
		return fmt.Errorf("breaker threshold must be in (0, 1]")
	}

	if c.Scheduling.QuietHoursStart < 0 || c.Scheduling.QuietHoursStart > 23 ||
		c.Scheduling.QuietHoursEnd < 0 || c.Scheduling.QuietHoursEnd > 23 {
		return fmt.Errorf("quiet hours must be within 0-23")
	}

	if c.Scheduling.MaxPerHour <= 0 || c.Scheduling.MaxPerDay <= 0 {
		return fmt.Errorf("frequency caps must be positive")
	}

	return nil
}

// DatabaseURL returns the database connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
