package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the delivery core
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	DeliveriesTotal  *prometheus.CounterVec
	AttemptsTotal    *prometheus.CounterVec
	AttemptLatency   *prometheus.HistogramVec
	CascadeDuration  *prometheus.HistogramVec
	DeliveryCost     *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	BreakerTrips     *prometheus.CounterVec

	// Scheduling metrics
	ScheduledTotal    *prometheus.CounterVec
	FrequencyCapHits  *prometheus.CounterVec
	DispatchedTotal   *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "clubsuite",
		Subsystem: "notify",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "deliveries_total",
				Help:      "Total number of cascade runs by outcome",
			},
			[]string{"type", "outcome", "winning_channel"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "delivery_attempts_total",
				Help:      "Total number of per-channel delivery attempts",
			},
			[]string{"channel", "outcome", "error_type"},
		),
		AttemptLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "delivery_attempt_latency_seconds",
				Help:      "Per-attempt channel send latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		CascadeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cascade_duration_seconds",
				Help:      "End-to-end cascade duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		DeliveryCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "delivery_cost_total",
				Help:      "Accumulated delivery cost by channel",
			},
			[]string{"channel"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per channel (0=closed, 1=open, 2=half-open)",
			},
			[]string{"channel"},
		),
		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker open transitions",
			},
			[]string{"channel"},
		),
		ScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "scheduled_total",
				Help:      "Total number of scheduling decisions",
			},
			[]string{"type", "result"},
		),
		FrequencyCapHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "frequency_cap_hits_total",
				Help:      "Total number of schedule refusals due to frequency caps",
			},
			[]string{"cap"},
		),
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "dispatched_total",
				Help:      "Total number of scheduled notifications dispatched",
			},
			[]string{"status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "error_type"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DeliveriesTotal,
		m.AttemptsTotal,
		m.AttemptLatency,
		m.CascadeDuration,
		m.DeliveryCost,
		m.BreakerState,
		m.BreakerTrips,
		m.ScheduledTotal,
		m.FrequencyCapHits,
		m.DispatchedTotal,
		m.ErrorsTotal,
	)

	return m
}

// RecordDelivery records the outcome of one cascade run
func (m *Metrics) RecordDelivery(notificationType, outcome, winningChannel string, duration time.Duration) {
	if m.DeliveriesTotal == nil {
		return
	}

	m.DeliveriesTotal.WithLabelValues(notificationType, outcome, winningChannel).Inc()
	m.CascadeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAttempt records a single per-channel attempt
func (m *Metrics) RecordAttempt(channel, outcome, errorType string, latency time.Duration, cost float64) {
	if m.AttemptsTotal == nil {
		return
	}

	m.AttemptsTotal.WithLabelValues(channel, outcome, errorType).Inc()
	m.AttemptLatency.WithLabelValues(channel).Observe(latency.Seconds())
	if cost > 0 {
		m.DeliveryCost.WithLabelValues(channel).Add(cost)
	}
}

// UpdateBreakerState updates the breaker state gauge for a channel
func (m *Metrics) UpdateBreakerState(channel string, state int) {
	if m.BreakerState == nil {
		return
	}

	m.BreakerState.WithLabelValues(channel).Set(float64(state))
}

// RecordBreakerTrip records an open transition for a channel
func (m *Metrics) RecordBreakerTrip(channel string) {
	if m.BreakerTrips == nil {
		return
	}

	m.BreakerTrips.WithLabelValues(channel).Inc()
}

// RecordScheduled records a scheduling decision
func (m *Metrics) RecordScheduled(notificationType, result string) {
	if m.ScheduledTotal == nil {
		return
	}

	m.ScheduledTotal.WithLabelValues(notificationType, result).Inc()
}

// RecordFrequencyCapHit records a schedule refusal due to a cap
func (m *Metrics) RecordFrequencyCapHit(cap string) {
	if m.FrequencyCapHits == nil {
		return
	}

	m.FrequencyCapHits.WithLabelValues(cap).Inc()
}

// RecordDispatched records a dispatched scheduled notification
func (m *Metrics) RecordDispatched(status string) {
	if m.DispatchedTotal == nil {
		return
	}

	m.DispatchedTotal.WithLabelValues(status).Inc()
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if m.HTTPRequestsTotal == nil {
			return
		}

		statusStr := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusStr).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath(), statusStr).Observe(duration.Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
