package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/clubsuite/notify/pkg/errors"
	"github.com/clubsuite/notify/pkg/metrics"
	"github.com/clubsuite/notify/pkg/resilience"
)

// CascadeConfig tunes the orchestrator and its per-channel machinery.
type CascadeConfig struct {
	// Retry is applied to each channel's attempt sequence.
	Retry resilience.RetryConfig
	// Breaker is the per-channel breaker template; Name is set per channel.
	Breaker resilience.CircuitBreakerConfig
	// ChannelTimeout is the overall deadline for one channel's attempt
	// sequence, retries included.
	ChannelTimeout time.Duration
	// MaxTotalAttempts bounds attempts across all channels in one run.
	MaxTotalAttempts int
}

// DefaultCascadeConfig returns the production defaults.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Retry: resilience.DefaultRetryConfig(),
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 0.5,
			MinSamples:       10,
			Window:           time.Minute,
			Cooldown:         30 * time.Second,
			TrialRequests:    2,
		},
		ChannelTimeout:   30 * time.Second,
		MaxTotalAttempts: 12,
	}
}

// Cascade tries channels in priority order until one succeeds. Each channel
// gets its own circuit breaker and retry sequence; a later channel is never
// attempted before the earlier one's full attempt sequence has terminated.
type Cascade struct {
	logger   *zap.Logger
	config   CascadeConfig
	prefs    PreferencesStore
	recorder *Recorder
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	senders  map[Channel]ChannelSender
	breakers map[Channel]*resilience.CircuitBreaker
}

// NewCascade creates a new cascade orchestrator. prefs may be nil when user
// preferences are not consulted.
func NewCascade(logger *zap.Logger, config CascadeConfig, prefs PreferencesStore, recorder *Recorder, m *metrics.Metrics) *Cascade {
	if m == nil {
		m = &metrics.Metrics{}
	}
	if recorder == nil {
		recorder = NewRecorder(0)
	}
	return &Cascade{
		logger:   logger,
		config:   config,
		prefs:    prefs,
		recorder: recorder,
		metrics:  m,
		senders:  make(map[Channel]ChannelSender),
		breakers: make(map[Channel]*resilience.CircuitBreaker),
	}
}

// RegisterSender registers a sender and builds the channel's breaker. Each
// cascade instance holds its own breakers, so tests construct isolated
// instances instead of sharing process-wide state.
func (c *Cascade) RegisterSender(sender ChannelSender) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := sender.Channel()
	c.senders[ch] = sender

	breakerCfg := c.config.Breaker
	breakerCfg.Name = string(ch)
	prev := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		c.metrics.UpdateBreakerState(name, int(to))
		if to == resilience.StateOpen {
			c.metrics.RecordBreakerTrip(name)
		}
		if prev != nil {
			prev(name, from, to)
		}
	}
	c.breakers[ch] = resilience.NewCircuitBreaker(breakerCfg)
}

// BreakerState returns the breaker snapshot for a channel.
func (c *Cascade) BreakerState(ch Channel) (resilience.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cb, ok := c.breakers[ch]
	if !ok {
		return resilience.Snapshot{}, false
	}
	return cb.GetState(), true
}

// BreakerStates returns snapshots for every registered channel.
func (c *Cascade) BreakerStates() map[Channel]resilience.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Channel]resilience.Snapshot, len(c.breakers))
	for ch, cb := range c.breakers {
		out[ch] = cb.GetState()
	}
	return out
}

// Metrics returns the rolling channel metrics recorder.
func (c *Cascade) Metrics() *Recorder {
	return c.recorder
}

// Send runs the cascade for one request. The returned DeliveryResult is
// always non-nil and carries the full attempt history; on failure the error
// is also folded into the result so callers can persist it as-is.
func (c *Cascade) Send(ctx context.Context, req NotificationRequest) (*DeliveryResult, error) {
	start := time.Now()

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	result := &DeliveryResult{
		RequestID: req.ID,
		UserID:    req.UserID,
		Attempts:  []DeliveryAttempt{},
	}

	finish := func(err error) (*DeliveryResult, error) {
		result.Elapsed = time.Since(start)
		result.CompletedAt = time.Now()

		outcome := "success"
		if err != nil {
			outcome = "failure"
			result.Error = err.Error()
			result.ErrorType = apperrors.GetType(err)
		}
		c.metrics.RecordDelivery(string(req.Type), outcome, string(result.Channel), result.Elapsed)
		return result, err
	}

	// Missing target or payload is terminal and counts zero attempts.
	if req.UserID == "" {
		return finish(apperrors.NewInvalidInputError("missing target user"))
	}
	if req.Payload.Empty() {
		return finish(apperrors.NewInvalidInputError("missing payload"))
	}

	var prefs *UserPreferences
	if req.RespectPreferences && c.prefs != nil {
		p, err := c.prefs.GetPreferences(ctx, req.UserID)
		if err != nil {
			// Graceful degradation: a broken profile store must not block
			// delivery, so the cascade proceeds as if no opt-outs exist.
			c.logger.Warn("preferences lookup failed, proceeding without opt-outs",
				zap.String("user_id", req.UserID),
				zap.Error(err))
		} else {
			prefs = p
		}
	}

	order := req.Channels
	if len(order) == 0 {
		order = DefaultChannelOrder(req.Type)
	}

	var remaining *float64
	if req.MaxCost != nil {
		budget := *req.MaxCost
		remaining = &budget
	}

	totalAttempts := 0

	for _, ch := range order {
		if totalAttempts >= c.config.MaxTotalAttempts {
			c.logger.Warn("cascade attempt budget exhausted",
				zap.String("user_id", req.UserID),
				zap.Int("attempts", totalAttempts))
			break
		}

		c.mu.RLock()
		sender, registered := c.senders[ch]
		breaker := c.breakers[ch]
		c.mu.RUnlock()

		if !registered {
			c.logger.Debug("no sender registered for channel, skipping",
				zap.String("channel", string(ch)))
			continue
		}

		// Opt-outs and the cost ceiling skip the channel without an attempt.
		if req.RespectPreferences && prefs.OptedOut(ch) {
			c.logger.Debug("channel disabled by user preferences",
				zap.String("user_id", req.UserID),
				zap.String("channel", string(ch)))
			continue
		}
		if remaining != nil && sender.CostPerMessage() > *remaining {
			c.logger.Debug("channel would exceed cost ceiling, skipping",
				zap.String("channel", string(ch)),
				zap.Float64("cost_per_message", sender.CostPerMessage()),
				zap.Float64("remaining_budget", *remaining))
			continue
		}

		if !breaker.Allow() {
			cbErr := apperrors.NewCircuitOpenError(string(ch))
			result.Attempts = append(result.Attempts, DeliveryAttempt{
				Channel:   ch,
				Timestamp: time.Now(),
				Success:   false,
				LatencyMs: 0,
				ErrorType: apperrors.ErrorTypeCircuitOpen,
				Error:     cbErr.Error(),
			})
			c.metrics.RecordAttempt(string(ch), "failure", string(apperrors.ErrorTypeCircuitOpen), 0, 0)
			continue
		}

		err := c.sendViaChannel(ctx, req, sender, result, remaining, &totalAttempts)
		if err == nil {
			breaker.RecordSuccess()
			c.metrics.UpdateBreakerState(string(ch), int(breaker.State()))

			result.Success = true
			result.Channel = ch
			c.logger.Info("notification delivered",
				zap.String("user_id", req.UserID),
				zap.String("channel", string(ch)),
				zap.Int("attempts", len(result.Attempts)),
				zap.Float64("total_cost", result.TotalCost))
			return finish(nil)
		}

		breaker.RecordFailure()
		c.metrics.UpdateBreakerState(string(ch), int(breaker.State()))

		c.logger.Warn("channel exhausted, falling through",
			zap.String("user_id", req.UserID),
			zap.String("channel", string(ch)),
			zap.Error(err))
	}

	return finish(apperrors.NewCascadeExhaustedError(len(result.Attempts)))
}

// sendViaChannel runs one channel's full retry sequence, recording every
// attempt including intermediate retries.
func (c *Cascade) sendViaChannel(ctx context.Context, req NotificationRequest, sender ChannelSender, result *DeliveryResult, remaining *float64, totalAttempts *int) error {
	ch := sender.Channel()

	chCtx, cancel := context.WithTimeout(ctx, c.config.ChannelTimeout)
	defer cancel()

	retryCfg := c.config.Retry
	if left := c.config.MaxTotalAttempts - *totalAttempts; retryCfg.MaxAttempts > left {
		retryCfg.MaxAttempts = left
	}

	retrier := resilience.NewRetrier(retryCfg)
	made, err := retrier.Execute(chCtx, func(attemptCtx context.Context) error {
		attemptStart := time.Now()
		receipt, sendErr := sender.Send(attemptCtx, req.UserID, req.Payload)
		latency := time.Since(attemptStart)

		attempt := DeliveryAttempt{
			Channel:   ch,
			Timestamp: attemptStart,
			Success:   sendErr == nil,
			LatencyMs: latency.Milliseconds(),
			Cost:      receipt.Cost,
		}
		if sendErr != nil {
			attempt.ErrorType = apperrors.GetType(sendErr)
			attempt.Error = sendErr.Error()
		}

		result.Attempts = append(result.Attempts, attempt)
		result.TotalCost += receipt.Cost
		if remaining != nil {
			*remaining -= receipt.Cost
		}

		outcome := "success"
		if sendErr != nil {
			outcome = "failure"
		}
		c.recorder.Record(ch, sendErr == nil, latency)
		c.metrics.RecordAttempt(string(ch), outcome, string(attempt.ErrorType), latency, receipt.Cost)

		return sendErr
	})

	*totalAttempts += made
	return err
}
