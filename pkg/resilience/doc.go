// Package resilience provides the fault isolation primitives for the
// notification delivery core: a per-channel circuit breaker and a retry
// engine with exponential backoff.
//
// # Circuit Breaker Pattern
//
// The circuit breaker prevents hammering a failing channel by monitoring the
// failure rate over a bounded rolling window and short-circuiting attempts
// while the channel is unhealthy.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "sms",
//		FailureThreshold: 0.5,
//		MinSamples:       10,
//		Window:           time.Minute,
//		Cooldown:         30 * time.Second,
//	})
//
//	if cb.Allow() {
//		err := provider.Send(ctx, msg)
//		if err != nil {
//			cb.RecordFailure()
//		} else {
//			cb.RecordSuccess()
//		}
//	}
//
// # Retry with Exponential Backoff
//
// The retrier automatically retries transient failures with exponential
// backoff and jitter. Rate-limited errors wait the provider-suggested delay
// instead of the computed backoff; invalid-target and terminal errors stop
// immediately. The attempt count is always returned so callers can keep a
// full attempt history.
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	attempts, err := retrier.Execute(ctx, func(ctx context.Context) error {
//		return sender.Send(ctx, target, payload)
//	})
//
// The package is thread-safe and designed for many concurrent cascade
// invocations against the same channels.
package resilience
