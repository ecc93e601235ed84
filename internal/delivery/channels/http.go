package channels

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/clubsuite/notify/pkg/errors"
)

// classifyStatus maps a provider HTTP status to the delivery error taxonomy.
// 404/410 mean the stored subscription is gone; 429 carries the provider's
// retry hint; 5xx is transient; everything else 4xx is terminal.
func classifyStatus(channel string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return apperrors.NewInvalidTargetError(channel, "target subscription no longer valid")
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(channel, parseRetryAfter(resp))
	case resp.StatusCode >= 500:
		return apperrors.NewTransientError(channel, "provider returned "+resp.Status)
	default:
		return apperrors.NewTerminalError(channel, "provider rejected message with "+resp.Status)
	}
}

// parseRetryAfter reads the Retry-After header in seconds, defaulting to 1s.
func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
