package ports

import (
	"context"
	"time"
)

// RateDecision is the outcome of a rate limit check
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitStore keeps sliding windows of request timestamps per key
type RateLimitStore interface {
	// Allow records a request at now when the window has room and reports the decision.
	// Rejected requests are not recorded.
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateDecision, error)

	// Close releases background resources
	Close() error
}
