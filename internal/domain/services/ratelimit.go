package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// RateLimiter applies a sliding window limit per client key
type RateLimiter struct {
	store  ports.RateLimitStore
	limit  int
	window time.Duration
	clock  ports.TimeProvider
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(store ports.RateLimitStore, limit int, window time.Duration, clock ports.TimeProvider) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = ports.NewRealTimeProvider()
	}

	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// Allow records a request for key. A rejected request returns the decision together
// with a *entities.RateLimitError.
func (r *RateLimiter) Allow(ctx context.Context, key string) (ports.RateDecision, error) {
	decision, err := r.store.Allow(ctx, key, r.limit, r.window, r.clock.Now())
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("checking rate limit: %w", err)
	}

	if !decision.Allowed {
		return decision, &entities.RateLimitError{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt,
		}
	}

	return decision, nil
}

// Limit returns the configured request limit
func (r *RateLimiter) Limit() int {
	return r.limit
}

// Window returns the configured window length
func (r *RateLimiter) Window() time.Duration {
	return r.window
}

// Close releases the underlying store
func (r *RateLimiter) Close() error {
	return r.store.Close()
}
