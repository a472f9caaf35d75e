package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

type MockRateLimitStore struct {
	mock.Mock
}

func (m *MockRateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (ports.RateDecision, error) {
	args := m.Called(ctx, key, limit, window, now)
	return args.Get(0).(ports.RateDecision), args.Error(1)
}

func (m *MockRateLimitStore) Close() error {
	return m.Called().Error(0)
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: now}

	t.Run("allowed request", func(t *testing.T) {
		store := &MockRateLimitStore{}
		store.On("Allow", mock.Anything, "10.0.0.1", 3, time.Minute, now).
			Return(ports.RateDecision{Allowed: true, Limit: 3, Remaining: 2, ResetAt: now.Add(time.Minute)}, nil)

		limiter := NewRateLimiter(store, 3, time.Minute, clock)
		decision, err := limiter.Allow(context.Background(), "10.0.0.1")

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, decision.Remaining)
		store.AssertExpectations(t)
	})

	t.Run("rejected request returns rate limit error", func(t *testing.T) {
		store := &MockRateLimitStore{}
		resetAt := now.Add(30 * time.Second)
		store.On("Allow", mock.Anything, "10.0.0.1", 3, time.Minute, now).
			Return(ports.RateDecision{Allowed: false, Limit: 3, Remaining: 0, ResetAt: resetAt}, nil)

		limiter := NewRateLimiter(store, 3, time.Minute, clock)
		decision, err := limiter.Allow(context.Background(), "10.0.0.1")

		var rateErr *entities.RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 3, rateErr.Limit)
		assert.Equal(t, resetAt, rateErr.ResetAt)
		assert.False(t, decision.Allowed)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		store := &MockRateLimitStore{}
		store.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(ports.RateDecision{}, errors.New("connection refused"))

		limiter := NewRateLimiter(store, 3, time.Minute, clock)
		_, err := limiter.Allow(context.Background(), "k")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "checking rate limit")
	})

	t.Run("defaults", func(t *testing.T) {
		limiter := NewRateLimiter(&MockRateLimitStore{}, 0, 0, nil)
		assert.Equal(t, 100, limiter.Limit())
		assert.Equal(t, time.Minute, limiter.Window())
	})
}
