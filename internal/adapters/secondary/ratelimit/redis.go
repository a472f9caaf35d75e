package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// slidingWindow trims the sorted set to the window, adds the request when there is
// room and returns {allowed, count, oldest score}. Scores are unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end

if count > 0 then
  redis.call('PEXPIRE', key, window)
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

// RedisStore keeps sliding windows in Redis sorted sets so limits hold across instances
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisStore creates a new store on an existing client; Close leaves the client open
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// ConnectRedis parses url, verifies the connection with a ping and returns a store
// that owns the client
func ConnectRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix, owned: true}, nil
}

// Allow records a request at now when the window has room
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (ports.RateDecision, error) {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := slidingWindow.Run(ctx, s.client, []string{s.prefix + key}, nowMs, windowMs, limit, member).Int64Slice()
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("running sliding window script: %w", err)
	}
	if len(res) != 3 {
		return ports.RateDecision{}, fmt.Errorf("unexpected sliding window reply of %d values", len(res))
	}

	decision := ports.RateDecision{
		Allowed: res[0] == 1,
		Limit:   limit,
		ResetAt: time.UnixMilli(res[2]).Add(window),
	}
	if decision.Allowed {
		decision.Remaining = limit - int(res[1])
	}
	return decision, nil
}

// Close closes the client when the store opened it
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
