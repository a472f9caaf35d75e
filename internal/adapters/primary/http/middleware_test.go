package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/adapters/secondary/monitoring"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/ratelimit"
	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
	"github.com/fredcamaral/deckforge/internal/domain/services"
)

type fakeLimiter struct {
	decision ports.RateDecision
	err      error
	keys     []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (ports.RateDecision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

func TestRateLimited(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)

	t.Run("allowed request carries headers", func(t *testing.T) {
		limiter := &fakeLimiter{decision: ports.RateDecision{Allowed: true, Limit: 100, Remaining: 99, ResetAt: resetAt}}
		ts := newTestServer(t, func(d *Dependencies) { d.Limiter = limiter })
		ts.images.On("Search", mock.Anything, entities.ProviderPixabay, mock.Anything, mock.Anything).
			Return(entities.EmptyResult("solar"), nil)

		rec := ts.do(t, http.MethodPost, "/api/pixabay", map[string]interface{}{"query": "solar"})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, strconv.FormatInt(resetAt.Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))
		assert.Equal(t, []string{"192.0.2.1"}, limiter.keys)
	})

	t.Run("rejected request is a 429 with Retry-After", func(t *testing.T) {
		limiter := &fakeLimiter{
			decision: ports.RateDecision{Limit: 100, Remaining: 0, ResetAt: resetAt},
			err:      &entities.RateLimitError{Limit: 100, ResetAt: resetAt},
		}
		metrics := monitoring.NewMetrics()
		ts := newTestServer(t, func(d *Dependencies) {
			d.Limiter = limiter
			d.Metrics = metrics
		})

		rec := ts.do(t, http.MethodPost, "/api/match-images", map[string]interface{}{"html": "<section></section>"})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		assert.InDelta(t, 30, retry, 1)
		assert.Contains(t, decodeError(t, rec).Message, "rate limit of 100 requests exceeded")
		ts.images.AssertNotCalled(t, "MatchImages", mock.Anything, mock.Anything)

		count, err := testutil.GatherAndCount(metrics.Registry(), "deckforge_ratelimit_rejections_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis: connection refused")}
		ts := newTestServer(t, func(d *Dependencies) { d.Limiter = limiter })
		ts.images.On("SearchBatch", mock.Anything, entities.ProviderWikimedia, mock.Anything, mock.Anything).
			Return([]entities.ImageSearchResult{entities.EmptyResult("sun")}, nil)

		rec := ts.do(t, http.MethodPost, "/api/wikimedia", map[string]interface{}{"queries": []string{"sun"}})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("unlimited routes skip the limiter", func(t *testing.T) {
		limiter := &fakeLimiter{err: &entities.RateLimitError{Limit: 1, ResetAt: resetAt}}
		ts := newTestServer(t, func(d *Dependencies) { d.Limiter = limiter })

		rec := ts.do(t, http.MethodPost, "/api/sanitize", SanitizeRequest{HTML: "<p>hi</p>"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, limiter.keys)
	})
}

func TestRateLimited_ForwardedHeaders(t *testing.T) {
	send := func(ts *testServer, remoteAddr, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/pixabay", strings.NewReader(`{"query":"solar"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	newLimited := func(t *testing.T, config *entities.ServerConfig) *testServer {
		limiter := services.NewRateLimiter(ratelimit.NewMemoryStore(time.Minute), 2, time.Minute, nil)
		t.Cleanup(func() { _ = limiter.Close() })

		ts := newTestServerWithConfig(t, config, func(d *Dependencies) { d.Limiter = limiter })
		ts.images.On("Search", mock.Anything, entities.ProviderPixabay, mock.Anything, mock.Anything).
			Return(entities.EmptyResult("solar"), nil)
		return ts
	}

	t.Run("spoofed header from an untrusted peer is ignored", func(t *testing.T) {
		ts := newLimited(t, getTestServerConfig())

		var codes []int
		for i := 0; i < 5; i++ {
			codes = append(codes, send(ts, "203.0.113.7:5123", fmt.Sprintf("198.51.100.%d", i+1)))
		}

		assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		config := getTestServerConfig()
		config.TrustedProxies = []string{"10.0.0.0/8"}
		ts := newLimited(t, config)

		var codes []int
		for i := 0; i < 5; i++ {
			codes = append(codes, send(ts, "10.1.2.3:5123", fmt.Sprintf("198.51.100.%d", i+1)))
		}

		assert.Equal(t, []int{200, 200, 200, 200, 200}, codes)
	})
}

func TestGetClientIP(t *testing.T) {
	_, proxies, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	trusted := []*net.IPNet{proxies}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trusted    []*net.IPNet
		expected   string
	}{
		{"remote addr", "203.0.113.7:5123", nil, trusted, "203.0.113.7"},
		{"first forwarded entry from trusted proxy", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.3"}, trusted, "198.51.100.2"},
		{"invalid forwarded falls back to real ip", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.9"}, trusted, "198.51.100.9"},
		{"unusable headers fall back to peer", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "garbage"}, trusted, "10.0.0.1"},
		{"forwarded header from untrusted peer", "203.0.113.7:5123", map[string]string{"X-Forwarded-For": "198.51.100.2"}, trusted, "203.0.113.7"},
		{"real ip without trusted proxies", "10.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.9"}, nil, "10.0.0.1"},
		{"ipv6 remote addr", "[2001:db8::1]:443", nil, trusted, "2001:db8::1"},
		{"remote addr without port", "unix-socket", map[string]string{"X-Forwarded-For": "198.51.100.2"}, trusted, "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req, tt.trusted))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	assert.Same(t, rw, wrap(rw))

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.status)
	assert.Equal(t, 5, rw.size)
	assert.Same(t, rec, rw.Unwrap())
}
