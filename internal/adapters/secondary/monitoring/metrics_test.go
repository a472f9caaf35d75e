package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTP(http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "", http.StatusBadRequest, time.Millisecond)
	m.ObserveImageSearch("pixabay", nil, 100*time.Millisecond)
	m.ObserveImageSearch("pixabay", errors.New("boom"), 100*time.Millisecond)
	m.ObserveLLM("complete_json", nil, time.Second)
	m.RateLimitRejected("/api/search-images")
	m.StreamStarted()
	m.StreamStarted()
	m.StreamFinished()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "unknown", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imageSearchRequests.WithLabelValues("pixabay", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imageSearchRequests.WithLabelValues("pixabay", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("complete_json", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitRejections.WithLabelValues("/api/search-images")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeStreams))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RateLimitRejected("/api/chat")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `deckforge_ratelimit_rejections_total{route="/api/chat"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.ObserveImageSearch("pixabay", nil, time.Millisecond)
		m.ObserveLLM("stream_chat", nil, time.Millisecond)
		m.RateLimitRejected("/")
		m.StreamStarted()
		m.StreamFinished()
	})
	assert.Nil(t, m.Registry())
	assert.Zero(t, m.Uptime())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubSearcher struct {
	err error
}

func (s stubSearcher) Name() string { return "stub" }

func (s stubSearcher) Search(_ context.Context, q entities.ImageSearchQuery, _ entities.ImageCredentials) (entities.ImageSearchResult, error) {
	return entities.ImageSearchResult{Query: q.Q}, s.err
}

func TestInstrumentSearcher(t *testing.T) {
	t.Run("nil metrics returns searcher unchanged", func(t *testing.T) {
		s := stubSearcher{}
		assert.Equal(t, ports.ImageSearcher(s), InstrumentSearcher(s, nil))
	})

	t.Run("records outcome", func(t *testing.T) {
		m := NewMetrics()
		ok := InstrumentSearcher(stubSearcher{}, m)
		failing := InstrumentSearcher(stubSearcher{err: errors.New("down")}, m)

		result, err := ok.Search(context.Background(), entities.ImageSearchQuery{Q: "sun"}, entities.ImageCredentials{})
		require.NoError(t, err)
		assert.Equal(t, "sun", result.Query)
		assert.Equal(t, "stub", ok.Name())

		_, err = failing.Search(context.Background(), entities.ImageSearchQuery{Q: "sun"}, entities.ImageCredentials{})
		require.Error(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.imageSearchRequests.WithLabelValues("stub", "success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.imageSearchRequests.WithLabelValues("stub", "error")))
	})
}

type stubLLM struct {
	key string
}

func (s *stubLLM) StreamChat(context.Context, ports.ChatRequest) (ports.ChatStream, error) {
	return nil, errors.New("no stream")
}

func (s *stubLLM) CompleteJSON(context.Context, string, string) (string, error) {
	return "{}", nil
}

func (s *stubLLM) CallFunction(context.Context, string, string, ports.FunctionSpec) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *stubLLM) WithAPIKey(key string) ports.LLMClient {
	return &stubLLM{key: key}
}

func TestInstrumentLLM(t *testing.T) {
	m := NewMetrics()
	client := InstrumentLLM(&stubLLM{}, m)

	_, err := client.CompleteJSON(context.Background(), "sys", "user")
	require.NoError(t, err)
	_, err = client.CallFunction(context.Background(), "sys", "user", ports.FunctionSpec{Name: "f"})
	require.NoError(t, err)
	_, err = client.StreamChat(context.Background(), ports.ChatRequest{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("complete_json", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("call_function", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("stream_chat", "error")))

	assert.Same(t, client, client.WithAPIKey(""))
	keyed := client.WithAPIKey("sk-user")
	require.IsType(t, &InstrumentedLLM{}, keyed)
	assert.Equal(t, "sk-user", keyed.(*InstrumentedLLM).next.(*stubLLM).key)
}
