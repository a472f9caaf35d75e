package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// InstrumentedSearcher records metrics around an image searcher
type InstrumentedSearcher struct {
	next    ports.ImageSearcher
	metrics *Metrics
}

// InstrumentSearcher wraps searcher so every search is counted and timed
func InstrumentSearcher(searcher ports.ImageSearcher, metrics *Metrics) ports.ImageSearcher {
	if metrics == nil {
		return searcher
	}
	return &InstrumentedSearcher{next: searcher, metrics: metrics}
}

// Name returns the wrapped provider name
func (s *InstrumentedSearcher) Name() string {
	return s.next.Name()
}

// Search delegates to the wrapped searcher
func (s *InstrumentedSearcher) Search(ctx context.Context, q entities.ImageSearchQuery, creds entities.ImageCredentials) (entities.ImageSearchResult, error) {
	start := time.Now()
	result, err := s.next.Search(ctx, q, creds)
	s.metrics.ObserveImageSearch(s.next.Name(), err, time.Since(start))
	return result, err
}

// InstrumentedLLM records metrics around an LLM client
type InstrumentedLLM struct {
	next    ports.LLMClient
	metrics *Metrics
}

// InstrumentLLM wraps client so every call is counted and timed
func InstrumentLLM(client ports.LLMClient, metrics *Metrics) ports.LLMClient {
	if metrics == nil {
		return client
	}
	return &InstrumentedLLM{next: client, metrics: metrics}
}

// StreamChat delegates to the wrapped client; the duration covers opening the stream
func (c *InstrumentedLLM) StreamChat(ctx context.Context, req ports.ChatRequest) (ports.ChatStream, error) {
	start := time.Now()
	stream, err := c.next.StreamChat(ctx, req)
	c.metrics.ObserveLLM("stream_chat", err, time.Since(start))
	return stream, err
}

// CompleteJSON delegates to the wrapped client
func (c *InstrumentedLLM) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	content, err := c.next.CompleteJSON(ctx, system, user)
	c.metrics.ObserveLLM("complete_json", err, time.Since(start))
	return content, err
}

// CallFunction delegates to the wrapped client
func (c *InstrumentedLLM) CallFunction(ctx context.Context, system, user string, fn ports.FunctionSpec) (json.RawMessage, error) {
	start := time.Now()
	args, err := c.next.CallFunction(ctx, system, user, fn)
	c.metrics.ObserveLLM("call_function", err, time.Since(start))
	return args, err
}

// WithAPIKey keeps the instrumentation on the keyed client
func (c *InstrumentedLLM) WithAPIKey(key string) ports.LLMClient {
	if key == "" {
		return c
	}
	return &InstrumentedLLM{next: c.next.WithAPIKey(key), metrics: c.metrics}
}
