package ports

import (
	"net/http"
	"time"
)

// HTTPClient abstracts outbound HTTP calls for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientConfig holds configuration for HTTP client
type HTTPClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string
}

// RealHTTPClient implements HTTPClient using standard HTTP client
type RealHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewRealHTTPClient creates a new real HTTP client implementation
func NewRealHTTPClient(config HTTPClientConfig) HTTPClient {
	return &RealHTTPClient{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

// Do executes an HTTP request, retrying transport errors up to MaxRetries times
func (c *RealHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err = c.client.Do(req)
		if err == nil {
			return resp, nil
		}

		// Don't retry on context cancellation
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if attempt < c.config.MaxRetries && c.config.RetryDelay > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return resp, err
}
