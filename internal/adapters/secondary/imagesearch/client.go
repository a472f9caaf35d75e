package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// maxErrorBody bounds how much of a failed response is kept for the error message
const maxErrorBody = 1024

// Throttle configures outbound request pacing for a provider
type Throttle struct {
	RequestsPerSec float64
	Burst          int
}

func (t Throttle) limiter() *rate.Limiter {
	if t.RequestsPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := t.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(t.RequestsPerSec), burst)
}

// getJSON waits for the limiter, performs a GET and decodes a 200 response into out
func getJSON(ctx context.Context, client ports.HTTPClient, limiter *rate.Limiter, service, endpoint, userAgent string, out interface{}) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for %s rate limiter: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &entities.ExternalServiceError{Service: service, Message: "request failed", Err: redact(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &entities.ExternalServiceError{Service: service, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &entities.ExternalServiceError{Service: service, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

// redact drops the request URL from transport errors because it may carry an API key
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
