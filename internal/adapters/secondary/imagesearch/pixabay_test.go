package imagesearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

func testClient() ports.HTTPClient {
	return ports.NewRealHTTPClient(ports.HTTPClientConfig{Timeout: 5 * time.Second})
}

func TestPixabaySearcher_Search(t *testing.T) {
	t.Run("builds the request and normalizes hits", func(t *testing.T) {
		var got url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/", r.URL.Path)
			got = r.URL.Query()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"total":     120,
				"totalHits": 40,
				"hits": []map[string]interface{}{{
					"id":            195893,
					"previewURL":    "https://cdn.pixabay.com/preview.jpg",
					"webformatURL":  "https://pixabay.com/web.jpg",
					"largeImageURL": "https://pixabay.com/large.jpg",
					"tags":          "solar, panel, roof",
					"user":          "sunny",
					"likes":         250,
					"downloads":     12000,
					"imageWidth":    4000,
					"imageHeight":   2250,
				}},
			})
		}))
		defer server.Close()

		searcher := NewPixabaySearcher(testClient(), PixabayConfig{BaseURL: server.URL + "/", APIKey: "config-key"})
		result, err := searcher.Search(context.Background(), entities.ImageSearchQuery{
			Q:             "solar panels",
			ImageType:     entities.ImageTypePhoto,
			Orientation:   entities.OrientationHorizontal,
			MinWidth:      1280,
			EditorsChoice: true,
		}, entities.ImageCredentials{})
		require.NoError(t, err)

		assert.Equal(t, "config-key", got.Get("key"))
		assert.Equal(t, "solar panels", got.Get("q"))
		assert.Equal(t, "photo", got.Get("image_type"))
		assert.Equal(t, "horizontal", got.Get("orientation"))
		assert.Equal(t, "1280", got.Get("min_width"))
		assert.Empty(t, got.Get("min_height"))
		assert.Equal(t, "true", got.Get("editors_choice"))
		assert.Equal(t, "true", got.Get("safesearch"))
		assert.Equal(t, "20", got.Get("per_page"))

		assert.Equal(t, "solar panels", result.Query)
		assert.Equal(t, 120, result.Result.Total)
		assert.Equal(t, 40, result.Result.TotalHits)
		require.Len(t, result.Result.Hits, 1)
		assert.Equal(t, entities.ImageHit{
			ID:         "195893",
			PreviewURL: "https://cdn.pixabay.com/preview.jpg",
			LargeURL:   "https://pixabay.com/large.jpg",
			Tags:       "solar, panel, roof",
			User:       "sunny",
			Likes:      250,
			Downloads:  12000,
			Width:      4000,
			Height:     2250,
			Source:     entities.ProviderPixabay,
		}, result.Result.Hits[0])
	})

	t.Run("request key overrides config and filters default to all", func(t *testing.T) {
		var got url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query()
			_, _ = w.Write([]byte(`{"total":0,"totalHits":0,"hits":[]}`))
		}))
		defer server.Close()

		searcher := NewPixabaySearcher(testClient(), PixabayConfig{BaseURL: server.URL, APIKey: "config-key", PerPage: 500})
		result, err := searcher.Search(context.Background(), entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{PixabayKey: "user-key"})
		require.NoError(t, err)

		assert.Equal(t, "user-key", got.Get("key"))
		assert.Equal(t, "all", got.Get("image_type"))
		assert.Equal(t, "all", got.Get("orientation"))
		assert.Equal(t, "200", got.Get("per_page"))
		assert.NotNil(t, result.Result.Hits)
		assert.Empty(t, result.Result.Hits)
	})

	t.Run("missing key", func(t *testing.T) {
		searcher := NewPixabaySearcher(testClient(), PixabayConfig{})
		_, err := searcher.Search(context.Background(), entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{})

		var validationErr *entities.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "apiKey", validationErr.Field)
	})

	t.Run("upstream error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("[ERROR 400] Invalid or missing API key"))
		}))
		defer server.Close()

		searcher := NewPixabaySearcher(testClient(), PixabayConfig{BaseURL: server.URL, APIKey: "bad"})
		_, err := searcher.Search(context.Background(), entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{})

		var extErr *entities.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, "pixabay", extErr.Service)
		assert.Equal(t, http.StatusBadRequest, extErr.StatusCode)
		assert.Contains(t, extErr.Message, "Invalid or missing API key")
	})

	t.Run("transport error hides the key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		baseURL := server.URL
		server.Close()

		searcher := NewPixabaySearcher(testClient(), PixabayConfig{BaseURL: baseURL, APIKey: "secret-key"})
		_, err := searcher.Search(context.Background(), entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{})

		var extErr *entities.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.NotContains(t, err.Error(), "secret-key")
	})

	t.Run("invalid body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}))
		defer server.Close()

		searcher := NewPixabaySearcher(testClient(), PixabayConfig{BaseURL: server.URL, APIKey: "k"})
		_, err := searcher.Search(context.Background(), entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{})

		var extErr *entities.ExternalServiceError
		assert.ErrorAs(t, err, &extErr)
	})

	t.Run("cancelled context while throttled", func(t *testing.T) {
		searcher := NewPixabaySearcher(testClient(), PixabayConfig{
			BaseURL:  "http://127.0.0.1:1",
			APIKey:   "k",
			Throttle: Throttle{RequestsPerSec: 0.001, Burst: 1},
		})
		require.True(t, searcher.limiter.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := searcher.Search(ctx, entities.ImageSearchQuery{Q: "wind"}, entities.ImageCredentials{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
	})
}

func TestThrottle(t *testing.T) {
	assert.True(t, Throttle{}.limiter().Allow())

	limiter := Throttle{RequestsPerSec: 1, Burst: 2}.limiter()
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}
