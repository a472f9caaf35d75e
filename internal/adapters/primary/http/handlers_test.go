package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

func TestHandleGenerateQueries(t *testing.T) {
	t.Run("returns suggestions", func(t *testing.T) {
		ts := newTestServer(t)
		suggestions := []entities.QuerySuggestion{
			{SlideTitle: "Intro", Queries: []string{"solar", "sun"}, ImageType: entities.ImageTypePhoto, Orientation: entities.OrientationHorizontal},
		}
		ts.generation.On("GenerateQueries", mock.Anything, ports.QueryPlanRequest{Topic: "solar energy", SlideCount: 3, APIKey: "sk"}).
			Return(suggestions, nil)

		rec := ts.do(t, http.MethodPost, "/api/generate-queries", map[string]interface{}{"topic": "solar energy", "slideCount": 3, "apiKey": "sk"})

		require.Equal(t, http.StatusOK, rec.Code)
		var got []entities.QuerySuggestion
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, suggestions, got)
		ts.generation.AssertExpectations(t)
	})

	t.Run("validation error passes message through", func(t *testing.T) {
		ts := newTestServer(t)
		ts.generation.On("GenerateQueries", mock.Anything, mock.Anything).
			Return(nil, entities.NewValidationError("topic", "topic is required"))

		rec := ts.do(t, http.MethodPost, "/api/generate-queries", map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "topic: topic is required", decodeError(t, rec).Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/generate-queries", "{not json")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Message, "invalid JSON")
	})

	t.Run("body too large", func(t *testing.T) {
		ts := newTestServer(t)

		big := `{"topic":"` + strings.Repeat("a", 70<<10) + `"}`
		rec := ts.do(t, http.MethodPost, "/api/generate-queries", big)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("upstream failure passes its message through", func(t *testing.T) {
		ts := newTestServer(t)
		ts.generation.On("GenerateQueries", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("planning: %w", &entities.ExternalServiceError{Service: "llm", StatusCode: 401, Message: "bad key"}))

		rec := ts.do(t, http.MethodPost, "/api/generate-queries", map[string]interface{}{"topic": "x"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "llm error (status 401): bad key", decodeError(t, rec).Message)
	})
}

func TestHandleGenerateSlides(t *testing.T) {
	ts := newTestServer(t)
	result := &ports.DeckResult{
		Outline:  entities.DeckOutline{Title: "Solar"},
		Artifact: entities.Artifact{Title: "Solar", Code: "<html></html>"},
	}
	ts.generation.On("GenerateSlides", mock.Anything, ports.DeckRequest{Topic: "Solar", Template: "dark"}).Return(result, nil)

	rec := ts.do(t, http.MethodPost, "/api/generate-slides", map[string]interface{}{"topic": "Solar", "template": "dark"})

	require.Equal(t, http.StatusOK, rec.Code)
	var got ports.DeckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Solar", got.Artifact.Title)
}

func TestHandleProviderSearch(t *testing.T) {
	hit := entities.ImageHit{ID: "1", LargeURL: "https://cdn.example/1.jpg"}

	t.Run("single query with filters", func(t *testing.T) {
		ts := newTestServer(t)
		expected := entities.ImageSearchQuery{Q: "solar", ImageType: entities.ImageTypePhoto, MinWidth: 800}
		ts.images.On("Search", mock.Anything, "pixabay", expected, entities.ImageCredentials{PixabayKey: "pk"}).
			Return(entities.ImageSearchResult{Query: "solar", Result: entities.ImageSearchPage{Hits: []entities.ImageHit{hit}}}, nil)

		rec := ts.do(t, http.MethodPost, "/api/pixabay", map[string]interface{}{"query": "solar", "imageType": "photo", "minWidth": 800, "apiKey": "pk"})

		require.Equal(t, http.StatusOK, rec.Code)
		var got entities.ImageSearchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "solar", got.Query)
		assert.Len(t, got.Result.Hits, 1)
	})

	t.Run("batch accepts strings and objects", func(t *testing.T) {
		ts := newTestServer(t)
		expected := []entities.ImageSearchQuery{
			{Q: "sun", Orientation: entities.OrientationHorizontal},
			{Q: "wind", ImageType: entities.ImageTypeVector, Orientation: entities.OrientationHorizontal},
		}
		results := []entities.ImageSearchResult{entities.EmptyResult("sun"), entities.EmptyResult("wind")}
		ts.images.On("SearchBatch", mock.Anything, "wikimedia", expected, entities.ImageCredentials{}).Return(results, nil)

		body := `{"queries":["sun",{"q":"wind","imageType":"vector"}],"orientation":"horizontal"}`
		rec := ts.do(t, http.MethodPost, "/api/wikimedia", body)

		require.Equal(t, http.StatusOK, rec.Code)
		var got BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got.Results, 2)
		ts.images.AssertExpectations(t)
	})

	t.Run("more than ten queries is a 400", func(t *testing.T) {
		ts := newTestServer(t)
		queries := make([]string, 11)
		for i := range queries {
			queries[i] = fmt.Sprintf("q%d", i)
		}

		rec := ts.do(t, http.MethodPost, "/api/pixabay", map[string]interface{}{"queries": queries})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		ts.images.AssertNotCalled(t, "SearchBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing query", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/pixabay", map[string]interface{}{"imageType": "photo"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Message, "query or queries is required")
	})

	t.Run("missing provider key", func(t *testing.T) {
		ts := newTestServer(t)
		ts.images.On("Search", mock.Anything, "pixabay", mock.Anything, mock.Anything).
			Return(entities.ImageSearchResult{}, entities.NewValidationError("apiKey", "Pixabay API key is required"))

		rec := ts.do(t, http.MethodPost, "/api/pixabay", map[string]interface{}{"query": "solar"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleMatchImages(t *testing.T) {
	ts := newTestServer(t)
	slides := []entities.SlideWithImages{
		{
			Slide:           entities.Slide{Title: "Intro", Type: entities.SlideTypeCover},
			SuggestedImages: []entities.ImageHit{{ID: "7", Source: entities.ProviderPixabay, PreviewURL: "https://cdn.example/7s.jpg", LargeURL: "https://cdn.example/7.jpg"}},
			SearchQueries:   []string{"intro"},
		},
		{
			Slide:           entities.Slide{Title: "Next", Type: entities.SlideTypeContent},
			SuggestedImages: []entities.ImageHit{{ID: "7", Source: entities.ProviderPixabay, LargeURL: "https://cdn.example/7.jpg"}},
			SearchQueries:   []string{"next"},
		},
	}
	ts.images.On("MatchImages", mock.Anything, ports.MatchRequest{HTML: "<section><h1>Intro</h1></section>", MaxImagesPerSlide: 3}).
		Return(slides, nil)

	rec := ts.do(t, http.MethodPost, "/api/match-images", map[string]interface{}{"html": "<section><h1>Intro</h1></section>", "maxImagesPerSlide": 3})

	require.Equal(t, http.StatusOK, rec.Code)
	var got MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Slides, 2)
	assert.Equal(t, "Intro", got.Slides[0].Slide.Title)
	assert.Equal(t, []string{"https://cdn.example/7.jpg", "https://cdn.example/7s.jpg"}, got.ValidImageURLs)
}

func TestHandleSanitize(t *testing.T) {
	ts := newTestServer(t)

	t.Run("replaces unverified images", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sanitize", SanitizeRequest{
			HTML:           `<p><img src="https://made.up/x.jpg"></p>`,
			ValidImageURLs: []string{"https://cdn.example/a.jpg"},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var got SanitizeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Contains(t, got.HTML, `src="https://cdn.example/a.jpg"`)
		assert.Equal(t, 1, got.Report.Replaced)
	})

	t.Run("empty html", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sanitize", SanitizeRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleExtractSlides(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/extract-slides", map[string]interface{}{"html": "<section><h2>Intro</h2><p>Hello world</p></section>"})

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Slides []entities.Slide `json:"slides"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Slides, 1)
	assert.Equal(t, "Intro", got.Slides[0].Title)
	assert.Equal(t, "Hello world", got.Slides[0].Content)
	assert.Equal(t, entities.SlideTypeCover, got.Slides[0].Type)
}

func TestHandleConvertDataURL(t *testing.T) {
	ts := newTestServer(t)

	t.Run("round trips content", func(t *testing.T) {
		code := "<!DOCTYPE html><html><body>Olá ✓</body></html>"
		rec := ts.do(t, http.MethodPost, "/api/convertd", ConvertRequest{Code: code})

		require.Equal(t, http.StatusOK, rec.Code)
		var got ConvertResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

		prefix := "data:text/html;base64,"
		require.True(t, strings.HasPrefix(got.DataURL, prefix))
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.DataURL, prefix))
		require.NoError(t, err)
		assert.Equal(t, code, string(decoded))
	})

	t.Run("html field and custom mime type", func(t *testing.T) {
		dataURL, err := toDataURL(ConvertRequest{HTML: "a", MimeType: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "data:text/plain;base64,YQ==", dataURL)
	})

	t.Run("empty content", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/convertd", ConvertRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid mime type", func(t *testing.T) {
		_, err := toDataURL(ConvertRequest{Code: "a", MimeType: "not a mime"})
		var validationErr *entities.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "mimeType", validationErr.Field)
	})
}

func TestHandleTemplates(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/templates", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []TemplateSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, entities.DefaultTemplateName, got[0].Name)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "test", got.Version)
	assert.Equal(t, []string{entities.ProviderPixabay, entities.ProviderWikimedia}, got.Providers)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", entities.NewValidationError("q", "required"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("query 2: %w", entities.NewValidationError("q", "required")), http.StatusBadRequest},
		{"rate limit", &entities.RateLimitError{Limit: 1, ResetAt: time.Now()}, http.StatusTooManyRequests},
		{"external", &entities.ExternalServiceError{Service: "pixabay"}, http.StatusInternalServerError},
		{"external timeout", &entities.ExternalServiceError{Service: "pixabay", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"deadline", fmt.Errorf("searching: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"shutting down", errShuttingDown, http.StatusServiceUnavailable},
		{"internal", errors.New("nil pointer somewhere"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusForError(tt.err))
		})
	}

	assert.Equal(t, "Internal server error", messageForError(errors.New("secret path /etc"), http.StatusInternalServerError))
	assert.Equal(t, "pixabay error: quota", messageForError(&entities.ExternalServiceError{Service: "pixabay", Message: "quota"}, http.StatusInternalServerError))
	assert.Equal(t, "server is shutting down", messageForError(errShuttingDown, http.StatusServiceUnavailable))
}
