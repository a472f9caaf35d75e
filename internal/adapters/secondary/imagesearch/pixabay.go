package imagesearch

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// PixabayConfig configures the Pixabay searcher
type PixabayConfig struct {
	BaseURL   string
	APIKey    string
	PerPage   int
	UserAgent string
	Throttle  Throttle
}

// PixabaySearcher searches the Pixabay image API
type PixabaySearcher struct {
	client  ports.HTTPClient
	config  PixabayConfig
	limiter *rate.Limiter
}

// NewPixabaySearcher creates a new Pixabay searcher
func NewPixabaySearcher(client ports.HTTPClient, config PixabayConfig) *PixabaySearcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://pixabay.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	switch {
	case config.PerPage <= 0:
		config.PerPage = 20
	case config.PerPage < 3:
		config.PerPage = 3
	case config.PerPage > 200:
		config.PerPage = 200
	}

	return &PixabaySearcher{
		client:  client,
		config:  config,
		limiter: config.Throttle.limiter(),
	}
}

// Name returns the provider name
func (p *PixabaySearcher) Name() string {
	return entities.ProviderPixabay
}

type pixabayResponse struct {
	Total     int          `json:"total"`
	TotalHits int          `json:"totalHits"`
	Hits      []pixabayHit `json:"hits"`
}

type pixabayHit struct {
	ID            int64  `json:"id"`
	PreviewURL    string `json:"previewURL"`
	WebformatURL  string `json:"webformatURL"`
	LargeImageURL string `json:"largeImageURL"`
	Tags          string `json:"tags"`
	User          string `json:"user"`
	Likes         int    `json:"likes"`
	Downloads     int    `json:"downloads"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
}

// Search runs one query. The request key overrides the configured key.
func (p *PixabaySearcher) Search(ctx context.Context, q entities.ImageSearchQuery, creds entities.ImageCredentials) (entities.ImageSearchResult, error) {
	key := strings.TrimSpace(creds.PixabayKey)
	if key == "" {
		key = p.config.APIKey
	}
	if key == "" {
		return entities.ImageSearchResult{}, entities.NewValidationError("apiKey", "pixabay API key is required")
	}

	q = q.Normalize()
	params := url.Values{}
	params.Set("key", key)
	params.Set("q", q.Q)
	params.Set("image_type", string(q.ImageType))
	params.Set("orientation", string(q.Orientation))
	params.Set("per_page", strconv.Itoa(p.config.PerPage))
	params.Set("safesearch", "true")
	if q.MinWidth > 0 {
		params.Set("min_width", strconv.Itoa(q.MinWidth))
	}
	if q.MinHeight > 0 {
		params.Set("min_height", strconv.Itoa(q.MinHeight))
	}
	if q.EditorsChoice {
		params.Set("editors_choice", "true")
	}

	var resp pixabayResponse
	endpoint := p.config.BaseURL + "/api/?" + params.Encode()
	if err := getJSON(ctx, p.client, p.limiter, entities.ProviderPixabay, endpoint, p.config.UserAgent, &resp); err != nil {
		return entities.ImageSearchResult{}, err
	}

	hits := make([]entities.ImageHit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		large := h.LargeImageURL
		if large == "" {
			large = h.WebformatURL
		}
		hits = append(hits, entities.ImageHit{
			ID:         strconv.FormatInt(h.ID, 10),
			PreviewURL: h.PreviewURL,
			LargeURL:   large,
			Tags:       h.Tags,
			User:       h.User,
			Likes:      h.Likes,
			Downloads:  h.Downloads,
			Width:      h.ImageWidth,
			Height:     h.ImageHeight,
			Source:     entities.ProviderPixabay,
		})
	}

	return entities.ImageSearchResult{
		Query: q.Q,
		Result: entities.ImageSearchPage{
			Total:     resp.Total,
			TotalHits: resp.TotalHits,
			Hits:      hits,
		},
	}, nil
}
