package builders

import (
	"fmt"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// ImageHitBuilder helps build ImageHit entities for testing
type ImageHitBuilder struct {
	hit entities.ImageHit
}

// NewImageHitBuilder creates a hit with a unique-looking ID and small dimensions
func NewImageHitBuilder(id string) *ImageHitBuilder {
	return &ImageHitBuilder{
		hit: entities.ImageHit{
			ID:         id,
			PreviewURL: fmt.Sprintf("https://cdn.example.com/preview/%s.jpg", id),
			LargeURL:   fmt.Sprintf("https://cdn.example.com/large/%s.jpg", id),
			User:       "tester",
			Width:      640,
			Height:     480,
			Source:     entities.ProviderPixabay,
		},
	}
}

// WithTags sets the comma separated tag string
func (b *ImageHitBuilder) WithTags(tags string) *ImageHitBuilder {
	b.hit.Tags = tags
	return b
}

// WithPopularity sets likes and downloads
func (b *ImageHitBuilder) WithPopularity(likes, downloads int) *ImageHitBuilder {
	b.hit.Likes = likes
	b.hit.Downloads = downloads
	return b
}

// WithSize sets the image dimensions
func (b *ImageHitBuilder) WithSize(width, height int) *ImageHitBuilder {
	b.hit.Width = width
	b.hit.Height = height
	return b
}

// WithSource sets the provider name
func (b *ImageHitBuilder) WithSource(source string) *ImageHitBuilder {
	b.hit.Source = source
	return b
}

// Build returns the built hit
func (b *ImageHitBuilder) Build() entities.ImageHit {
	return b.hit
}

// NewSearchResult wraps hits into a search result for query
func NewSearchResult(query string, hits ...entities.ImageHit) entities.ImageSearchResult {
	if hits == nil {
		hits = []entities.ImageHit{}
	}
	return entities.ImageSearchResult{
		Query: query,
		Result: entities.ImageSearchPage{
			Total:     len(hits),
			TotalHits: len(hits),
			Hits:      hits,
		},
	}
}
