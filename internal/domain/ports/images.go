package ports

import (
	"context"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// ImageSearcher defines the interface for an external image search provider
type ImageSearcher interface {
	// Name returns the provider name used for routing and metrics
	Name() string

	// Search runs one normalized query against the provider
	Search(ctx context.Context, query entities.ImageSearchQuery, creds entities.ImageCredentials) (entities.ImageSearchResult, error)
}
