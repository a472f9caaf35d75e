package ports

import (
	"context"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// QueryPlanRequest asks for per-slide image queries for a topic
type QueryPlanRequest struct {
	Topic      string `json:"topic"`
	SlideCount int    `json:"slideCount"`
	APIKey     string `json:"apiKey,omitempty"`
}

// DeckRequest asks for a structured deck built through function calling
type DeckRequest struct {
	Topic        string `json:"topic"`
	SlideCount   int    `json:"slideCount"`
	Template     string `json:"template,omitempty"`
	HTMLTemplate string `json:"htmlTemplate,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
}

// DeckResult is the outline and its rendered artifact
type DeckResult struct {
	Outline  entities.DeckOutline `json:"outline"`
	Artifact entities.Artifact    `json:"artifact"`
}

// ChatGenerationRequest asks for a streamed presentation
type ChatGenerationRequest struct {
	Messages       []entities.ChatMessage `json:"messages,omitempty"`
	Prompt         string                 `json:"prompt,omitempty"`
	Template       string                 `json:"template,omitempty"`
	SystemPrompt   string                 `json:"systemPrompt,omitempty"`
	HTMLTemplate   string                 `json:"htmlTemplate,omitempty"`
	ValidImageURLs []string               `json:"validImageUrls,omitempty"`
	APIKey         string                 `json:"apiKey,omitempty"`
}

// MatchRequest asks for image suggestions for every slide of a document
type MatchRequest struct {
	HTML              string `json:"html"`
	Provider          string `json:"provider,omitempty"`
	MaxImagesPerSlide int    `json:"maxImagesPerSlide,omitempty"`
	PixabayKey        string `json:"pixabayKey,omitempty"`
}

// GenerationService defines the LLM-backed operations
type GenerationService interface {
	// GenerateQueries plans image queries for a topic
	GenerateQueries(ctx context.Context, req QueryPlanRequest) ([]entities.QuerySuggestion, error)

	// GenerateSlides builds a deck outline and renders it
	GenerateSlides(ctx context.Context, req DeckRequest) (*DeckResult, error)

	// StreamChat streams a generated presentation through emit
	StreamChat(ctx context.Context, req ChatGenerationRequest, emit EmitFunc) error
}

// ImageService defines the image search and matching operations
type ImageService interface {
	// Search runs a single query against a provider
	Search(ctx context.Context, provider string, query entities.ImageSearchQuery, creds entities.ImageCredentials) (entities.ImageSearchResult, error)

	// SearchBatch runs up to MaxBatchQueries queries against a provider
	SearchBatch(ctx context.Context, provider string, queries []entities.ImageSearchQuery, creds entities.ImageCredentials) ([]entities.ImageSearchResult, error)

	// MatchImages suggests images for every slide in a document
	MatchImages(ctx context.Context, req MatchRequest) ([]entities.SlideWithImages, error)

	// Providers lists the registered provider names
	Providers() []string
}
