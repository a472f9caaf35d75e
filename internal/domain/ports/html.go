package ports

import (
	"context"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// SlideExtractor parses presentation markup into slides
type SlideExtractor interface {
	Extract(ctx context.Context, html string) ([]entities.Slide, error)
}

// SanitizeReport summarizes the rewrites applied by the sanitizer
type SanitizeReport struct {
	ImagesSeen        int  `json:"imagesSeen"`
	MarkdownConverted int  `json:"markdownConverted"`
	Replaced          int  `json:"replaced"`
	Flagged           int  `json:"flagged"`
	StyleInjected     bool `json:"styleInjected"`
}

// HTMLSanitizer normalizes image references in generated markup
type HTMLSanitizer interface {
	Sanitize(html string, validURLs []string) (string, SanitizeReport)
}

// DeckRenderer turns a structured outline into presentation markup
type DeckRenderer interface {
	RenderDeck(ctx context.Context, outline entities.DeckOutline, htmlTemplate string) (string, error)
}
