package entities

import (
	"fmt"
	"strings"
)

// ImageType filters image search results by kind
type ImageType string

const (
	ImageTypeAll          ImageType = "all"
	ImageTypePhoto        ImageType = "photo"
	ImageTypeIllustration ImageType = "illustration"
	ImageTypeVector       ImageType = "vector"
)

// Orientation filters image search results by aspect
type Orientation string

const (
	OrientationAll        Orientation = "all"
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
)

// MaxBatchQueries is the largest number of queries dispatched in one batch
const MaxBatchQueries = 10

// DefaultMaxImagesPerSlide is the default number of suggestions kept per slide
const DefaultMaxImagesPerSlide = 5

// ImageSearchQuery describes one provider search
type ImageSearchQuery struct {
	Q             string      `json:"q"`
	ImageType     ImageType   `json:"imageType"`
	Orientation   Orientation `json:"orientation"`
	MinWidth      int         `json:"minWidth,omitempty"`
	MinHeight     int         `json:"minHeight,omitempty"`
	EditorsChoice bool        `json:"editorsChoice,omitempty"`
}

// Normalize trims the query text and fills in default filters
func (q ImageSearchQuery) Normalize() ImageSearchQuery {
	q.Q = strings.Join(strings.Fields(q.Q), " ")
	if q.ImageType == "" {
		q.ImageType = ImageTypeAll
	}
	if q.Orientation == "" {
		q.Orientation = OrientationAll
	}
	return q
}

// Key returns the deduplication key of the query text
func (q ImageSearchQuery) Key() string {
	return strings.ToLower(strings.Join(strings.Fields(q.Q), " "))
}

// Validate checks the query text and filter values
func (q ImageSearchQuery) Validate() error {
	if strings.TrimSpace(q.Q) == "" {
		return NewValidationError("q", "query text is required")
	}

	switch q.ImageType {
	case "", ImageTypeAll, ImageTypePhoto, ImageTypeIllustration, ImageTypeVector:
	default:
		return NewValidationError("imageType", fmt.Sprintf("unsupported image type: %s", q.ImageType))
	}

	switch q.Orientation {
	case "", OrientationAll, OrientationHorizontal, OrientationVertical:
	default:
		return NewValidationError("orientation", fmt.Sprintf("unsupported orientation: %s", q.Orientation))
	}

	if q.MinWidth < 0 || q.MinHeight < 0 {
		return NewValidationError("minWidth", "minimum dimensions must be non-negative")
	}

	return nil
}

// ImageHit is a provider-normalized image record
type ImageHit struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
	LargeURL   string `json:"largeUrl"`
	Tags       string `json:"tags"`
	User       string `json:"user"`
	Likes      int    `json:"likes"`
	Downloads  int    `json:"downloads"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Source     string `json:"source,omitempty"`
}

// TagList splits the comma-separated tags into trimmed, non-empty entries
func (h ImageHit) TagList() []string {
	parts := strings.Split(h.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// IsLandscape reports whether the image is wider than tall
func (h ImageHit) IsLandscape() bool {
	return h.Width > h.Height
}

// ImageSearchPage holds the hits returned for one query
type ImageSearchPage struct {
	Total     int        `json:"total"`
	TotalHits int        `json:"totalHits"`
	Hits      []ImageHit `json:"hits"`
}

// ImageSearchResult pairs a query with the provider's answer
type ImageSearchResult struct {
	Query  string          `json:"query"`
	Result ImageSearchPage `json:"result"`

	// Error is set when the query failed inside a batch and was downgraded to zero hits
	Error string `json:"error,omitempty"`
}

// EmptyResult returns a zero-hit result for a query
func EmptyResult(query string) ImageSearchResult {
	return ImageSearchResult{
		Query:  query,
		Result: ImageSearchPage{Hits: []ImageHit{}},
	}
}

// ImageCredentials carries per-request provider keys
type ImageCredentials struct {
	PixabayKey string `json:"pixabayKey,omitempty"`
}

// ValidImageURLs collects every large and preview URL of the hits, in order and without duplicates
func ValidImageURLs(hits []ImageHit) []string {
	seen := make(map[string]bool)
	urls := []string{}
	for _, hit := range hits {
		for _, u := range []string{hit.LargeURL, hit.PreviewURL} {
			if u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// SuggestedImageURLs returns the valid URL set of every image suggested across slides
func SuggestedImageURLs(slides []SlideWithImages) []string {
	var hits []ImageHit
	for _, slide := range slides {
		hits = append(hits, slide.SuggestedImages...)
	}
	return ValidImageURLs(hits)
}
