package entities

import (
	"errors"
	"strconv"
	"strings"
)

// SlideType classifies a slide by its position and wording
type SlideType string

const (
	SlideTypeCover      SlideType = "cover"
	SlideTypeContent    SlideType = "content"
	SlideTypeConclusion SlideType = "conclusion"
)

// Default titles used when a section has no usable heading
const (
	UntitledSlideTitle = "Untitled Slide"
)

// conclusionKeywords mark a slide as a closing slide
var conclusionKeywords = []string{"conclusion", "summary", "thank you"}

// Slide represents a single slide extracted from generated presentation markup
type Slide struct {
	// Title is the text of the first heading in the slide
	Title string `json:"title"`

	// Content is the plain-text body of the slide with the title heading removed
	Content string `json:"content"`

	// Index is the slide position in document order (0-based)
	Index int `json:"index"`

	// Type is inferred from the position and title keywords
	Type SlideType `json:"type"`
}

// Validate ensures the slide is usable for image matching
func (s *Slide) Validate() error {
	if s.Index < 0 {
		return errors.New("slide index must be non-negative")
	}

	switch s.Type {
	case SlideTypeCover, SlideTypeContent, SlideTypeConclusion:
	default:
		return errors.New("slide type must be cover, content or conclusion")
	}

	return nil
}

// Text returns the combined title and content used for term and tag matching
func (s *Slide) Text() string {
	return strings.TrimSpace(s.Title + " " + s.Content)
}

// ClassifySlide infers the slide type from its index and title
func ClassifySlide(index int, title string) SlideType {
	if index == 0 {
		return SlideTypeCover
	}

	lower := strings.ToLower(title)
	for _, keyword := range conclusionKeywords {
		if strings.Contains(lower, keyword) {
			return SlideTypeConclusion
		}
	}

	return SlideTypeContent
}

// DefaultSlideTitle returns the generated title for a slide without a heading
func DefaultSlideTitle(index int) string {
	return "Slide " + strconv.Itoa(index+1)
}

// NewSlide builds a slide and classifies it
func NewSlide(index int, title, content string) Slide {
	return Slide{
		Title:   title,
		Content: content,
		Index:   index,
		Type:    ClassifySlide(index, title),
	}
}

// SlideWithImages is a slide together with the images suggested for it
type SlideWithImages struct {
	Slide

	// SuggestedImages holds the top-ranked images for the slide
	SuggestedImages []ImageHit `json:"suggestedImages"`

	// SearchQueries lists the distinct queries that produced the suggested images
	SearchQueries []string `json:"searchQueries"`
}
