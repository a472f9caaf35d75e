package builders

import (
	"fmt"
	"strings"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// SlideBuilder helps build Slide entities for testing
type SlideBuilder struct {
	slide entities.Slide
}

// NewSlideBuilder creates a new slide builder with sensible defaults
func NewSlideBuilder() *SlideBuilder {
	return &SlideBuilder{
		slide: entities.Slide{
			Title:   "Test Slide",
			Content: "Test content",
			Index:   1,
			Type:    entities.SlideTypeContent,
		},
	}
}

// WithTitle sets the slide title
func (b *SlideBuilder) WithTitle(title string) *SlideBuilder {
	b.slide.Title = title
	return b
}

// WithContent sets the slide body text
func (b *SlideBuilder) WithContent(content string) *SlideBuilder {
	b.slide.Content = content
	return b
}

// WithIndex sets the slide index
func (b *SlideBuilder) WithIndex(index int) *SlideBuilder {
	b.slide.Index = index
	return b
}

// AsCover marks the slide as the cover slide
func (b *SlideBuilder) AsCover() *SlideBuilder {
	b.slide.Index = 0
	b.slide.Type = entities.SlideTypeCover
	return b
}

// AsConclusion marks the slide as a closing slide
func (b *SlideBuilder) AsConclusion() *SlideBuilder {
	b.slide.Type = entities.SlideTypeConclusion
	return b
}

// Build returns the built slide
func (b *SlideBuilder) Build() entities.Slide {
	return b.slide
}

// DeckHTMLBuilder assembles reveal.js style markup for extractor and matcher tests
type DeckHTMLBuilder struct {
	title    string
	sections []string
}

// NewDeckHTMLBuilder creates a builder for a full HTML document
func NewDeckHTMLBuilder() *DeckHTMLBuilder {
	return &DeckHTMLBuilder{title: "Test Deck"}
}

// WithTitle sets the document title
func (b *DeckHTMLBuilder) WithTitle(title string) *DeckHTMLBuilder {
	b.title = title
	return b
}

// WithSection adds a slide with an h2 heading and a paragraph body
func (b *DeckHTMLBuilder) WithSection(heading, body string) *DeckHTMLBuilder {
	b.sections = append(b.sections, fmt.Sprintf("<section><h2>%s</h2><p>%s</p></section>", heading, body))
	return b
}

// WithRawSection adds a section with arbitrary inner markup
func (b *DeckHTMLBuilder) WithRawSection(inner string) *DeckHTMLBuilder {
	b.sections = append(b.sections, "<section>"+inner+"</section>")
	return b
}

// Build returns the document markup
func (b *DeckHTMLBuilder) Build() string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head><title>")
	sb.WriteString(b.title)
	sb.WriteString("</title></head>\n<body>\n<div class=\"reveal\"><div class=\"slides\">\n")
	for _, section := range b.sections {
		sb.WriteString(section)
		sb.WriteString("\n")
	}
	sb.WriteString("</div></div>\n</body>\n</html>\n")
	return sb.String()
}
