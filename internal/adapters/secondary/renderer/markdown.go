package renderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// slideMarkdown converts slide outlines to sanitized HTML fragments
type slideMarkdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newSlideMarkdown() *slideMarkdown {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
		),
	)

	return &slideMarkdown{
		md:     md,
		policy: newSlidePolicy(),
	}
}

// newSlidePolicy creates a restrictive HTML policy for slide content
func newSlidePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("p", "br", "hr")
	p.AllowElements("strong", "b", "em", "i", "u", "s", "del", "mark")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("blockquote", "pre", "code")
	p.AllowElements("a").AllowAttrs("href").OnElements("a")
	p.AllowElements("img").AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowElements("div", "span").AllowAttrs("class").OnElements("div", "span")
	p.AllowURLSchemes("http", "https")
	p.RequireNoFollowOnLinks(false)

	return p
}

// render returns the body HTML of a slide; level is the heading level of the title
func (s *slideMarkdown) render(slide entities.SlideOutline, level int) (string, error) {
	var src strings.Builder
	src.WriteString(strings.Repeat("#", level))
	src.WriteString(" ")
	src.WriteString(strings.TrimSpace(slide.Title))
	src.WriteString("\n\n")
	for _, bullet := range slide.Bullets {
		if bullet = strings.TrimSpace(bullet); bullet != "" {
			src.WriteString("- ")
			src.WriteString(bullet)
			src.WriteString("\n")
		}
	}

	return s.convert(src.String())
}

func (s *slideMarkdown) convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return strings.TrimSpace(s.policy.Sanitize(buf.String())), nil
}
