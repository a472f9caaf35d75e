package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

// SlideExtractor reads reveal.js style slides from HTML
type SlideExtractor struct{}

// NewSlideExtractor creates a new slide extractor
func NewSlideExtractor() *SlideExtractor {
	return &SlideExtractor{}
}

// Extract returns one slide per top-level <section> in document order
func (e *SlideExtractor) Extract(ctx context.Context, markup string) ([]entities.Slide, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(markup) == "" {
		return []entities.Slide{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	sections := doc.Find("section").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("section").Length() == 0
	})

	slides := make([]entities.Slide, 0, sections.Length())
	sections.Each(func(i int, section *goquery.Selection) {
		title, content := readSection(i, section)
		slides = append(slides, entities.NewSlide(i, title, content))
	})

	return slides, nil
}

func readSection(index int, section *goquery.Selection) (string, string) {
	body := section.Clone()
	body.Find("script, style").Remove()

	heading := body.Find(headingSelector).First()
	title := entities.DefaultSlideTitle(index)
	if heading.Length() > 0 {
		title = textOf(heading)
		if title == "" {
			title = entities.UntitledSlideTitle
		}
		heading.Remove()
	}

	return title, textOf(body)
}

// textOf joins the text nodes under sel with single spaces so adjacent block
// elements do not run together
func textOf(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
