package renderer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// SlidesPlaceholder must appear in custom deck templates
const SlidesPlaceholder = "{{.Slides}}"

// DeckRenderer renders deck outlines into reveal.js documents
type DeckRenderer struct {
	markdown *slideMarkdown
	section  *template.Template
	deck     *template.Template
}

// NewDeckRenderer creates a new deck renderer with the built-in document template
func NewDeckRenderer() (*DeckRenderer, error) {
	section, err := template.New("section").Parse(sectionTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing section template: %w", err)
	}

	deck, err := template.New("deck").Parse(defaultDeckTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing deck template: %w", err)
	}

	return &DeckRenderer{
		markdown: newSlideMarkdown(),
		section:  section,
		deck:     deck,
	}, nil
}

type sectionData struct {
	Body       template.HTML
	Notes      template.HTML
	ImageQuery string
}

type deckData struct {
	Title       string
	Description string
	Slides      template.HTML
}

// RenderDeck renders an outline. A non-empty htmlTemplate replaces the built-in document
// and must reference {{.Slides}}.
func (r *DeckRenderer) RenderDeck(ctx context.Context, outline entities.DeckOutline, htmlTemplate string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := outline.Validate(); err != nil {
		return "", entities.NewValidationError("outline", err.Error())
	}

	deck := r.deck
	if strings.TrimSpace(htmlTemplate) != "" {
		if !strings.Contains(htmlTemplate, SlidesPlaceholder) {
			return "", entities.NewValidationError("htmlTemplate", "template must contain "+SlidesPlaceholder)
		}
		custom, err := template.New("custom").Parse(htmlTemplate)
		if err != nil {
			return "", entities.NewValidationError("htmlTemplate", err.Error())
		}
		deck = custom
	}

	var sections bytes.Buffer
	for i, slide := range outline.Slides {
		level := 2
		if i == 0 {
			level = 1
		}

		body, err := r.markdown.render(slide, level)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", i, err)
		}

		var notes string
		if strings.TrimSpace(slide.Notes) != "" {
			if notes, err = r.markdown.convert(slide.Notes); err != nil {
				return "", fmt.Errorf("slide %d notes: %w", i, err)
			}
		}

		data := sectionData{
			Body:       template.HTML(body),  // #nosec G203 - sanitized by the slide policy
			Notes:      template.HTML(notes), // #nosec G203 - sanitized by the slide policy
			ImageQuery: strings.TrimSpace(slide.ImageQuery),
		}
		if err := r.section.Execute(&sections, data); err != nil {
			return "", fmt.Errorf("executing section template: %w", err)
		}
	}

	var buf bytes.Buffer
	err := deck.Execute(&buf, deckData{
		Title:       outline.Title,
		Description: outline.Description,
		Slides:      template.HTML(sections.String()), // #nosec G203 - assembled from sanitized sections
	})
	if err != nil {
		return "", fmt.Errorf("executing deck template: %w", err)
	}

	return buf.String(), nil
}

const sectionTemplate = `<section{{if .ImageQuery}} data-image-query="{{.ImageQuery}}"{{end}}>
{{.Body}}
{{if .Notes}}<aside class="notes">{{.Notes}}</aside>
{{end}}</section>
`

const defaultDeckTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    {{if .Description}}<meta name="description" content="{{.Description}}">{{end}}
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/reveal.js@5/dist/reveal.css">
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/reveal.js@5/dist/theme/white.css">
</head>
<body>
    <div class="reveal">
        <div class="slides">
{{.Slides}}
        </div>
    </div>
    <script src="https://cdn.jsdelivr.net/npm/reveal.js@5/dist/reveal.js"></script>
    <script src="https://cdn.jsdelivr.net/npm/reveal.js@5/plugin/notes/notes.js"></script>
    <script>Reveal.initialize({ hash: true, plugins: [ RevealNotes ] });</script>
</body>
</html>`
