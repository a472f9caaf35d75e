package renderer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

func testOutline() entities.DeckOutline {
	return entities.DeckOutline{
		Title:       "Solar Energy",
		Description: "Why solar matters",
		Slides: []entities.SlideOutline{
			{Title: "Solar Energy", Bullets: []string{"Clean", "Abundant"}, ImageQuery: "solar panels"},
			{Title: "Costs", Bullets: []string{"Prices **fell** 90%", " "}, Notes: "Mention the *learning curve*"},
			{Title: "Summary", Bullets: []string{"Go solar"}},
		},
	}
}

func TestDeckRenderer_RenderDeck(t *testing.T) {
	renderer, err := NewDeckRenderer()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("render with built-in template", func(t *testing.T) {
		html, err := renderer.RenderDeck(ctx, testOutline(), "")
		require.NoError(t, err)

		assert.Contains(t, html, "<!DOCTYPE html>")
		assert.Contains(t, html, "<title>Solar Energy</title>")
		assert.Contains(t, html, `<div class="reveal">`)
		assert.Equal(t, 3, strings.Count(html, "<section"))

		assert.Contains(t, html, "<h1>Solar Energy</h1>")
		assert.Contains(t, html, "<h2>Costs</h2>")
		assert.Contains(t, html, "<li>Clean</li>")
		assert.Contains(t, html, "<strong>fell</strong>")
		assert.Contains(t, html, `data-image-query="solar panels"`)
		assert.Contains(t, html, `<aside class="notes"><p>Mention the <em>learning curve</em></p></aside>`)
		assert.Contains(t, html, "Reveal.initialize")
	})

	t.Run("blank bullets are skipped", func(t *testing.T) {
		html, err := renderer.RenderDeck(ctx, testOutline(), "")
		require.NoError(t, err)
		assert.NotContains(t, html, "<li></li>")
	})

	t.Run("unsafe markup is removed", func(t *testing.T) {
		outline := entities.DeckOutline{
			Title: "XSS",
			Slides: []entities.SlideOutline{{
				Title:   "Hello <script>alert(1)</script>",
				Bullets: []string{`<img src="x" onerror="alert(1)">`, "[link](javascript:alert(1))"},
			}},
		}

		html, err := renderer.RenderDeck(ctx, outline, "")
		require.NoError(t, err)

		assert.NotContains(t, html, "<script>alert")
		assert.NotContains(t, html, "onerror")
		assert.NotContains(t, html, "javascript:")
	})

	t.Run("title is escaped in the document", func(t *testing.T) {
		outline := testOutline()
		outline.Title = `A & B <Deck>`

		html, err := renderer.RenderDeck(ctx, outline, "")
		require.NoError(t, err)
		assert.Contains(t, html, "<title>A &amp; B &lt;Deck&gt;</title>")
	})

	t.Run("custom template", func(t *testing.T) {
		html, err := renderer.RenderDeck(ctx, testOutline(), `<main data-title="{{.Title}}">{{.Slides}}</main>`)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(html, `<main data-title="Solar Energy">`))
		assert.Contains(t, html, "<h2>Costs</h2>")
		assert.NotContains(t, html, "<!DOCTYPE html>")
	})

	t.Run("custom template without slides placeholder", func(t *testing.T) {
		_, err := renderer.RenderDeck(ctx, testOutline(), "<main>{{.Title}}</main>")

		var validationErr *entities.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "htmlTemplate", validationErr.Field)
	})

	t.Run("unparseable custom template", func(t *testing.T) {
		_, err := renderer.RenderDeck(ctx, testOutline(), "<main>{{.Slides}}{{if}}</main>")

		var validationErr *entities.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("empty outline", func(t *testing.T) {
		_, err := renderer.RenderDeck(ctx, entities.DeckOutline{Title: "Empty"}, "")

		var validationErr *entities.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := renderer.RenderDeck(cancelled, testOutline(), "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
