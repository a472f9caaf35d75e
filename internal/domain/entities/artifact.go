package entities

import (
	"errors"
	"strings"
)

// Artifact is the generated presentation returned by the model
type Artifact struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Validate ensures the artifact carries presentation markup
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.Code) == "" {
		return errors.New("artifact code cannot be empty")
	}
	return nil
}

// ChatMessage is one turn of the conversation sent to the model
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles accepted from clients
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SlideOutline is one slide of a structured deck produced by function calling
type SlideOutline struct {
	Title      string   `json:"title"`
	Bullets    []string `json:"bullets"`
	Notes      string   `json:"notes,omitempty"`
	ImageQuery string   `json:"imageQuery,omitempty"`
}

// DeckOutline is the structured deck produced by function calling
type DeckOutline struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Slides      []SlideOutline `json:"slides"`
}

// Validate ensures the outline has a title and slides
func (d *DeckOutline) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("deck title is required")
	}
	if len(d.Slides) == 0 {
		return errors.New("deck must have at least one slide")
	}
	return nil
}

// QuerySuggestion is the per-slide image query plan returned by generate-queries
type QuerySuggestion struct {
	SlideTitle  string      `json:"slideTitle"`
	Queries     []string    `json:"queries"`
	ImageType   ImageType   `json:"imageType"`
	Orientation Orientation `json:"orientation"`
}

// PromptTemplate is a named system prompt and HTML template preset
type PromptTemplate struct {
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	SystemPrompt string `yaml:"system_prompt" json:"systemPrompt,omitempty"`
	HTMLTemplate string `yaml:"html_template" json:"htmlTemplate,omitempty"`
}

// Validate ensures the template can be used for generation
func (t *PromptTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("template name is required")
	}
	if strings.TrimSpace(t.SystemPrompt) == "" && strings.TrimSpace(t.HTMLTemplate) == "" {
		return errors.New("template must define a system prompt or an HTML template")
	}
	return nil
}

// DefaultTemplateName is the name of the built-in prompt template
const DefaultTemplateName = "default"

const defaultSystemPrompt = `You are an expert presentation designer. Create a complete, self-contained
reveal.js presentation for the user's request.

Respond with a single JSON object and nothing else:
{"title": "short deck title", "description": "one sentence summary", "code": "<!DOCTYPE html>..."}

Rules for "code":
- A full HTML document that loads reveal.js from a CDN and initializes it.
- One <section> per slide inside <div class="reveal"><div class="slides">.
- The first slide is a title slide; the last slide is a conclusion or summary.
- Keep each slide focused: a heading and at most five short bullet points.
- Only use image URLs that the user explicitly provides. Never invent image URLs.`

// DefaultPromptTemplate returns the built-in template used when no catalog entry applies
func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{
		Name:         DefaultTemplateName,
		Description:  "Clean reveal.js deck with a title slide and a closing summary",
		SystemPrompt: defaultSystemPrompt,
	}
}
