package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// Slide count bounds for generated decks and query plans
const (
	DefaultSlideCount = 5
	MaxSlideCount     = 20
)

const queryPlannerPrompt = `You plan stock image searches for presentation slides.
Given a topic and a number of slides, outline the deck and suggest image search queries for each slide.

Respond with a single JSON object:
{"slides": [{"slideTitle": "...", "queries": ["...", "..."], "imageType": "photo", "orientation": "horizontal"}]}

Rules:
- Exactly one entry per slide, in slide order.
- Two or three short, concrete queries per slide (two to four words each).
- imageType is one of photo, illustration, vector, all.
- orientation is one of horizontal, vertical, all.`

const deckDesignerPrompt = `You are an expert presentation designer. Outline a clear, well structured deck
for the requested topic by calling the create_presentation function. The first slide introduces the
topic and the last slide summarizes it. Bullets are short phrases and may use inline markdown.`

var createPresentationFunction = ports.FunctionSpec{
	Name:        "create_presentation",
	Description: "Create a structured slide deck",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "Deck title"},
    "description": {"type": "string", "description": "One sentence summary of the deck"},
    "slides": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "bullets": {"type": "array", "items": {"type": "string"}},
          "notes": {"type": "string", "description": "Speaker notes"},
          "imageQuery": {"type": "string", "description": "Short stock image search query"}
        },
        "required": ["title", "bullets"]
      }
    }
  },
  "required": ["title", "description", "slides"]
}`),
}

// GenerationOptions configures the generation service
type GenerationOptions struct {
	StreamMode      entities.StreamMode
	DefaultTemplate string
}

// GenerationService implements the LLM-backed operations
type GenerationService struct {
	llm       ports.LLMClient
	sanitizer ports.HTMLSanitizer
	renderer  ports.DeckRenderer
	catalog   ports.TemplateCatalog
	opts      GenerationOptions
	logger    *zap.Logger
}

// NewGenerationService creates a new generation service
func NewGenerationService(
	llm ports.LLMClient,
	sanitizer ports.HTMLSanitizer,
	renderer ports.DeckRenderer,
	catalog ports.TemplateCatalog,
	opts GenerationOptions,
	logger *zap.Logger,
) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StreamMode == "" {
		opts.StreamMode = entities.StreamModeReassemble
	}
	if opts.DefaultTemplate == "" {
		opts.DefaultTemplate = entities.DefaultTemplateName
	}

	return &GenerationService{
		llm:       llm,
		sanitizer: sanitizer,
		renderer:  renderer,
		catalog:   catalog,
		opts:      opts,
		logger:    logger.With(zap.String("service", "generation")),
	}
}

func validateTopic(topic string, slideCount int) (string, int, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", 0, entities.NewValidationError("topic", "topic is required")
	}
	if slideCount == 0 {
		slideCount = DefaultSlideCount
	}
	if slideCount < 1 || slideCount > MaxSlideCount {
		return "", 0, entities.NewValidationError("slideCount", fmt.Sprintf("must be between 1 and %d", MaxSlideCount))
	}
	return topic, slideCount, nil
}

// resolveTemplate picks a catalog template. An explicit unknown name is a validation
// error; otherwise the configured default, then the built-in template, applies.
func (s *GenerationService) resolveTemplate(name string) (entities.PromptTemplate, error) {
	explicit := strings.TrimSpace(name) != ""
	if !explicit {
		name = s.opts.DefaultTemplate
	}

	if s.catalog != nil {
		if tpl, ok := s.catalog.Get(name); ok {
			return tpl, nil
		}
	}

	if explicit && name != entities.DefaultTemplateName {
		return entities.PromptTemplate{}, entities.NewValidationError("template", fmt.Sprintf("unknown template: %s", name))
	}
	return entities.DefaultPromptTemplate(), nil
}

type rawSuggestion struct {
	SlideTitle  string   `json:"slideTitle"`
	Title       string   `json:"title"`
	Queries     []string `json:"queries"`
	ImageType   string   `json:"imageType"`
	Orientation string   `json:"orientation"`
}

// GenerateQueries plans image queries for every slide of a topic
func (s *GenerationService) GenerateQueries(ctx context.Context, req ports.QueryPlanRequest) ([]entities.QuerySuggestion, error) {
	topic, slideCount, err := validateTopic(req.Topic, req.SlideCount)
	if err != nil {
		return nil, err
	}

	user := fmt.Sprintf("Topic: %s\nNumber of slides: %d", topic, slideCount)
	content, err := s.llm.WithAPIKey(req.APIKey).CompleteJSON(ctx, queryPlannerPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("planning queries: %w", err)
	}

	raw, err := parseQueryPlan(content)
	if err != nil {
		return nil, &entities.ExternalServiceError{Service: "llm", Message: "invalid query plan response", Err: err}
	}

	suggestions := normalizeSuggestions(raw, topic, slideCount)
	s.logger.Debug("planned image queries",
		zap.Int("slides", len(suggestions)),
		zap.Int("returned", len(raw)),
	)
	return suggestions, nil
}

// parseQueryPlan accepts {"slides": [...]} or a bare array
func parseQueryPlan(content string) ([]rawSuggestion, error) {
	content = stripFences(content)
	if content == "" {
		return nil, errNoJSON
	}

	var wrapped struct {
		Slides []rawSuggestion `json:"slides"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Slides != nil {
		return wrapped.Slides, nil
	}

	var bare []rawSuggestion
	if err := json.Unmarshal([]byte(content), &bare); err != nil {
		return nil, fmt.Errorf("decoding query plan: %w", err)
	}
	return bare, nil
}

func normalizeSuggestions(raw []rawSuggestion, topic string, slideCount int) []entities.QuerySuggestion {
	suggestions := make([]entities.QuerySuggestion, slideCount)
	for i := range suggestions {
		var r rawSuggestion
		if i < len(raw) {
			r = raw[i]
		}

		title := strings.TrimSpace(r.SlideTitle)
		if title == "" {
			title = strings.TrimSpace(r.Title)
		}
		if title == "" {
			title = entities.DefaultSlideTitle(i)
		}

		suggestions[i] = entities.QuerySuggestion{
			SlideTitle:  title,
			Queries:     normalizeQueryList(r.Queries, topic, title),
			ImageType:   normalizeImageType(r.ImageType),
			Orientation: normalizeOrientation(r.Orientation),
		}
	}
	return suggestions
}

// normalizeQueryList dedupes queries and pads or trims them to two or three entries
func normalizeQueryList(queries []string, topic, title string) []string {
	out := make([]string, 0, MaxQueriesPerSlide)
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] || len(out) == MaxQueriesPerSlide {
			return
		}
		seen[key] = true
		out = append(out, q)
	}

	for _, q := range queries {
		add(q)
	}
	for _, pad := range []string{topic, topic + " " + strings.ToLower(title), topic + " concept"} {
		if len(out) >= 2 {
			break
		}
		add(pad)
	}
	return out
}

func normalizeImageType(v string) entities.ImageType {
	switch t := entities.ImageType(strings.ToLower(strings.TrimSpace(v))); t {
	case entities.ImageTypePhoto, entities.ImageTypeIllustration, entities.ImageTypeVector, entities.ImageTypeAll:
		return t
	default:
		return entities.ImageTypePhoto
	}
}

func normalizeOrientation(v string) entities.Orientation {
	switch o := entities.Orientation(strings.ToLower(strings.TrimSpace(v))); o {
	case entities.OrientationHorizontal, entities.OrientationVertical, entities.OrientationAll:
		return o
	default:
		return entities.OrientationHorizontal
	}
}

// GenerateSlides outlines a deck through function calling and renders it
func (s *GenerationService) GenerateSlides(ctx context.Context, req ports.DeckRequest) (*ports.DeckResult, error) {
	topic, slideCount, err := validateTopic(req.Topic, req.SlideCount)
	if err != nil {
		return nil, err
	}

	htmlTemplate := req.HTMLTemplate
	if htmlTemplate == "" {
		tpl, err := s.resolveTemplate(req.Template)
		if err != nil {
			return nil, err
		}
		htmlTemplate = tpl.HTMLTemplate
	}

	user := fmt.Sprintf("Create a presentation about %q with exactly %d slides.", topic, slideCount)
	args, err := s.llm.WithAPIKey(req.APIKey).CallFunction(ctx, deckDesignerPrompt, user, createPresentationFunction)
	if err != nil {
		return nil, fmt.Errorf("outlining deck: %w", err)
	}

	var outline entities.DeckOutline
	if err := json.Unmarshal(args, &outline); err != nil {
		return nil, &entities.ExternalServiceError{Service: "llm", Message: "invalid function call arguments", Err: err}
	}
	if err := outline.Validate(); err != nil {
		return nil, &entities.ExternalServiceError{Service: "llm", Message: "incomplete deck outline", Err: err}
	}

	code, err := s.renderer.RenderDeck(ctx, outline, htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("rendering deck: %w", err)
	}

	return &ports.DeckResult{
		Outline: outline,
		Artifact: entities.Artifact{
			Title:       outline.Title,
			Description: outline.Description,
			Code:        code,
		},
	}, nil
}

// buildChatRequest resolves the system prompt and conversation for a chat request
func (s *GenerationService) buildChatRequest(req ports.ChatGenerationRequest) (ports.ChatRequest, error) {
	systemPrompt := strings.TrimSpace(req.SystemPrompt)
	htmlTemplate := req.HTMLTemplate
	if systemPrompt == "" || htmlTemplate == "" {
		tpl, err := s.resolveTemplate(req.Template)
		if err != nil {
			return ports.ChatRequest{}, err
		}
		if systemPrompt == "" {
			systemPrompt = tpl.SystemPrompt
		}
		if htmlTemplate == "" {
			htmlTemplate = tpl.HTMLTemplate
		}
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if strings.TrimSpace(htmlTemplate) != "" {
		sb.WriteString("\n\nUse this HTML template as the base of the presentation:\n")
		sb.WriteString(htmlTemplate)
	}
	if len(req.ValidImageURLs) > 0 {
		sb.WriteString("\n\nOnly use these image URLs:\n")
		for _, u := range req.ValidImageURLs {
			sb.WriteString("- ")
			sb.WriteString(u)
			sb.WriteString("\n")
		}
	}

	messages := make([]entities.ChatMessage, 0, len(req.Messages)+1)
	for i, m := range req.Messages {
		switch m.Role {
		case entities.RoleUser, entities.RoleAssistant, entities.RoleSystem:
		default:
			return ports.ChatRequest{}, entities.NewValidationError("messages", fmt.Sprintf("message %d has unsupported role %q", i, m.Role))
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		messages = append(messages, entities.ChatMessage{Role: entities.RoleUser, Content: prompt})
	}
	if len(messages) == 0 {
		return ports.ChatRequest{}, entities.NewValidationError("messages", "a prompt or at least one message is required")
	}

	return ports.ChatRequest{
		SystemPrompt: strings.TrimSpace(sb.String()),
		Messages:     messages,
		JSONMode:     true,
	}, nil
}

// StreamChat streams a generated presentation. Deltas are emitted as they arrive;
// in reassemble mode the sanitized artifact follows, then a done event.
func (s *GenerationService) StreamChat(ctx context.Context, req ports.ChatGenerationRequest, emit ports.EmitFunc) error {
	chatReq, err := s.buildChatRequest(req)
	if err != nil {
		return err
	}

	stream, err := s.llm.WithAPIKey(req.APIKey).StreamChat(ctx, chatReq)
	if err != nil {
		return fmt.Errorf("opening chat stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	transformer := NewStreamTransformer(s.opts.StreamMode, s.sanitizer, req.ValidImageURLs)
	deltas := 0
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("receiving chat stream: %w", err)
		}
		if delta == "" {
			continue
		}

		deltas++
		if err := emit(ports.StreamEvent{Type: ports.EventTypeDelta, Content: transformer.Push(delta)}); err != nil {
			return fmt.Errorf("emitting delta: %w", err)
		}
	}

	if artifact := transformer.Finish(); artifact != nil {
		if err := emit(ports.StreamEvent{Type: ports.EventTypeArtifact, Artifact: artifact}); err != nil {
			return fmt.Errorf("emitting artifact: %w", err)
		}
	}

	s.logger.Debug("chat stream finished",
		zap.Int("deltas", deltas),
		zap.Int("bytes", len(transformer.Text())),
		zap.String("mode", string(s.opts.StreamMode)),
	)

	if err := emit(ports.StreamEvent{Type: ports.EventTypeDone}); err != nil {
		return fmt.Errorf("emitting done: %w", err)
	}
	return nil
}
