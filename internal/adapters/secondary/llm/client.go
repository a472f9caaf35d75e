package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

const serviceName = "llm"

// Config holds the chat completion provider settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout bounds non-streaming calls; streams are bound by the caller's context
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completion API
type Client struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a new OpenAI-compatible client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client: newOpenAIClient(cfg),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm"), zap.String("model", cfg.Model)),
	}
}

// WithAPIKey returns a client that authenticates with key, or the receiver when key is empty
func (c *Client) WithAPIKey(key string) ports.LLMClient {
	if key == "" {
		return c
	}
	cfg := c.cfg
	cfg.APIKey = key
	return &Client{
		client: newOpenAIClient(cfg),
		cfg:    cfg,
		logger: c.logger,
	}
}

func newOpenAIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(clientCfg)
}

// StreamChat opens a streaming completion; the stream ends when ctx is cancelled
func (c *Client) StreamChat(ctx context.Context, req ports.ChatRequest) (ports.ChatStream, error) {
	if err := c.checkKey(); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := c.baseRequest(messages)
	chatReq.Stream = true
	if req.JSONMode {
		chatReq.ResponseFormat = jsonFormat()
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, parseAPIError(err)
	}

	c.logger.Debug("chat stream opened", zap.Int("messages", len(messages)))
	return &chatStream{stream: stream}, nil
}

// CompleteJSON runs a single JSON-mode completion and returns the message content
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	if err := c.checkKey(); err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.baseRequest(conversation(system, user))
	req.ResponseFormat = jsonFormat()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &entities.ExternalServiceError{Service: serviceName, Message: "empty completion response"}
	}

	c.logger.Debug("json completion finished", zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// CallFunction forces the model to call fn and returns the call arguments
func (c *Client) CallFunction(ctx context.Context, system, user string, fn ports.FunctionSpec) (json.RawMessage, error) {
	if err := c.checkKey(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.baseRequest(conversation(system, user))
	req.Tools = []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		},
	}}
	req.ToolChoice = openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: fn.Name},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}

	for _, choice := range resp.Choices {
		for _, call := range choice.Message.ToolCalls {
			if call.Function.Name != fn.Name {
				continue
			}
			args := strings.TrimSpace(call.Function.Arguments)
			if !json.Valid([]byte(args)) {
				return nil, &entities.ExternalServiceError{
					Service: serviceName,
					Message: fmt.Sprintf("function %s returned malformed arguments", fn.Name),
				}
			}
			return json.RawMessage(args), nil
		}
	}

	return nil, &entities.ExternalServiceError{
		Service: serviceName,
		Message: fmt.Sprintf("model did not call function %s", fn.Name),
	}
}

func (c *Client) baseRequest(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
}

func (c *Client) checkKey() error {
	if c.cfg.APIKey == "" {
		return entities.NewValidationError("apiKey", "LLM API key is not configured")
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func conversation(system, user string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

func jsonFormat() *openai.ChatCompletionResponseFormat {
	return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
}

type chatStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty content delta, or io.EOF at the end of the stream
func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", parseAPIError(err)
		}

		var delta strings.Builder
		for _, choice := range resp.Choices {
			delta.WriteString(choice.Delta.Content)
		}
		if delta.Len() > 0 {
			return delta.String(), nil
		}
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}

// parseAPIError converts client errors to ExternalServiceError so handlers map them to 502
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &entities.ExternalServiceError{
			Service:    serviceName,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(reqErr.Body)), 512)
		}
		if msg == "" {
			msg = "request failed"
		}
		return &entities.ExternalServiceError{
			Service:    serviceName,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	}

	return &entities.ExternalServiceError{Service: serviceName, Message: "request failed", Err: err}
}

// extractDetail reads the "detail" field some compatible providers use for errors
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
