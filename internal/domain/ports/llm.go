package ports

import (
	"context"
	"encoding/json"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// ChatRequest is a single completion request sent to the model
type ChatRequest struct {
	SystemPrompt string
	Messages     []entities.ChatMessage
	// JSONMode asks the model for a single JSON object response
	JSONMode bool
}

// ChatStream yields content deltas until Recv returns io.EOF
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// FunctionSpec describes a tool the model is forced to call
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// LLMClient defines the interface for an OpenAI-compatible chat model
type LLMClient interface {
	// StreamChat opens a streaming completion bound to ctx
	StreamChat(ctx context.Context, req ChatRequest) (ChatStream, error)

	// CompleteJSON runs a non-streaming completion in JSON mode and returns the raw content
	CompleteJSON(ctx context.Context, system, user string) (string, error)

	// CallFunction forces a tool call and returns its arguments
	CallFunction(ctx context.Context, system, user string, fn FunctionSpec) (json.RawMessage, error)

	// WithAPIKey returns a client using a per-request key, or the receiver when key is empty
	WithAPIKey(key string) LLMClient
}
