package ports

import (
	"context"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// HTTPServer defines the interface for the HTTP server
type HTTPServer interface {
	Start(ctx context.Context, port int, host string) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// StreamEvent is one newline-delimited event of a chat stream
type StreamEvent struct {
	Type     string             `json:"type"`
	Content  string             `json:"content,omitempty"`
	Artifact *entities.Artifact `json:"artifact,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// StreamEventType constants
const (
	EventTypeDelta    = "delta"
	EventTypeArtifact = "artifact"
	EventTypeDone     = "done"
	EventTypeError    = "error"
	EventTypeStop     = "stop"
)

// EmitFunc delivers a stream event to the client
type EmitFunc func(event StreamEvent) error
