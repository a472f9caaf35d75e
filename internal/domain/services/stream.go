package services

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// StreamTransformer sanitizes the artifact carried by streamed model output
type StreamTransformer struct {
	mode      entities.StreamMode
	sanitizer ports.HTMLSanitizer
	validURLs []string
	buf       strings.Builder
}

// NewStreamTransformer creates a new stream transformer
func NewStreamTransformer(mode entities.StreamMode, sanitizer ports.HTMLSanitizer, validURLs []string) *StreamTransformer {
	if mode == "" {
		mode = entities.StreamModeReassemble
	}
	return &StreamTransformer{
		mode:      mode,
		sanitizer: sanitizer,
		validURLs: validURLs,
	}
}

// Push consumes one delta and returns the content to forward to the client.
// In chunk mode a delta that is a complete artifact is forwarded with sanitized code;
// anything else passes through unchanged.
func (t *StreamTransformer) Push(delta string) string {
	t.buf.WriteString(delta)

	if t.mode != entities.StreamModeChunk {
		return delta
	}

	artifact, err := ParseArtifact(delta)
	if err != nil {
		return delta
	}

	artifact.Code = t.sanitize(artifact.Code)
	data, err := json.Marshal(artifact)
	if err != nil {
		return delta
	}
	return string(data)
}

// Finish returns the sanitized artifact assembled from all deltas. Chunk mode has no
// final artifact and returns nil, as does an empty stream.
func (t *StreamTransformer) Finish() *entities.Artifact {
	if t.mode == entities.StreamModeChunk {
		return nil
	}

	text := strings.TrimSpace(t.buf.String())
	if text == "" {
		return nil
	}

	artifact, err := ParseArtifact(text)
	if err != nil {
		artifact = &entities.Artifact{Code: stripFences(text)}
	}

	if strings.Contains(artifact.Code, "<") {
		artifact.Code = t.sanitize(artifact.Code)
	}
	return artifact
}

// Text returns everything pushed so far
func (t *StreamTransformer) Text() string {
	return t.buf.String()
}

func (t *StreamTransformer) sanitize(code string) string {
	if t.sanitizer == nil {
		return code
	}
	out, _ := t.sanitizer.Sanitize(code, t.validURLs)
	return out
}

// ParseArtifact decodes an artifact JSON object, tolerating a markdown code fence
func ParseArtifact(text string) (*entities.Artifact, error) {
	var artifact entities.Artifact
	if err := json.Unmarshal([]byte(stripFences(text)), &artifact); err != nil {
		return nil, err
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

var errNoJSON = errors.New("no JSON content")

// stripFences removes a surrounding ``` or ```json fence
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
