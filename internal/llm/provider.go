package llm

import (
	"context"
	"encoding/json"
)

// Provider sends one structured-output request to a language model.
type Provider interface {
	// Generate runs req and returns the model output. When req.Schema is set
	// the output is JSON conforming to it, already validated.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier requests are sent to.
	ModelID() string
}

// Request is a single model invocation.
type Request struct {
	System string

	// Messages is the chat transcript, oldest first. The final message is
	// normally the user turn being interpreted.
	Messages []Message

	// Schema requests structured output. Nil means free text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0,1]. Zero leaves the provider default in place.
	Temperature float64
}

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a JSON Schema the response must satisfy.
type Schema struct {
	// Name is a kebab-case identifier, also used as the compiled schema
	// cache key. Two schemas with the same name must be identical.
	Name        string
	Description string
	Definition  map[string]any
}

// Stop reasons normalized across providers.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Response is the model output for a Request.
type Response struct {
	// Content is the validated JSON object when a schema was requested,
	// otherwise the raw text.
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

// Usage is the token accounting of one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func usage(in, out int) Usage {
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// finish validates content against the request schema and assembles the
// Response. A truncated structured response is reported as an error since
// it cannot be trusted to parse.
func finish(req Request, content json.RawMessage, u Usage, model, stop string) (*Response, error) {
	if req.Schema != nil {
		if stop == StopMaxTokens {
			return nil, &ErrMaxTokensExceeded{Content: content}
		}
		if err := validateResponse(req.Schema, content); err != nil {
			return nil, err
		}
	}
	return &Response{Content: content, Usage: u, Model: model, StopReason: stop}, nil
}
