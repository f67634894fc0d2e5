package ai

import (
	"context"

	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// ResponseType tags what the model produced.
type ResponseType string

const (
	// ResponseText is a final assistant answer.
	ResponseText ResponseType = "text"
	// ResponseToolCall is a request to execute exactly one tool.
	ResponseToolCall ResponseType = "tool_call"
)

// ModelResponse is one model completion: either final text or a single
// tool invocation request.
type ModelResponse struct {
	Type       ResponseType
	Text       string
	ToolName   string
	ToolArgs   string // raw JSON arguments
	ToolCallID string
}

// Provider is an AI service that can drive a tool-calling conversation.
type Provider interface {
	// Generate sends the message history plus the tool catalogue and
	// returns the model's next step.
	Generate(ctx context.Context, messages []models.Message, catalog []models.ToolSpec) (*ModelResponse, error)

	// Name returns the provider's name.
	Name() string
}
