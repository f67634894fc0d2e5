package langchain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/observability"
	"github.com/fleetmetry/fleetmetry/internal/retry"
	"github.com/fleetmetry/fleetmetry/pkg/models"

	"github.com/fleetmetry/fleetmetry/internal/ai"
)

// Config for the langchain provider.
type Config struct {
	APIKey      string  `json:"api_key"`
	ModelName   string  `json:"model_name"`
	BaseURL     string  `json:"base_url"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Timeout     time.Duration
}

// LangchainProvider implements the AI Provider interface through
// langchaingo's OpenAI-compatible client, pointed at OpenRouter.
type LangchainProvider struct {
	llm         llms.Model
	modelName   string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      zerolog.Logger
}

// New creates a langchain-based provider and initializes the underlying
// client.
func New(config Config) (*LangchainProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ModelName),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &LangchainProvider{
		llm:         llm,
		modelName:   config.ModelName,
		temperature: config.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logging.Component("langchain"),
	}, nil
}

func (p *LangchainProvider) Name() string {
	return "langchain"
}

// Generate sends the conversation and catalogue to the model and maps the
// completion to either final text or a single tool call. Transient
// upstream failures are retried with backoff before giving up.
func (p *LangchainProvider) Generate(ctx context.Context, messages []models.Message, catalog []models.ToolSpec) (*ai.ModelResponse, error) {
	content, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}
	tools := ConvertCatalog(catalog)

	callOpts := []llms.CallOption{
		llms.WithTemperature(p.temperature),
		llms.WithMaxTokens(p.maxTokens),
	}
	if len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(tools))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var completion *llms.ContentResponse
	result := retry.WithBackoff(ctx, retry.ModelConfig(), func() error {
		var genErr error
		completion, genErr = p.llm.GenerateContent(ctx, content, callOpts...)
		return genErr
	})
	if !result.Success {
		observability.ObserveModelRequest("error")
		return nil, faults.Wrap(faults.ModelUnavailable, result.LastError, "model request failed after %d attempts", result.Attempts)
	}

	resp, err := interpret(completion)
	if err != nil {
		observability.ObserveModelRequest("error")
		return nil, err
	}
	observability.ObserveModelRequest(string(resp.Type))

	p.logger.Debug().Str("type", string(resp.Type)).Str("tool", resp.ToolName).
		Int("attempts", result.Attempts).Msg("model responded")
	return resp, nil
}

// interpret maps a completion to the orchestrator's response variants.
func interpret(completion *llms.ContentResponse) (*ai.ModelResponse, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, faults.New(faults.NoAnswer, "no answer from model")
	}
	choice := completion.Choices[0]

	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		if tc.FunctionCall == nil {
			return nil, faults.New(faults.NoAnswer, "model returned a tool call without a function")
		}
		return &ai.ModelResponse{
			Type:       ai.ResponseToolCall,
			ToolName:   tc.FunctionCall.Name,
			ToolArgs:   tc.FunctionCall.Arguments,
			ToolCallID: tc.ID,
		}, nil
	}

	if choice.Content != "" {
		return &ai.ModelResponse{Type: ai.ResponseText, Text: choice.Content}, nil
	}
	return nil, faults.New(faults.NoAnswer, "no answer from model")
}

// ConvertMessages maps conversation messages onto langchaingo content,
// preserving the tool-call round trip the OpenAI wire format requires.
func ConvertMessages(messages []models.Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case models.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case models.RoleAssistant:
			if msg.ToolCall != nil {
				out = append(out, llms.MessageContent{
					Role: llms.ChatMessageTypeAI,
					Parts: []llms.ContentPart{llms.ToolCall{
						ID:   msg.ToolCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      msg.ToolCall.Name,
							Arguments: msg.ToolCall.Arguments,
						},
					}},
				})
				continue
			}
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		case models.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.CallID,
					Content:    msg.Content,
				}},
			})
		default:
			return nil, faults.New(faults.InvalidArgument, "unknown message role %q", msg.Role)
		}
	}
	return out, nil
}

// ConvertCatalog maps tool specs onto the function-calling tool format.
func ConvertCatalog(catalog []models.ToolSpec) []llms.Tool {
	tools := make([]llms.Tool, 0, len(catalog))
	for _, spec := range catalog {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}
	return tools
}
