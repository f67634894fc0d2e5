package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/ai"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/observability"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// DefaultMaxIterations bounds the model/tool loop within one turn.
const DefaultMaxIterations = 15

// CeilingApology is the final answer when a turn exhausts its iteration
// budget without the model producing one.
const CeilingApology = "I'm sorry, but this request turned out to be too complex. Please try to simplify it or break it into smaller parts."

// ModelFailureMessage ends a turn whose model endpoint failed; the
// conversation stays usable for the next turn.
const ModelFailureMessage = "I couldn't reach the language model to process your request. Please try again in a moment."

// ToolRunner executes one tool call and always returns a textual result.
type ToolRunner interface {
	Call(ctx context.Context, callID, name string, arguments map[string]any) models.ToolResult
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Text       string
	Iterations int
	Exhausted  bool
	Err        error
}

// Orchestrator drives the bounded conversation loop: model response in,
// either final text out or one tool call executed and fed back, until the
// model answers or the iteration ceiling is hit.
type Orchestrator struct {
	provider      ai.Provider
	runner        ToolRunner
	catalog       []models.ToolSpec
	maxIterations int
	sink          EventSink
	logger        zerolog.Logger
}

type Option func(*Orchestrator)

// WithMaxIterations overrides the per-turn iteration ceiling.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithEventSink installs a progress sink replacing the logging default.
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

func New(provider ai.Provider, runner ToolRunner, catalog []models.ToolSpec, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:      provider,
		runner:        runner,
		catalog:       catalog,
		maxIterations: DefaultMaxIterations,
		sink:          NewLogSink(),
		logger:        logging.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn processes one user message against the conversation and returns
// the final answer. Every path appends a final assistant message, so the
// history is never left mid-exchange.
func (o *Orchestrator) RunTurn(ctx context.Context, conv *Conversation, userText string) TurnResult {
	conv.BeginTurn(userText)

	var result TurnResult
	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		result.Iterations = iteration

		resp, err := o.provider.Generate(ctx, conv.Messages(), o.catalog)
		if err != nil {
			o.logger.Error().Err(err).Int("iteration", iteration).Msg("model invocation failed")
			conv.Append(models.Message{Role: models.RoleAssistant, Content: ModelFailureMessage})
			result.Text = ModelFailureMessage
			result.Err = err
			return o.finish(result)
		}

		if resp.Type == ai.ResponseText {
			o.sink.ModelStep(iteration, "text", "")
			conv.Append(models.Message{Role: models.RoleAssistant, Content: resp.Text})
			result.Text = resp.Text
			return o.finish(result)
		}

		// Tool call: synthesize an id when the upstream model omitted one,
		// record the request, execute, and feed the text back.
		callID := resp.ToolCallID
		if callID == "" {
			callID = NewCallID()
		}
		o.sink.ModelStep(iteration, "tool_call", resp.ToolName)

		conv.Append(models.Message{
			Role: models.RoleAssistant,
			ToolCall: &models.ToolCallRequest{
				ID:        callID,
				Name:      resp.ToolName,
				Arguments: resp.ToolArgs,
			},
		})

		arguments := parseArguments(resp.ToolArgs)
		toolResult := o.runner.Call(ctx, callID, resp.ToolName, arguments)
		o.sink.ToolExecuted(iteration, resp.ToolName, toolResult)

		conv.Append(models.Message{
			Role:    models.RoleTool,
			CallID:  callID,
			Content: toolResult.Text,
		})
	}

	conv.Append(models.Message{Role: models.RoleAssistant, Content: CeilingApology})
	result.Text = CeilingApology
	result.Exhausted = true
	return o.finish(result)
}

func (o *Orchestrator) finish(result TurnResult) TurnResult {
	observability.ObserveTurn(result.Iterations)
	o.sink.TurnFinished(result)
	return result
}

// parseArguments decodes the model's raw JSON arguments, repairing the
// common malformations first. An unparseable payload degrades to an empty
// argument map; the tool layer will reject it with a readable message.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			return args
		}
	}
	return map[string]any{}
}
