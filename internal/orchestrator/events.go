package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// EventSink receives progress notifications while a turn runs. Transports
// can stream these to the user; the default sink just logs them.
type EventSink interface {
	// ModelStep fires after each model response within a turn.
	ModelStep(iteration int, kind string, toolName string)
	// ToolExecuted fires after a tool call completes.
	ToolExecuted(iteration int, toolName string, result models.ToolResult)
	// TurnFinished fires once per turn with the final outcome.
	TurnFinished(result TurnResult)
}

// LogSink is the default EventSink.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: logging.Component("orchestrator")}
}

func (s *LogSink) ModelStep(iteration int, kind string, toolName string) {
	s.logger.Debug().Int("iteration", iteration).Str("kind", kind).
		Str("tool", toolName).Msg("model step")
}

func (s *LogSink) ToolExecuted(iteration int, toolName string, result models.ToolResult) {
	s.logger.Debug().Int("iteration", iteration).Str("tool", toolName).
		Int("status", result.Status).Msg("tool executed")
}

func (s *LogSink) TurnFinished(result TurnResult) {
	s.logger.Info().Int("iterations", result.Iterations).
		Bool("exhausted", result.Exhausted).Bool("errored", result.Err != nil).
		Msg("turn finished")
}
