// Package faults defines the error taxonomy shared by the tool layer and the
// orchestrator. Tool-level faults are rendered into textual tool results and
// fed back to the model; only orchestrator-level faults terminate a turn.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a fault for propagation decisions.
type Kind string

const (
	// InvalidArgument marks bad or missing tool parameters. Never retried;
	// surfaced verbatim so the model can self-correct.
	InvalidArgument Kind = "INVALID_ARGUMENT"
	// UnknownTool marks a dispatch against an unregistered tool name.
	UnknownTool Kind = "UNKNOWN_TOOL"
	// EmptySource marks an introspection sample that returned no documents.
	EmptySource Kind = "EMPTY_SOURCE"
	// SourceUnavailable marks a transient connectivity fault during sampling.
	SourceUnavailable Kind = "SOURCE_UNAVAILABLE"
	// NotAReadQuery marks a rejected non-SELECT statement. No side effect
	// has occurred when this is returned.
	NotAReadQuery Kind = "NOT_A_READ_QUERY"
	// QueryExecutionFailed wraps underlying datastore faults.
	QueryExecutionFailed Kind = "QUERY_EXECUTION_FAILED"
	// ModelUnavailable marks an unreachable or failing model endpoint.
	ModelUnavailable Kind = "MODEL_UNAVAILABLE"
	// NoAnswer marks a model response carrying neither text nor a tool call.
	NoAnswer Kind = "NO_ANSWER"
)

// Fault is an error tagged with a Kind, optionally wrapping a cause.
type Fault struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// New creates a fault with a formatted message.
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or an empty Kind for untagged errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
