// Package models contains the shared domain models for FleetMetry:
// conversation messages, tool descriptions, and the derived schema and
// relationship structures produced by introspection.
package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest records a single tool invocation requested by the model.
// Arguments holds the raw JSON argument object exactly as the model produced
// it, so the request can be round-tripped back to the model on later turns.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in a conversation history. Exactly one of Content or
// ToolCall is meaningful for assistant messages; tool messages carry the
// result text plus the CallID of the request they answer.
type Message struct {
	Role     Role             `json:"role"`
	Content  string           `json:"content,omitempty"`
	ToolCall *ToolCallRequest `json:"tool_call,omitempty"`
	CallID   string           `json:"tool_call_id,omitempty"`
}

// Property describes one field of a tool's parameter schema. The JSON shape
// mirrors the subset of JSON Schema the tool transport exposes.
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Default     any                  `json:"default,omitempty"`
}

// ParameterSchema is the parameter specification of a tool.
type ParameterSchema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

// ToolSpec describes one callable tool. Specs are immutable once registered;
// the catalogue is loaded at startup and read-only thereafter.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ParameterSchema `json:"inputSchema"`
}

// ToolInvocation is a validated request to run one tool. Workspace is the
// tenant tag extracted from the arguments; empty means global scope.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Workspace string         `json:"-"`
}

// ToolResult is the textual outcome of a tool invocation. A result is always
// produced, even on failure; Status carries the HTTP-equivalent code for the
// transport layer.
type ToolResult struct {
	CallID string `json:"tool_call_id,omitempty"`
	Text   string `json:"text"`
	Status int    `json:"-"`
}

// FieldProfile is the inferred profile of one field in a sampled collection.
// Frequency is the share of sampled documents containing the field, as a
// rounded percentage in [0,100]. Nested structures are present only for
// object- or array-of-object-shaped fields, capped at the configured depth.
type FieldProfile struct {
	Types                 []string                 `json:"types"`
	Frequency             int                      `json:"frequency"`
	Occurrences           int                      `json:"occurrences,omitempty"`
	TotalSamples          int                      `json:"totalSamples,omitempty"`
	Depth                 int                      `json:"depth,omitempty"`
	HasNestedObjects      bool                     `json:"hasNestedObjects,omitempty"`
	ObjectStructure       map[string]*FieldProfile `json:"objectStructure,omitempty"`
	ArrayElementStructure map[string]*FieldProfile `json:"arrayElementStructure,omitempty"`
	NestedStructure       map[string]*FieldProfile `json:"nestedStructure,omitempty"`
}

// InferredSchema maps field names to their sampled profiles. It is derived,
// ephemeral, and recomputed on every introspection call.
type InferredSchema map[string]*FieldProfile

// SchemaReport wraps an inferred schema with its sampling context.
type SchemaReport struct {
	Collection            string         `json:"collectionName"`
	DocumentCount         int            `json:"documentCount"`
	SampleSize            int            `json:"sampleSize"`
	Schema                InferredSchema `json:"schema"`
	NestedObjectsAnalyzed bool           `json:"nestedObjectsAnalyzed"`
}

// RelationshipCandidate is a statistically verified foreign-key-like link
// between two collections. Strength is the observed match rate in [0,1];
// candidates are heuristic and false positives are expected.
type RelationshipCandidate struct {
	Type          string  `json:"type"`
	From          string  `json:"from"`
	FromField     string  `json:"fromField"`
	To            string  `json:"to"`
	ToField       string  `json:"toField"`
	Strength      float64 `json:"strength"`
	SampleMatches int     `json:"sampleMatches"`
}

// RelationshipReport groups the accepted candidates for one collection pair.
type RelationshipReport struct {
	Collection1   string                  `json:"collection1"`
	Collection2   string                  `json:"collection2"`
	Relationships []RelationshipCandidate `json:"relationships"`
}
