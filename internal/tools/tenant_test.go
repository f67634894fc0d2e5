package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractWorkspaceTopLevel(t *testing.T) {
	ws, args := ExtractWorkspace(map[string]any{
		"collection":   "defects",
		"workspace_id": "northfleet",
	})
	assert.Equal(t, "northfleet", ws)
	_, present := args["workspace_id"]
	assert.False(t, present)
	assert.Equal(t, "defects", args["collection"])
}

func TestExtractWorkspaceFromQuery(t *testing.T) {
	ws, args := ExtractWorkspace(map[string]any{
		"collection": "defects",
		"query": map[string]any{
			"status":       "open",
			"workspace_id": "northfleet",
		},
	})
	assert.Equal(t, "northfleet", ws)
	query := args["query"].(map[string]any)
	_, present := query["workspace_id"]
	assert.False(t, present)
	assert.Equal(t, "open", query["status"])
}

func TestExtractWorkspaceFromStringArgument(t *testing.T) {
	ws, _ := ExtractWorkspace(map[string]any{
		"query": "find defects where workspace_id: 'northfleet'}",
	})
	assert.Equal(t, "northfleet", ws)
}

func TestExtractWorkspaceAbsent(t *testing.T) {
	ws, args := ExtractWorkspace(map[string]any{"collection": "defects"})
	assert.Empty(t, ws)
	assert.Equal(t, "defects", args["collection"])
}

func TestExtractWorkspaceDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"workspace_id": "northfleet",
		"query":        map[string]any{"workspace_id": "northfleet"},
	}
	_, _ = ExtractWorkspace(in)
	assert.Equal(t, "northfleet", in["workspace_id"])
	assert.Equal(t, "northfleet", in["query"].(map[string]any)["workspace_id"])
}

func TestPreprocessArgumentsParsesStringifiedJSON(t *testing.T) {
	out := PreprocessArguments(map[string]any{
		"collection": "defects",
		"query":      `{"status": "open"}`,
		"pipeline":   `[{"$group": {"_id": "$status"}}]`,
	})
	query := out["query"].(map[string]any)
	assert.Equal(t, "open", query["status"])
	pipeline := out["pipeline"].([]any)
	assert.Len(t, pipeline, 1)
	assert.Equal(t, "defects", out["collection"])
}

func TestPreprocessArgumentsRepairsMalformedJSON(t *testing.T) {
	// single quotes, a model favourite
	out := PreprocessArguments(map[string]any{
		"query": `{'status': 'open'}`,
	})
	query, ok := out["query"].(map[string]any)
	if assert.True(t, ok, "repaired value should decode to a map") {
		assert.Equal(t, "open", query["status"])
	}
}

func TestPreprocessArgumentsLeavesPlainStrings(t *testing.T) {
	out := PreprocessArguments(map[string]any{
		"tableName": "daily_history_wfd",
	})
	assert.Equal(t, "daily_history_wfd", out["tableName"])
}
