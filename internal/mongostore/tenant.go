package mongostore

import "go.mongodb.org/mongo-driver/v2/bson"

// tenantValue converts a 24-hex workspace tag to an ObjectID so the clause
// matches collections that store the tag as one; anything else stays a
// string.
func tenantValue(workspace string) any {
	if oid, err := bson.ObjectIDFromHex(workspace); err == nil {
		return oid
	}
	return workspace
}

// WithTenant returns a copy of the filter constrained to a single
// workspace. The caller's map is not modified; an existing workspace_id
// clause supplied by the model is overwritten rather than trusted.
func WithTenant(filter map[string]any, workspace string) map[string]any {
	if workspace == "" {
		return filter
	}
	out := make(map[string]any, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	out["workspace_id"] = tenantValue(workspace)
	return out
}

// PipelineWithTenant constrains an aggregation pipeline to a workspace.
// When the first stage is a $match the clause is merged into a copy of it,
// so index selection still sees a leading match; otherwise a new $match
// stage is prepended.
func PipelineWithTenant(pipeline []any, workspace string) []any {
	if workspace == "" {
		return pipeline
	}
	if len(pipeline) > 0 {
		if stage, ok := asStringMap(pipeline[0]); ok {
			if body, ok := stage["$match"]; ok {
				if match, ok := asStringMap(body); ok {
					merged := WithTenant(match, workspace)
					out := make([]any, len(pipeline))
					copy(out, pipeline)
					out[0] = map[string]any{"$match": merged}
					return out
				}
			}
		}
	}
	out := make([]any, 0, len(pipeline)+1)
	out = append(out, map[string]any{"$match": map[string]any{"workspace_id": tenantValue(workspace)}})
	out = append(out, pipeline...)
	return out
}
