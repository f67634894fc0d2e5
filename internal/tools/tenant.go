package tools

import "regexp"

var workspaceTagRe = regexp.MustCompile(`workspace_id[:\s]*['"]([^'"]+)['"]`)

// ExtractWorkspace pulls the workspace tag out of a tool call's arguments
// and returns the arguments with the tag removed, so it never reaches
// argument validation or the model-controlled query. The tag is looked for,
// in order: as a top-level argument, nested inside the query object, and as
// a `workspace_id: '...'` fragment inside any string argument.
func ExtractWorkspace(arguments map[string]any) (string, map[string]any) {
	workspace := ""
	out := make(map[string]any, len(arguments))
	for k, v := range arguments {
		out[k] = v
	}

	if raw, ok := out["workspace_id"]; ok {
		if s, ok := raw.(string); ok {
			workspace = s
		}
		delete(out, "workspace_id")
	}

	if query, ok := out["query"].(map[string]any); ok {
		if raw, ok := query["workspace_id"]; ok {
			if s, ok := raw.(string); ok {
				workspace = s
			}
			stripped := make(map[string]any, len(query))
			for k, v := range query {
				if k != "workspace_id" {
					stripped[k] = v
				}
			}
			out["query"] = stripped
		}
	}

	if workspace == "" {
		for _, v := range out {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if m := workspaceTagRe.FindStringSubmatch(s); m != nil {
				workspace = m[1]
				break
			}
		}
	}

	return workspace, out
}
