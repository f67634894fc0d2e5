package tools

import (
	"encoding/json"
	"fmt"

	"github.com/fleetmetry/fleetmetry/internal/pgstore"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// Block is one textual payload of a tool response.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the wire shape of a tool call result: one or more text
// blocks plus an HTTP-equivalent status for the transport layer.
type Response struct {
	Content []Block `json:"content"`
	Status  int     `json:"-"`
}

func textResponse(status int, texts ...string) *Response {
	blocks := make([]Block, len(texts))
	for i, t := range texts {
		blocks[i] = Block{Type: "text", Text: t}
	}
	return &Response{Content: blocks, Status: status}
}

func renderJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func renderCompactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func renderFindDocuments(collection string, docs []map[string]any) string {
	return fmt.Sprintf("Found %d documents in collection '%s'\n%s", len(docs), collection, renderJSON(docs))
}

func renderFindOneDocument(collection string, doc map[string]any) string {
	if doc == nil {
		return fmt.Sprintf("No document found in collection '%s' for the given query", collection)
	}
	return fmt.Sprintf("Found a document in collection '%s':\n%s", collection, renderJSON(doc))
}

// renderAggregate includes a short id/count summary when the pipeline looks
// like a grouping, so the model can answer without parsing the full JSON.
func renderAggregate(collection string, results []map[string]any) string {
	text := fmt.Sprintf("Aggregation on collection '%s' returned %d results", collection, len(results))
	if len(results) == 0 {
		return text + ". No documents matched the aggregation criteria."
	}
	text += ":\n" + renderJSON(results)

	first := results[0]
	if first["count"] != nil || first["_id"] != nil {
		summary := ""
		for i, res := range results {
			if i == 5 {
				break
			}
			if res["_id"] != nil && res["count"] != nil {
				summary += fmt.Sprintf("\n%d. ID: %v - Count: %v", i+1, res["_id"], res["count"])
			}
		}
		if summary != "" {
			text += "\n\nSummary:" + summary
			if len(results) > 5 {
				text += fmt.Sprintf("\n... and %d more results", len(results)-5)
			}
		}
	}
	return text
}

func renderCount(collection string, count int64, query map[string]any) string {
	if query == nil {
		query = map[string]any{}
	}
	return fmt.Sprintf("Found %d documents in collection '%s' matching query: %s", count, collection, renderCompactJSON(query))
}

func renderListCollections(names []string) *Response {
	return textResponse(200,
		fmt.Sprintf("Found %d collections in the database", len(names)),
		renderJSON(names),
	)
}

func renderCollectionSchema(collection string, report *models.SchemaReport) *Response {
	return textResponse(200,
		fmt.Sprintf("Schema analysis for collection '%s' (%d documents analyzed)", collection, report.DocumentCount),
		renderJSON(report),
	)
}

func renderSampleData(collection string, docs []map[string]any) string {
	return fmt.Sprintf("Sample of %d documents from collection '%s':\n%s", len(docs), collection, renderJSON(docs))
}

func renderRelationships(c1, c2 string, report *models.RelationshipReport) string {
	if report == nil {
		return fmt.Sprintf("No relationships found between collections '%s' and '%s'.", c1, c2)
	}
	return fmt.Sprintf("Found relationships between collections '%s' and '%s':\n%s", c1, c2, renderJSON(report))
}

func renderQueryResult(res *pgstore.QueryResult) string {
	switch res.Format {
	case "count":
		return fmt.Sprintf("Count query executed successfully. Total rows: %d", res.Count)
	case "exists":
		verdict := "DOES NOT EXIST"
		if res.Exists {
			verdict = "EXISTS"
		}
		return fmt.Sprintf("Existence query executed successfully. Result: %s", verdict)
	default:
		return fmt.Sprintf("Query executed successfully. Retrieved %d rows.\n\nResults:\n%s", len(res.Rows), renderJSON(res.Rows))
	}
}

func renderSchemaInfo(tableName string, payload any) *Response {
	message := "Tables in the database"
	if tableName != "" {
		message = fmt.Sprintf("Schema information for table %s", tableName)
	}
	return textResponse(200, message, renderJSON(payload))
}

func renderTableSamples(table string, rows []map[string]any) string {
	return fmt.Sprintf("Sample of %d rows from table '%s':\n%s", len(rows), table, renderJSON(rows))
}

func renderTableRelationships(rel *pgstore.Relationships) *Response {
	return textResponse(200, "PostgreSQL table relationship analysis:", renderJSON(rel))
}

func renderEquipment(plate string, snap *pgstore.EquipmentSnapshot) string {
	status := fmt.Sprintf("No data found for equipment %s", plate)
	if snap.Found {
		status = fmt.Sprintf("Found data for equipment %s", plate)
	}
	return fmt.Sprintf("%s:\n%s", status, renderJSON(snap))
}
