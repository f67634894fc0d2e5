package tools

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// findOptionsArgs mirrors the optional knobs of findDocuments.
type findOptionsArgs struct {
	Limit      int            `json:"limit"`
	Skip       int            `json:"skip"`
	Sort       map[string]any `json:"sort"`
	Projection map[string]any `json:"projection"`
}

type findDocumentsArgs struct {
	Collection string           `json:"collection"`
	Query      map[string]any   `json:"query"`
	Options    *findOptionsArgs `json:"options"`
}

type findOneDocumentArgs struct {
	Collection string           `json:"collection"`
	Query      map[string]any   `json:"query"`
	Options    *findOptionsArgs `json:"options"`
}

type aggregateDocumentsArgs struct {
	Collection string `json:"collection"`
	Pipeline   []any  `json:"pipeline"`
}

type countDocumentsArgs struct {
	Collection string         `json:"collection"`
	Query      map[string]any `json:"query"`
}

type getCollectionSchemaArgs struct {
	Collection string `json:"collection"`
	SampleSize int    `json:"sampleSize"`
}

type getSampleDataArgs struct {
	Collection string   `json:"collection"`
	Limit      int      `json:"limit"`
	Fields     []string `json:"fields"`
}

type findRelationshipsArgs struct {
	Collection1 string                `json:"collection1"`
	Collection2 string                `json:"collection2"`
	Schema1     models.InferredSchema `json:"schema1"`
	Schema2     models.InferredSchema `json:"schema2"`
	SampleSize  int                   `json:"sampleSize"`
}

type pgExecuteQueryArgs struct {
	Operation  string `json:"operation"`
	Query      string `json:"query"`
	Parameters []any  `json:"parameters"`
	Limit      int    `json:"limit"`
}

type pgSchemaInfoArgs struct {
	TableName string `json:"tableName"`
}

type pgSampleDataArgs struct {
	TableName string   `json:"tableName"`
	Limit     int      `json:"limit"`
	Columns   []string `json:"columns"`
}

type pgAnalyzeRelationshipsArgs struct {
	IncludeImplicitRelations bool `json:"includeImplicitRelations"`
}

type vehicleDataArgs struct {
	LicensePlate string `json:"license_plate"`
}

// structuredKeys are arguments the model sometimes sends as stringified
// JSON instead of objects; they get parsed (and repaired) back into
// structures before validation.
var structuredKeys = map[string]bool{
	"query":    true,
	"options":  true,
	"pipeline": true,
	"schema1":  true,
	"schema2":  true,
}

// PreprocessArguments decodes stringified JSON values in place of the
// structured arguments. Malformed strings go through jsonrepair first;
// values that still do not parse are left as-is for validation to reject.
func PreprocessArguments(arguments map[string]any) map[string]any {
	out := make(map[string]any, len(arguments))
	for key, value := range arguments {
		s, isString := value.(string)
		if !isString || !structuredKeys[key] {
			out[key] = value
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			out[key] = parsed
			continue
		}
		if repaired, err := jsonrepair.JSONRepair(s); err == nil {
			if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
				out[key] = parsed
				continue
			}
		}
		out[key] = value
	}
	return out
}

// decodeArgs binds a loose argument map onto a typed argument struct.
func decodeArgs(arguments map[string]any, target any) error {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return faults.Wrap(faults.InvalidArgument, err, "encode arguments")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return faults.Wrap(faults.InvalidArgument, err, "decode arguments")
	}
	return nil
}
