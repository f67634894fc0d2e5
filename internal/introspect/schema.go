// Package introspect infers the structure of schema-less collections by
// sampling documents, and proposes foreign-key-like relationships between
// collections by name-pattern matching and value-overlap verification.
package introspect

import (
	"context"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// DefaultMaxDepth bounds nested-structure recursion.
const DefaultMaxDepth = 3

// Document is one sampled record with its raw BSON-decoded values.
type Document = map[string]any

// Sampler draws up to limit documents from a named source, tenant-filtered
// when a workspace tag is present.
type Sampler interface {
	Sample(ctx context.Context, source string, limit int, workspace string) ([]Document, error)
}

// Analyze samples a collection and returns its inferred schema. The result is
// recomputed on every call and never cached.
func Analyze(ctx context.Context, sampler Sampler, source string, sampleSize, maxDepth int, workspace string) (*models.SchemaReport, error) {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	docs, err := sampler.Sample(ctx, source, sampleSize, workspace)
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "sampling %q failed", source)
	}
	if len(docs) == 0 {
		return nil, faults.New(faults.EmptySource, "collection %q is empty or doesn't exist for this workspace", source)
	}

	schema := Infer(docs)
	EnhanceWithNested(schema, docs, maxDepth)

	return &models.SchemaReport{
		Collection:            source,
		DocumentCount:         len(docs),
		SampleSize:            sampleSize,
		Schema:                schema,
		NestedObjectsAnalyzed: true,
	}, nil
}

// Infer builds the flat field profile for a document sample: observed type
// tags and frequency = round(100 * occurrences / sampleSize).
func Infer(docs []Document) models.InferredSchema {
	schema := models.InferredSchema{}
	if len(docs) == 0 {
		return schema
	}

	counts := map[string]int{}
	types := map[string]map[string]bool{}

	for _, doc := range docs {
		for field, value := range doc {
			counts[field]++
			if types[field] == nil {
				types[field] = map[string]bool{}
			}
			types[field][typeTag(value)] = true
		}
	}

	for field, count := range counts {
		schema[field] = &models.FieldProfile{
			Types:     sortedKeys(types[field]),
			Frequency: roundPercent(count, len(docs)),
		}
	}
	return schema
}

// EnhanceWithNested attaches recursive structure profiles to object-shaped
// fields and to array fields whose elements are object-shaped. Scalar array
// elements are not expanded.
func EnhanceWithNested(schema models.InferredSchema, docs []Document, maxDepth int) {
	for field, profile := range schema {
		if hasType(profile.Types, "object") {
			var samples []map[string]any
			for _, doc := range docs {
				if obj, ok := asObject(doc[field]); ok {
					samples = append(samples, obj)
				}
			}
			if len(samples) > 0 {
				profile.ObjectStructure = analyzeObjects(samples, maxDepth, 0)
			}
		}

		if hasType(profile.Types, "array") {
			var elements []map[string]any
			for _, doc := range docs {
				arr, ok := asArray(doc[field])
				if !ok {
					continue
				}
				for _, el := range arr {
					if obj, ok := asObject(el); ok {
						elements = append(elements, obj)
					}
				}
			}
			if len(elements) > 0 {
				profile.ArrayElementStructure = analyzeObjects(elements, maxDepth, 0)
			}
		}
	}
}

// analyzeObjects profiles a set of object values, recursing into nested
// objects and arrays-of-objects until maxDepth.
func analyzeObjects(objects []map[string]any, maxDepth, currentDepth int) map[string]*models.FieldProfile {
	counts := map[string]int{}
	types := map[string]map[string]bool{}
	nestedObjects := map[string][]map[string]any{}
	nestedElements := map[string][]map[string]any{}

	for _, obj := range objects {
		for key, value := range obj {
			counts[key]++
			if types[key] == nil {
				types[key] = map[string]bool{}
			}
			types[key][typeTag(value)] = true

			if currentDepth >= maxDepth {
				continue
			}
			if nested, ok := asObject(value); ok {
				nestedObjects[key] = append(nestedObjects[key], nested)
			} else if arr, ok := asArray(value); ok {
				for _, el := range arr {
					if nested, ok := asObject(el); ok {
						nestedElements[key] = append(nestedElements[key], nested)
					}
				}
			}
		}
	}

	structure := map[string]*models.FieldProfile{}
	for field, count := range counts {
		profile := &models.FieldProfile{
			Types:        sortedKeys(types[field]),
			Frequency:    roundPercent(count, len(objects)),
			Occurrences:  count,
			TotalSamples: len(objects),
		}

		if objs := nestedObjects[field]; len(objs) > 0 {
			profile.NestedStructure = analyzeObjects(objs, maxDepth, currentDepth+1)
			profile.Depth = currentDepth + 1
			profile.HasNestedObjects = true
		} else if els := nestedElements[field]; len(els) > 0 {
			profile.ArrayElementStructure = analyzeObjects(els, maxDepth, currentDepth+1)
			profile.Depth = currentDepth + 1
			profile.HasNestedObjects = true
		}

		structure[field] = profile
	}
	return structure
}

func roundPercent(occurrences, total int) int {
	return int(math.Round(float64(occurrences) / float64(total) * 100))
}

func hasType(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// typeTag classifies a BSON-decoded value into the tag vocabulary the model
// sees: null, boolean, number, string, array, object, objectId, date.
func typeTag(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64, bson.Decimal128:
		return "number"
	case string:
		return "string"
	case bson.ObjectID:
		return "objectId"
	case bson.DateTime:
		return "date"
	case []any, bson.A:
		return "array"
	case map[string]any, bson.M, bson.D:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func asObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case bson.M:
		return map[string]any(v), true
	case map[string]any:
		return v, true
	case bson.D:
		obj := make(map[string]any, len(v))
		for _, e := range v {
			obj[e.Key] = e.Value
		}
		return obj, true
	default:
		return nil, false
	}
}

func asArray(value any) ([]any, bool) {
	switch v := value.(type) {
	case bson.A:
		return []any(v), true
	case []any:
		return v, true
	default:
		return nil, false
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// Stable ordering keeps rendered schemas deterministic for the model.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
