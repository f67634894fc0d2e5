package introspect

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// FieldMatcher decides whether a field name looks like a reference to a
// target collection. The default implementation is a naming heuristic; it is
// an interface so alternative strategies can be swapped in and tested in
// isolation.
type FieldMatcher interface {
	Matches(field, targetSource string) bool
}

// PatternMatcher matches canonical foreign-key naming patterns derived from
// the target collection's name, plus any field carrying an identifier-like
// suffix. It is deliberately fuzzy; verification filters the false positives.
type PatternMatcher struct{}

func (PatternMatcher) Matches(field, targetSource string) bool {
	f := strings.ToLower(field)
	target := strings.ToLower(targetSource)
	singular := strings.TrimSuffix(target, "s")

	patterns := []string{
		singular + "id",
		singular + "_id",
		target + "id",
		target + "_id",
	}
	for _, p := range patterns {
		if strings.Contains(f, p) {
			return true
		}
	}
	if singular != "" && strings.Contains(f, singular) {
		return true
	}
	return strings.Contains(field, "_id") || strings.Contains(field, "Id")
}

// Inferrer proposes and verifies relationships between two collections.
type Inferrer struct {
	sampler Sampler
	matcher FieldMatcher
}

// NewInferrer creates an inferrer with the default pattern matcher.
func NewInferrer(sampler Sampler) *Inferrer {
	return &Inferrer{sampler: sampler, matcher: PatternMatcher{}}
}

// NewInferrerWithMatcher creates an inferrer with a custom matching strategy.
func NewInferrerWithMatcher(sampler Sampler, matcher FieldMatcher) *Inferrer {
	return &Inferrer{sampler: sampler, matcher: matcher}
}

// InferRelationships tests both directions between two collections and
// returns all verified candidates, or nil when none pass verification.
// Missing schemas short-circuit to nil rather than raising.
func (in *Inferrer) InferRelationships(ctx context.Context, col1, col2 string, schema1, schema2 models.InferredSchema, sampleSize int, workspace string) (*models.RelationshipReport, error) {
	if len(schema1) == 0 || len(schema2) == 0 {
		return nil, nil
	}
	if sampleSize <= 0 {
		sampleSize = 5
	}

	var relationships []models.RelationshipCandidate

	for field := range schema1 {
		if !in.matcher.Matches(field, col2) {
			continue
		}
		if cand, ok := in.verify(ctx, col1, field, col2, "_id", sampleSize, workspace); ok {
			relationships = append(relationships, cand)
		}
	}

	for field := range schema2 {
		if !in.matcher.Matches(field, col1) {
			continue
		}
		if cand, ok := in.verify(ctx, col2, field, col1, "_id", sampleSize, workspace); ok {
			relationships = append(relationships, cand)
		}
	}

	if len(relationships) == 0 {
		return nil, nil
	}
	return &models.RelationshipReport{
		Collection1:   col1,
		Collection2:   col2,
		Relationships: relationships,
	}, nil
}

// verify samples both collections and measures the overlap between the
// candidate field's values and the target key's values. A candidate is
// accepted only when strictly more than 10% of the source values match.
func (in *Inferrer) verify(ctx context.Context, from, fromField, to, toField string, sampleSize int, workspace string) (models.RelationshipCandidate, bool) {
	fromDocs, err := in.sampler.Sample(ctx, from, sampleSize, workspace)
	if err != nil || len(fromDocs) == 0 {
		return models.RelationshipCandidate{}, false
	}
	toDocs, err := in.sampler.Sample(ctx, to, sampleSize, workspace)
	if err != nil || len(toDocs) == 0 {
		return models.RelationshipCandidate{}, false
	}

	var fromValues []string
	for _, doc := range fromDocs {
		if v, ok := canonicalValue(doc[fromField]); ok {
			fromValues = append(fromValues, v)
		}
	}
	if len(fromValues) == 0 {
		return models.RelationshipCandidate{}, false
	}

	toValues := map[string]bool{}
	for _, doc := range toDocs {
		if v, ok := canonicalValue(doc[toField]); ok {
			toValues[v] = true
		}
	}

	matches := 0
	for _, v := range fromValues {
		if toValues[v] {
			matches++
		}
	}

	strength := float64(matches) / float64(len(fromValues))
	if strength <= 0.1 {
		return models.RelationshipCandidate{}, false
	}

	return models.RelationshipCandidate{
		Type:          "foreign_key",
		From:          from,
		FromField:     fromField,
		To:            to,
		ToField:       toField,
		Strength:      math.Round(strength*100) / 100,
		SampleMatches: matches,
	}, true
}

// canonicalValue coerces composite id representations to a comparable string.
func canonicalValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case bson.ObjectID:
		return v.Hex(), true
	case map[string]any:
		if oid, ok := v["$oid"].(string); ok {
			return oid, true
		}
		return fmt.Sprint(v), true
	case bson.M:
		if oid, ok := v["$oid"].(string); ok {
			return oid, true
		}
		return fmt.Sprint(v), true
	default:
		return fmt.Sprint(v), true
	}
}
