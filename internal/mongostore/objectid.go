package mongostore

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// pipelineValueStages use their argument as a filter-like document where
// id coercion applies to nested values.
var pipelineValueStages = map[string]bool{
	"$match":       true,
	"$lookup":      true,
	"$graphLookup": true,
}

// looksLikeIDKey reports whether a field name conventionally holds a
// document identifier.
func looksLikeIDKey(key string) bool {
	if key == "_id" {
		return true
	}
	if strings.HasSuffix(key, "_id") || strings.HasSuffix(key, "Id") {
		return true
	}
	return false
}

func isHexObjectID(s string) bool {
	if len(s) != 24 {
		return false
	}
	for i := 0; i < 24; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// coerceObjectIDs walks a query document and converts 24-hex strings to
// bson.ObjectID values wherever the surrounding position indicates an
// identifier: id-like keys, comparison operators under id-like keys, $in/$nin
// arrays, and extended-JSON {"$oid": ...} maps. The input is never mutated;
// a rewritten copy is returned.
func coerceObjectIDs(value any, idContext bool) any {
	switch v := value.(type) {
	case string:
		if idContext && isHexObjectID(v) {
			if oid, err := bson.ObjectIDFromHex(v); err == nil {
				return oid
			}
		}
		return v
	case map[string]any:
		if oid, ok := unwrapEJSONID(v); ok {
			return oid
		}
		return coerceMap(v, idContext)
	case bson.M:
		if oid, ok := unwrapEJSONID(v); ok {
			return oid
		}
		return coerceMap(map[string]any(v), idContext)
	case bson.D:
		out := make(bson.D, 0, len(v))
		for _, e := range v {
			out = append(out, bson.E{Key: e.Key, Value: coerceEntry(e.Key, e.Value, idContext)})
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = coerceObjectIDs(item, idContext)
		}
		return out
	case bson.A:
		out := make(bson.A, len(v))
		for i, item := range v {
			out[i] = coerceObjectIDs(item, idContext)
		}
		return out
	default:
		return v
	}
}

// unwrapEJSONID collapses a {"$oid": "<hex>"} wrapper into the object id.
func unwrapEJSONID(m map[string]any) (bson.ObjectID, bool) {
	if len(m) != 1 {
		return bson.ObjectID{}, false
	}
	raw, ok := m["$oid"].(string)
	if !ok || !isHexObjectID(raw) {
		return bson.ObjectID{}, false
	}
	oid, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, false
	}
	return oid, true
}

func coerceMap(m map[string]any, idContext bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = coerceEntry(k, v, idContext)
	}
	return out
}

func coerceEntry(key string, value any, parentIDContext bool) any {
	ctx := parentIDContext
	if looksLikeIDKey(key) {
		ctx = true
	} else if !strings.HasPrefix(key, "$") {
		// A plain non-id key resets the context; operators like $eq and $in
		// inherit it from the enclosing field.
		ctx = false
	}
	return coerceObjectIDs(value, ctx)
}

func asStringMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case bson.M:
		return map[string]any(v), true
	}
	return nil, false
}

// CoerceFilter rewrites a find/count filter, converting hex id strings to
// ObjectIDs. The caller's map is left untouched.
func CoerceFilter(filter map[string]any) map[string]any {
	if filter == nil {
		return nil
	}
	out, _ := coerceObjectIDs(filter, false).(map[string]any)
	return out
}

// CoercePipeline rewrites an aggregation pipeline, applying id coercion
// inside $match, $lookup and $graphLookup stages. Other stages pass through
// unchanged apart from EJSON wrappers.
func CoercePipeline(pipeline []any) []any {
	if pipeline == nil {
		return nil
	}
	out := make([]any, len(pipeline))
	for i, raw := range pipeline {
		stage, ok := asStringMap(raw)
		if !ok {
			out[i] = raw
			continue
		}
		rewritten := make(map[string]any, len(stage))
		for name, body := range stage {
			if pipelineValueStages[name] {
				rewritten[name] = coerceObjectIDs(body, false)
			} else {
				rewritten[name] = body
			}
		}
		out[i] = rewritten
	}
	return out
}

// NormalizeValue converts driver-native values into JSON-friendly ones on
// the way out: ObjectID to its hex string, DateTime to RFC 3339,
// Decimal128 to a float where it parses.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case bson.ObjectID:
		return v.Hex()
	case bson.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case bson.Decimal128:
		if f, ok := decimalToFloat(v); ok {
			return f
		}
		return v.String()
	case bson.M:
		return normalizeMap(map[string]any(v))
	case map[string]any:
		return normalizeMap(v)
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = NormalizeValue(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice([]any(v))
	case []any:
		return normalizeSlice(v)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = NormalizeValue(v)
	}
	return out
}

func decimalToFloat(d bson.Decimal128) (float64, bool) {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
