package core

import (
	"encoding/json"
	"math"
)

// NormalizeJSON converts v into plain JSON-compatible values
// (map[string]any, []any, string, float64, bool, nil) by a JSON round trip.
// NaN and infinities become the strings used by CanonicalJSON. Values that
// still cannot be marshaled are returned unchanged.
func NormalizeJSON(v any) any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		if b, err = json.Marshal(sanitizeFloats(v)); err != nil {
			return v
		}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// CanonicalJSON marshals v with sorted map keys. NaN and infinities are
// rendered as strings so the output is always valid JSON.
func CanonicalJSON(v any) string {
	b, err := json.Marshal(sanitizeFloats(v))
	if err != nil {
		return ""
	}
	return string(b)
}

func sanitizeFloats(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return "NaN"
		}
		if math.IsInf(t, 1) {
			return "Infinity"
		}
		if math.IsInf(t, -1) {
			return "-Infinity"
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitizeFloats(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeFloats(val)
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeFloats(val)
		}
		return out
	default:
		return v
	}
}

// DeepFilterProperties returns a copy of v with the named keys removed at
// every nesting level. Nil values are dropped as well, which makes configs
// that differ only in unset optional fields compare equal.
func DeepFilterProperties(v any, deleteFields ...string) any {
	drop := make(map[string]struct{}, len(deleteFields))
	for _, f := range deleteFields {
		drop[f] = struct{}{}
	}
	return deepFilter(NormalizeJSON(v), drop)
}

func deepFilter(v any, drop map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, skip := drop[k]; skip {
				continue
			}
			if val == nil {
				continue
			}
			out[k] = deepFilter(val, drop)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, deepFilter(val, drop))
		}
		return out
	default:
		return v
	}
}
