package core

import "github.com/knadh/koanf/maps"

// MergeVariables deep-merges override into a copy of base. Overriding a
// nested field leaves its siblings untouched. Neither input is modified.
func MergeVariables(base, override map[string]any) map[string]any {
	out := map[string]any{}
	if base != nil {
		out = maps.Copy(normalizeMap(base))
	}
	if len(override) == 0 {
		return out
	}
	maps.Merge(maps.Copy(normalizeMap(override)), out)
	return out
}

// normalizeMap converts nested map types to map[string]any so the merge
// recurses into them.
func normalizeMap(m map[string]any) map[string]any {
	if n, ok := NormalizeJSON(m).(map[string]any); ok {
		return restoreNumbers(n, m)
	}
	return m
}

// restoreNumbers puts back original scalar values where the JSON round trip
// changed their Go type (ints become float64), keeping nested maps
// normalized.
func restoreNumbers(norm, orig map[string]any) map[string]any {
	for k, nv := range norm {
		ov := orig[k]
		switch t := nv.(type) {
		case map[string]any:
			if om, ok := ov.(map[string]any); ok {
				norm[k] = restoreNumbers(t, om)
			}
		case float64:
			norm[k] = ov
		}
	}
	return norm
}
