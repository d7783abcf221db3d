package profiler

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapprofile/internal/expr"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// resolveOptions substitutes every reference in the builder options.
func resolveOptions(cfg *core.BuilderConfig, ectx *expr.Context) (map[string]any, error) {
	return ectx.ResolveMap(cfg.Options)
}

// resolveVariablesOnly substitutes $variables references and blanks out
// $domain and $parameter references, which are only known during a run.
// It lets builders validate their options before any metric is computed.
func resolveVariablesOnly(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		if !expr.IsReference(t) {
			return t, nil
		}
		ref, err := expr.ParseReference(t)
		if err != nil {
			return nil, err
		}
		if ref.Root != core.VariablesKey {
			return nil, nil
		}
		return (&expr.Context{Variables: vars}).Lookup(ref)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := resolveVariablesOnly(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := resolveVariablesOnly(val, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// decodeOptions decodes resolved options into a typed struct.
func decodeOptions(className string, m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return &core.ConfigError{
			Kind:    core.ConfigInvalidOption,
			Message: fmt.Sprintf("%s options", className),
			Err:     err,
		}
	}
	return nil
}

// parameterDependencies lists the parameters referenced anywhere in v.
func parameterDependencies(v any) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(any)
	visit = func(v any) {
		switch t := v.(type) {
		case string:
			if !expr.IsReference(t) {
				return
			}
			ref, err := expr.ParseReference(t)
			if err != nil {
				return
			}
			if name := ref.ParameterName(); name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				visit(t[k])
			}
		case []any:
			for _, e := range t {
				visit(e)
			}
		}
	}
	visit(v)
	return out
}

// toFloat converts numeric values of any Go kind to float64.
// nil converts to NaN.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool, string:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// isWhole reports whether f has no fractional part.
func isWhole(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

// toStringSlice converts []string or []any of strings.
func toStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

// toStringMap converts map[string]string or map[string]any with string values.
func toStringMap(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return t, nil
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = fmt.Sprint(e)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping of strings, got %T", v)
	}
}

// copyValue deep-copies maps and slices so results never alias builder
// state. Scalars are shared.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []float64:
		return append([]float64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
