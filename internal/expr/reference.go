// Package expr resolves substitution expressions ($domain, $parameter,
// $variables) against a typed context and evaluates the small boolean
// condition language used by expectation configuration builders.
package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Segment is one step of a reference path: a map key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return "." + s.Key
}

// Reference is a parsed substitution expression such as
// "$parameter.table_row_count_range.value[1]".
type Reference struct {
	Raw  string
	Root string
	Path []Segment
}

var roots = []string{core.DomainKey, core.ParameterKey, core.VariablesKey}

// IsReference reports whether s is a substitution expression.
func IsReference(s string) bool {
	for _, r := range roots {
		if s == r || strings.HasPrefix(s, r+".") || strings.HasPrefix(s, r+"[") {
			return true
		}
	}
	return false
}

// ParseReference parses a substitution expression.
func ParseReference(s string) (*Reference, error) {
	raw := strings.TrimSpace(s)
	var root string
	for _, r := range roots {
		if raw == r || strings.HasPrefix(raw, r+".") || strings.HasPrefix(raw, r+"[") {
			root = r
			break
		}
	}
	if root == "" {
		return nil, core.NewConfigError(core.ConfigUnresolvedReference, "%q is not a $domain, $parameter or $variables reference", s)
	}

	ref := &Reference{Raw: raw, Root: root}
	rest := raw[len(root):]
	for pos := 0; pos < len(rest); {
		switch rest[pos] {
		case '.':
			start := pos + 1
			end := start
			for end < len(rest) && isIdentByte(rest[end]) {
				end++
			}
			if end == start {
				return nil, core.NewConfigError(core.ConfigUnresolvedReference, "%q: empty path segment at offset %d", s, len(root)+pos)
			}
			ref.Path = append(ref.Path, Segment{Key: rest[start:end]})
			pos = end
		case '[':
			end := strings.IndexByte(rest[pos:], ']')
			if end < 0 {
				return nil, core.NewConfigError(core.ConfigUnresolvedReference, "%q: unclosed index", s)
			}
			n, err := strconv.Atoi(strings.TrimSpace(rest[pos+1 : pos+end]))
			if err != nil {
				return nil, core.NewConfigError(core.ConfigUnresolvedReference, "%q: invalid index %q", s, rest[pos+1:pos+end])
			}
			ref.Path = append(ref.Path, Segment{Index: n, IsIndex: true})
			pos += end + 1
		default:
			return nil, core.NewConfigError(core.ConfigUnresolvedReference, "%q: unexpected character %q", s, rest[pos])
		}
	}
	return ref, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParameterName returns the parameter a $parameter reference addresses,
// or "" for other roots.
func (r *Reference) ParameterName() string {
	if r.Root != core.ParameterKey || len(r.Path) == 0 || r.Path[0].IsIndex {
		return ""
	}
	return r.Path[0].Key
}

// Context holds everything a substitution expression can address.
type Context struct {
	Domain     *core.Domain
	Parameters core.Parameters
	Variables  map[string]any
}

// Lookup evaluates a parsed reference.
func (c *Context) Lookup(ref *Reference) (any, error) {
	switch ref.Root {
	case core.VariablesKey:
		if c.Variables == nil {
			return nil, unresolved(ref, "no variables in scope")
		}
		return walk(ref, map[string]any(c.Variables), ref.Path)
	case core.DomainKey:
		if c.Domain == nil {
			return nil, unresolved(ref, "no domain in scope")
		}
		d := map[string]any{
			"domain_type":   string(c.Domain.Type),
			"domain_kwargs": c.Domain.Kwargs,
			"details":       c.Domain.Details,
			"rule_name":     c.Domain.RuleName,
		}
		return walk(ref, d, ref.Path)
	case core.ParameterKey:
		if len(ref.Path) == 0 || ref.Path[0].IsIndex {
			return nil, unresolved(ref, "parameter name expected")
		}
		node, ok := c.Parameters.Get(ref.Path[0].Key)
		if !ok || node == nil {
			return nil, unresolved(ref, fmt.Sprintf("parameter %q has not been computed", ref.Path[0].Key))
		}
		if len(ref.Path) == 1 {
			return node.ToJSONDict(), nil
		}
		field := ref.Path[1]
		if field.IsIndex {
			return nil, unresolved(ref, "parameter field expected")
		}
		v, ok := node.Lookup(field.Key)
		if !ok {
			return nil, unresolved(ref, fmt.Sprintf("parameter %q has no field %q", ref.Path[0].Key, field.Key))
		}
		return walk(ref, v, ref.Path[2:])
	}
	return nil, unresolved(ref, "unknown root")
}

func walk(ref *Reference, cur any, path []Segment) (any, error) {
	for _, seg := range path {
		if seg.IsIndex {
			rv := reflect.ValueOf(cur)
			if cur == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
				return nil, unresolved(ref, fmt.Sprintf("cannot index %T with %s", cur, seg))
			}
			i := seg.Index
			if i < 0 {
				i += rv.Len()
			}
			if i < 0 || i >= rv.Len() {
				return nil, unresolved(ref, fmt.Sprintf("index %d out of range (length %d)", seg.Index, rv.Len()))
			}
			cur = rv.Index(i).Interface()
			continue
		}
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg.Key]
			if !ok {
				return nil, unresolved(ref, fmt.Sprintf("key %q not found", seg.Key))
			}
			cur = v
		case map[string]string:
			v, ok := m[seg.Key]
			if !ok {
				return nil, unresolved(ref, fmt.Sprintf("key %q not found", seg.Key))
			}
			cur = v
		default:
			return nil, unresolved(ref, fmt.Sprintf("cannot select %q from %T", seg.Key, cur))
		}
	}
	return cur, nil
}

func unresolved(ref *Reference, reason string) error {
	return core.NewConfigError(core.ConfigUnresolvedReference, "cannot resolve %q: %s", ref.Raw, reason)
}

// Evaluate parses and looks up a single substitution expression.
func (c *Context) Evaluate(s string) (any, error) {
	ref, err := ParseReference(s)
	if err != nil {
		return nil, err
	}
	return c.Lookup(ref)
}

// Resolve substitutes every reference found in v. Maps and slices are
// resolved recursively into fresh copies; other values pass through.
func (c *Context) Resolve(v any) (any, error) {
	switch t := v.(type) {
	case string:
		if IsReference(t) {
			return c.Evaluate(t)
		}
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := c.Resolve(val)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := c.Resolve(val)
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

// ResolveMap resolves every value in m.
func (c *Context) ResolveMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	r, err := c.Resolve(m)
	if err != nil {
		return nil, err
	}
	return r.(map[string]any), nil
}
