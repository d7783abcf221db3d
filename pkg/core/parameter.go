package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fully-qualified name prefixes used by substitution expressions.
const (
	ParameterPrefix = "$parameter."
	VariablesPrefix = "$variables."
	DomainPrefix    = "$domain."

	VariablesKey = "$variables"
	ParameterKey = "$parameter"
	DomainKey    = "$domain"
)

// ParameterNode field names.
const (
	FieldValue           = "value"
	FieldAttributedValue = "attributed_value"
	FieldDetails         = "details"
)

// ParameterNode holds the result of one parameter builder for one domain.
type ParameterNode struct {
	Value           any              `json:"value"`
	AttributedValue *AttributedValue `json:"attributed_value,omitempty"`
	Details         map[string]any   `json:"details,omitempty"`
}

// Lookup returns the node field addressed by name ("value",
// "attributed_value" or "details").
func (n *ParameterNode) Lookup(field string) (any, bool) {
	switch field {
	case FieldValue:
		return n.Value, true
	case FieldAttributedValue:
		if n.AttributedValue == nil {
			return nil, false
		}
		return n.AttributedValue.ToMap(), true
	case FieldDetails:
		if n.Details == nil {
			return nil, false
		}
		return n.Details, true
	default:
		return nil, false
	}
}

// ToJSONDict renders the node with plain JSON values. Attributed values keep
// batch order when marshaled through MarshalJSON; ToJSONDict uses a map.
func (n *ParameterNode) ToJSONDict() map[string]any {
	out := map[string]any{FieldValue: NormalizeJSON(n.Value)}
	if n.AttributedValue != nil {
		out[FieldAttributedValue] = NormalizeJSON(n.AttributedValue.ToMap())
	}
	if n.Details != nil {
		out[FieldDetails] = NormalizeJSON(n.Details)
	}
	return out
}

// FullyQualifiedParameterName returns "$parameter.<name>".
func FullyQualifiedParameterName(name string) string {
	if strings.HasPrefix(name, ParameterPrefix) {
		return name
	}
	return ParameterPrefix + name
}

// ParameterNameFromFQN strips the "$parameter." prefix.
func ParameterNameFromFQN(fqn string) string {
	return strings.TrimPrefix(fqn, ParameterPrefix)
}

// AttributedValue maps batch ids to per-batch values. Insertion order is
// the batch evaluation order and is preserved by Keys and MarshalJSON.
type AttributedValue struct {
	keys   []string
	values map[string]any
}

// NewAttributedValue returns an empty AttributedValue.
func NewAttributedValue() *AttributedValue {
	return &AttributedValue{values: map[string]any{}}
}

// Set records the value for a batch. Re-setting an existing batch keeps its
// original position.
func (a *AttributedValue) Set(batchID string, v any) {
	if a.values == nil {
		a.values = map[string]any{}
	}
	if _, ok := a.values[batchID]; !ok {
		a.keys = append(a.keys, batchID)
	}
	a.values[batchID] = v
}

// Get returns the value recorded for batchID.
func (a *AttributedValue) Get(batchID string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[batchID]
	return v, ok
}

// Keys returns the batch ids in insertion order.
func (a *AttributedValue) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Values returns the values in insertion order.
func (a *AttributedValue) Values() []any {
	if a == nil {
		return nil
	}
	out := make([]any, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, a.values[k])
	}
	return out
}

// Len returns the number of batches.
func (a *AttributedValue) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Clone returns a copy that keeps the batch order.
func (a *AttributedValue) Clone() *AttributedValue {
	if a == nil {
		return nil
	}
	out := NewAttributedValue()
	for _, k := range a.keys {
		out.Set(k, a.values[k])
	}
	return out
}

// ToMap returns an unordered copy.
func (a *AttributedValue) ToMap() map[string]any {
	out := make(map[string]any, a.Len())
	if a == nil {
		return out
	}
	for _, k := range a.keys {
		out[k] = a.values[k]
	}
	return out
}

// MarshalJSON writes the object with keys in batch order.
func (a *AttributedValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, k := range a.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(sanitizeFloats(a.values[k]))
			if err != nil {
				return nil, fmt.Errorf("attributed value for batch %s: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object and keeps its key order.
func (a *AttributedValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributed value: expected object, got %v", tok)
	}
	a.keys = nil
	a.values = map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributed value: expected string key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("attributed value for batch %s: %w", key, err)
		}
		a.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// Parameters is the per-domain parameter tree keyed by fully-qualified
// parameter name.
type Parameters map[string]*ParameterNode

// Get looks up a node by plain or fully-qualified name.
func (p Parameters) Get(name string) (*ParameterNode, bool) {
	n, ok := p[FullyQualifiedParameterName(name)]
	return n, ok
}

// Set stores a node under its fully-qualified name.
func (p Parameters) Set(name string, node *ParameterNode) {
	p[FullyQualifiedParameterName(name)] = node
}
