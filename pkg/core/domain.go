package core

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// DomainType identifies the shape of a unit of analysis.
type DomainType string

// Domain type constants.
const (
	DomainTypeTable       DomainType = "table"
	DomainTypeColumn      DomainType = "column"
	DomainTypeColumnPair  DomainType = "column_pair"
	DomainTypeMulticolumn DomainType = "multicolumn"
)

// ParseDomainType converts a string to a DomainType.
func ParseDomainType(s string) (DomainType, bool) {
	switch DomainType(strings.ToLower(s)) {
	case DomainTypeTable:
		return DomainTypeTable, true
	case DomainTypeColumn:
		return DomainTypeColumn, true
	case DomainTypeColumnPair:
		return DomainTypeColumnPair, true
	case DomainTypeMulticolumn:
		return DomainTypeMulticolumn, true
	default:
		return "", false
	}
}

// InferredSemanticTypeKey is the Domain.Details key holding the per-column
// semantic type annotations.
const InferredSemanticTypeKey = "inferred_semantic_domain_type"

// Domain identifies a unit of analysis (table, column, column pair, ...).
// Domains are values: equality and hashing are structural, see ID.
type Domain struct {
	Type     DomainType     `json:"domain_type"`
	Kwargs   map[string]any `json:"domain_kwargs"`
	Details  map[string]any `json:"details,omitempty"`
	RuleName string         `json:"rule_name,omitempty"`
}

// NewDomain creates a Domain with non-nil kwargs.
func NewDomain(t DomainType, kwargs, details map[string]any, ruleName string) Domain {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Domain{
		Type:     t,
		Kwargs:   kwargs,
		Details:  details,
		RuleName: ruleName,
	}
}

// ToJSONDict returns the domain as plain JSON-compatible values.
func (d Domain) ToJSONDict() map[string]any {
	out := map[string]any{
		"domain_type":   string(d.Type),
		"domain_kwargs": NormalizeJSON(d.Kwargs),
	}
	if out["domain_kwargs"] == nil {
		out["domain_kwargs"] = map[string]any{}
	}
	if len(d.Details) > 0 {
		out["details"] = NormalizeJSON(d.Details)
	}
	if d.RuleName != "" {
		out["rule_name"] = d.RuleName
	}
	return out
}

// ID returns a stable structural identifier for the domain.
// Two domains with equal type, kwargs, details and rule name share an ID.
func (d Domain) ID() string {
	b, err := json.Marshal(d.ToJSONDict())
	if err != nil {
		// Normalized values always marshal; fall back to the printed form.
		b = []byte(fmt.Sprintf("%#v", d))
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Equal reports structural equality.
func (d Domain) Equal(other Domain) bool {
	return d.ID() == other.ID()
}

// IsSuperset reports whether d contains everything other specifies.
// Empty type or rule name on other act as wildcards; kwargs and details are
// compared as nested subsets.
func (d Domain) IsSuperset(other Domain) bool {
	if other.Type != "" && other.Type != d.Type {
		return false
	}
	if other.RuleName != "" && other.RuleName != d.RuleName {
		return false
	}
	if !isSubset(NormalizeJSON(other.Kwargs), NormalizeJSON(d.Kwargs)) {
		return false
	}
	return isSubset(NormalizeJSON(other.Details), NormalizeJSON(d.Details))
}

// ExcludeDomains drops every domain that is a superset of one of the
// excluded domains. Order is kept.
func ExcludeDomains(domains []Domain, excluded []Domain) []Domain {
	if len(excluded) == 0 {
		return domains
	}
	out := make([]Domain, 0, len(domains))
	for _, d := range domains {
		if !slices.ContainsFunc(excluded, d.IsSuperset) {
			out = append(out, d)
		}
	}
	return out
}

// ColumnName returns the "column" domain kwarg, if any.
func (d Domain) ColumnName() string {
	if s, ok := d.Kwargs["column"].(string); ok {
		return s
	}
	return ""
}

// String renders the domain for logs and error messages.
func (d Domain) String() string {
	keys := make([]string, 0, len(d.Kwargs))
	for k := range d.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d.Kwargs[k]))
	}
	return fmt.Sprintf("%s(%s)", d.Type, strings.Join(parts, ", "))
}

// isSubset reports whether sub is contained in super. Maps are compared
// key-wise and recursively; everything else must be deeply equal.
func isSubset(sub, super any) bool {
	subMap, ok := sub.(map[string]any)
	if !ok {
		if sub == nil {
			return true
		}
		return reflect.DeepEqual(sub, super)
	}
	superMap, ok := super.(map[string]any)
	if !ok {
		return len(subMap) == 0
	}
	for k, v := range subMap {
		sv, exists := superMap[k]
		if !exists {
			return false
		}
		if !isSubset(v, sv) {
			return false
		}
	}
	return true
}

// DomainFromJSONDict rebuilds a domain from its ToJSONDict form.
func DomainFromJSONDict(m map[string]any) (Domain, error) {
	s, _ := m["domain_type"].(string)
	t, ok := ParseDomainType(s)
	if !ok {
		return Domain{}, fmt.Errorf("unknown domain_type %q", s)
	}
	kwargs, _ := m["domain_kwargs"].(map[string]any)
	details, _ := m["details"].(map[string]any)
	rule, _ := m["rule_name"].(string)
	return NewDomain(t, kwargs, details, rule), nil
}
