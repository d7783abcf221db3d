package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func TestDomain_IDIsStructural(t *testing.T) {
	a := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare", "batch_id": "b1"}, nil, "rule")
	b := core.NewDomain(core.DomainTypeColumn, map[string]any{"batch_id": "b1", "column": "fare"}, nil, "rule")
	c := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare"}, nil, "rule")

	assert.Equal(t, a.ID(), b.ID())
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	numeric := core.NewDomain(core.DomainTypeColumn, map[string]any{"n": 1}, nil, "")
	float := core.NewDomain(core.DomainTypeColumn, map[string]any{"n": 1.0}, nil, "")
	assert.True(t, numeric.Equal(float), "numbers compare by JSON value")
}

func TestDomain_IsSuperset(t *testing.T) {
	d := core.NewDomain(core.DomainTypeColumn,
		map[string]any{"column": "fare", "row_condition": map[string]any{"op": "gt", "value": 0}},
		map[string]any{core.InferredSemanticTypeKey: map[string]any{"fare": "numeric"}},
		"rule")

	assert.True(t, d.IsSuperset(core.Domain{Kwargs: map[string]any{"column": "fare"}}))
	assert.True(t, d.IsSuperset(core.Domain{Kwargs: map[string]any{"row_condition": map[string]any{"op": "gt"}}}))
	assert.True(t, d.IsSuperset(core.Domain{Type: core.DomainTypeColumn, RuleName: "rule"}))
	assert.False(t, d.IsSuperset(core.Domain{Type: core.DomainTypeTable}))
	assert.False(t, d.IsSuperset(core.Domain{Kwargs: map[string]any{"column": "tip"}}))
	assert.False(t, d.IsSuperset(core.Domain{RuleName: "other"}))
}

func TestExcludeDomains(t *testing.T) {
	table := core.NewDomain(core.DomainTypeTable, nil, nil, "table_rule")
	fare := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare"}, nil, "columns")
	tip := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "tip"}, nil, "columns")
	domains := []core.Domain{table, fare, tip}

	got := core.ExcludeDomains(domains, []core.Domain{{Type: core.DomainTypeColumn, Kwargs: map[string]any{"column": "fare"}}})
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(table))
	assert.True(t, got[1].Equal(tip))

	got = core.ExcludeDomains(domains, []core.Domain{{Type: core.DomainTypeColumn}})
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(table))

	assert.Len(t, core.ExcludeDomains(domains, nil), 3)
}

func TestDomain_JSONDictRoundTrip(t *testing.T) {
	d := core.NewDomain(core.DomainTypeColumnPair,
		map[string]any{"column_A": "a", "column_B": "b"},
		map[string]any{core.InferredSemanticTypeKey: map[string]any{"a": "text", "b": "numeric"}},
		"pairs")

	back, err := core.DomainFromJSONDict(d.ToJSONDict())
	require.NoError(t, err)
	assert.True(t, d.Equal(back))
	assert.Equal(t, "column_pair(column_A=a, column_B=b)", back.String())

	_, err = core.DomainFromJSONDict(map[string]any{"domain_type": "galaxy"})
	assert.Error(t, err)
}

func TestDomain_ColumnName(t *testing.T) {
	assert.Equal(t, "fare", core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare"}, nil, "").ColumnName())
	assert.Equal(t, "", core.NewDomain(core.DomainTypeTable, nil, nil, "").ColumnName())
}
