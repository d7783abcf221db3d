package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func planFor(t *testing.T, rule map[string]any) (*rulePlan, error) {
	t.Helper()
	cfg := mustConfig(t, profilerConfig(rule))
	r, ok := cfg.Rule(rule["name"].(string))
	require.True(t, ok)
	return planRule(NewRegistry(), r, core.MergeVariables(cfg.Variables, r.Variables))
}

func metricBuilder(name string, extra map[string]any) map[string]any {
	b := map[string]any{
		"class_name":  ClassMetricMultiBatchParameterBuilder,
		"name":        name,
		"metric_name": core.MetricTableRowCount,
	}
	for k, v := range extra {
		b[k] = v
	}
	return b
}

func ruleWithBuilders(builders ...map[string]any) map[string]any {
	list := make([]any, len(builders))
	for i, b := range builders {
		list[i] = b
	}
	return map[string]any{
		"name":               "rule",
		"domain_builder":     map[string]any{"class_name": ClassTableDomainBuilder},
		"parameter_builders": list,
	}
}

func parameterNames(rp *rulePlan) []string {
	out := make([]string, len(rp.parameters))
	for i, p := range rp.parameters {
		out[i] = p.Name()
	}
	return out
}

func TestPlanRule_OrdersByDependency(t *testing.T) {
	rp, err := planFor(t, ruleWithBuilders(
		metricBuilder("c", map[string]any{"metric_value_kwargs": map[string]any{"n": "$parameter.b.value"}}),
		metricBuilder("b", map[string]any{"metric_value_kwargs": map[string]any{"n": "$parameter.a.value"}}),
		metricBuilder("a", nil),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, parameterNames(rp))
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, rp.reported)
}

func TestPlanRule_DependencyCycle(t *testing.T) {
	_, err := planFor(t, ruleWithBuilders(
		metricBuilder("a", map[string]any{"metric_value_kwargs": map[string]any{"n": "$parameter.b.value"}}),
		metricBuilder("b", map[string]any{"metric_value_kwargs": map[string]any{"n": "$parameter.a.value"}}),
	))
	require.Error(t, err)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigDependencyCycle), err.Error())
}

func TestPlanRule_UnresolvedDependency(t *testing.T) {
	_, err := planFor(t, ruleWithBuilders(
		metricBuilder("a", map[string]any{"metric_value_kwargs": map[string]any{"n": "$parameter.missing.value"}}),
	))
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigUnresolvedReference))
}

func TestPlanRule_ExpectationReferencesUndefinedParameter(t *testing.T) {
	rule := ruleWithBuilders(metricBuilder("a", nil))
	rule["expectation_configuration_builders"] = []any{map[string]any{
		"class_name":       ClassDefaultExpectationConfigurationBuilder,
		"expectation_type": "expect_table_row_count_to_equal",
		"value":            "$parameter.nope.value",
	}}
	_, err := planFor(t, rule)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigUnresolvedReference))
}

func TestPlanRule_NestedBuildersAreDeduplicated(t *testing.T) {
	rp, err := planFor(t, tableRule(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"metric_values", "metric_values_range"}, parameterNames(rp))
	assert.Equal(t, map[string]bool{"metric_values": true}, rp.reported)
}

func TestPlanRule_ConflictingDefinitions(t *testing.T) {
	rule := tableRule(nil)
	nested := rule["expectation_configuration_builders"].([]any)[0].(map[string]any)["validation_parameter_builder_configs"].([]any)[0].(map[string]any)
	nested["evaluation_parameter_builder_configs"] = []any{metricBuilder("metric_values", map[string]any{"metric_name": "column.mean"})}

	_, err := planFor(t, rule)
	require.Error(t, err)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))
	assert.Contains(t, err.Error(), "defined twice")
}

func TestPlanRule_MissingDomainBuilder(t *testing.T) {
	rule := ruleWithBuilders(metricBuilder("a", nil))
	delete(rule, "domain_builder")
	_, err := planFor(t, rule)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))
}
