package assistant

import (
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/profiler"
)

// Volume assistant names.
const (
	VolumeType           = "volume"
	VolumeRegisteredName = "volume_data_assistant"
)

// Volume assistant rule names.
const (
	TableRule              = "table_rule"
	CategoricalColumnsRule = "categorical_columns_rule"
)

// VolumeDefinition profiles table row counts and the distinct value counts
// of categorical columns.
func VolumeDefinition() Definition {
	return Definition{
		Type:           VolumeType,
		RegisteredName: VolumeRegisteredName,
		Config:         VolumeProfilerConfig,
	}
}

// VolumeProfilerConfig returns the rules of the volume assistant under the
// given profiler name.
func VolumeProfilerConfig(name string) *core.ProfilerConfig {
	return &core.ProfilerConfig{
		Name:          name,
		ConfigVersion: core.CurrentConfigVersion,
		Variables:     map[string]any{"random_seed": nil},
		Rules: []*core.RuleConfig{
			volumeTableRule(),
			volumeCategoricalRule(),
		},
	}
}

// rangeVariables are the estimation settings shared by both rules.
func rangeVariables(lowerBound any, roundDecimals int) map[string]any {
	return map[string]any{
		"false_positive_rate":                     0.05,
		"quantile_statistic_interpolation_method": "auto",
		"estimator":   "bootstrap",
		"n_resamples": 9999,
		"include_estimator_samples_histogram_in_details": false,
		"truncate_values": map[string]any{"lower_bound": lowerBound},
		"round_decimals":  roundDecimals,
	}
}

func metricBuilder(name, metric string, domainKwargs any) *core.BuilderConfig {
	opts := map[string]any{
		"metric_name":            metric,
		"enforce_numeric_metric": true,
		"replace_nan_with_zero":  true,
		"reduce_scalar_metric":   true,
	}
	if domainKwargs != nil {
		opts["metric_domain_kwargs"] = domainKwargs
	}
	return &core.BuilderConfig{
		ClassName: profiler.ClassMetricMultiBatchParameterBuilder,
		Name:      name,
		Options:   opts,
	}
}

// rangeBuilder estimates the range of the metric computed by upstream. The
// upstream builder is repeated as an evaluation dependency so the range
// builder is self-contained.
func rangeBuilder(name string, upstream *core.BuilderConfig, nested *core.BuilderConfig) *core.BuilderConfig {
	return &core.BuilderConfig{
		ClassName: profiler.ClassNumericMetricRangeParameterBuilder,
		Name:      name,
		Options: map[string]any{
			"metric_name":          upstream.Options["metric_name"],
			"metric_domain_kwargs": "$domain.domain_kwargs",
			"metric_multi_batch_parameter_builder_name":      upstream.Name,
			"enforce_numeric_metric":                         true,
			"replace_nan_with_zero":                          true,
			"reduce_scalar_metric":                           true,
			"estimator":                                      "$variables.estimator",
			"false_positive_rate":                            "$variables.false_positive_rate",
			"n_resamples":                                    "$variables.n_resamples",
			"random_seed":                                    "$variables.random_seed",
			"quantile_statistic_interpolation_method":        "$variables.quantile_statistic_interpolation_method",
			"include_estimator_samples_histogram_in_details": "$variables.include_estimator_samples_histogram_in_details",
			"truncate_values":                                "$variables.truncate_values",
			"round_decimals":                                 "$variables.round_decimals",
		},
		EvaluationParameterBuilderConfigs: []*core.BuilderConfig{nested},
	}
}

func volumeTableRule() *core.RuleConfig {
	rowCount := metricBuilder("table_row_count", core.MetricTableRowCount, nil)
	nested := metricBuilder("table_row_count", core.MetricTableRowCount, nil)
	nested.Options["metric_domain_kwargs"] = nil
	nested.Options["metric_value_kwargs"] = nil
	rng := rangeBuilder("table_row_count_range", rowCount, nested)

	return &core.RuleConfig{
		Name:          TableRule,
		Variables:     rangeVariables(0, 0),
		DomainBuilder: &core.BuilderConfig{ClassName: profiler.ClassTableDomainBuilder},
		ParameterBuilders: []*core.BuilderConfig{
			rowCount,
		},
		ExpectationConfigurationBuilders: []*core.BuilderConfig{
			{
				ClassName: profiler.ClassDefaultExpectationConfigurationBuilder,
				Options: map[string]any{
					"expectation_type": "expect_table_row_count_to_be_between",
					"min_value":        "$parameter.table_row_count_range.value[0]",
					"max_value":        "$parameter.table_row_count_range.value[1]",
					"meta": map[string]any{
						"profiler_details": "$parameter.table_row_count_range.details",
					},
				},
				ValidationParameterBuilderConfigs: []*core.BuilderConfig{rng},
			},
		},
	}
}

func volumeCategoricalRule() *core.RuleConfig {
	distinct := metricBuilder("column_distinct_values_count", core.MetricColumnDistinctValuesCount, "$domain.domain_kwargs")
	nested := metricBuilder("column_distinct_values_count", core.MetricColumnDistinctValuesCount, "$domain.domain_kwargs")
	nested.Options["metric_value_kwargs"] = nil
	rng := rangeBuilder("column_distinct_values_count_range", distinct, nested)

	vars := rangeVariables(0.0, 1)
	vars["mostly"] = 1.0
	vars["strict_min"] = false
	vars["strict_max"] = false

	rel100, _ := profiler.LookupCardinalityLimitMode("REL_100")

	return &core.RuleConfig{
		Name:      CategoricalColumnsRule,
		Variables: vars,
		DomainBuilder: &core.BuilderConfig{
			ClassName: profiler.ClassCategoricalColumnDomainBuilder,
			Options: map[string]any{
				"cardinality_limit_mode":             rel100.ToJSONDict(),
				"exclude_column_names":               []any{"id"},
				"exclude_column_name_suffixes":       []any{"_id"},
				"exclude_semantic_types":             []any{"binary", "currency", "identifier"},
				"allowed_semantic_types_passthrough": []any{"logic"},
			},
		},
		ParameterBuilders: []*core.BuilderConfig{
			distinct,
		},
		ExpectationConfigurationBuilders: []*core.BuilderConfig{
			{
				ClassName: profiler.ClassDefaultExpectationConfigurationBuilder,
				Options: map[string]any{
					"expectation_type": "expect_column_unique_value_count_to_be_between",
					"column":           "$domain.domain_kwargs.column",
					"min_value":        "$parameter.column_distinct_values_count_range.value[0]",
					"max_value":        "$parameter.column_distinct_values_count_range.value[1]",
					"strict_min":       "$variables.strict_min",
					"strict_max":       "$variables.strict_max",
					"meta": map[string]any{
						"profiler_details": "$parameter.column_distinct_values_count_range.details",
					},
				},
				ValidationParameterBuilderConfigs: []*core.BuilderConfig{rng},
			},
		},
	}
}
