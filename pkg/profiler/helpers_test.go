package profiler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/internal/testutil"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// distinctCounts is a per-batch distinct value count sample of 36 monthly
// batches.
var distinctCounts = []int64{
	9979, 9965, 9974, 9979, 9976, 9980, 9983, 9974, 9974, 9968, 9972, 9977,
	9973, 9977, 9976, 9984, 9977, 9970, 9977, 9975, 9976, 9981, 9973, 9976,
	9982, 9981, 9945, 9955, 9941, 9953, 9973, 9955, 9962, 9970, 9977, 9969,
}

func makeBatches(n int) []core.Batch {
	out := make([]core.Batch, n)
	for i := range out {
		out[i] = core.NewBatch(core.BatchDefinition{
			DatasourceName:    "taxi",
			DataConnectorName: "monthly",
			DataAssetName:     "trips",
			Identifiers:       map[string]string{"month": fmt.Sprintf("%02d", i+1)},
		}, nil)
	}
	return out
}

// fakeProvider answers metrics from a function of (metric, column, batch
// index) and records every call.
type fakeProvider struct {
	index map[string]int
	fn    func(metric, column string, batch int) (any, error)
	calls int
}

func newFakeProvider(batches []core.Batch, fn func(metric, column string, batch int) (any, error)) *fakeProvider {
	idx := make(map[string]int, len(batches))
	for i, b := range batches {
		idx[b.ID] = i
	}
	return &fakeProvider{index: idx, fn: fn}
}

func (p *fakeProvider) ComputeMetric(_ context.Context, batchID string, mc core.MetricConfiguration) (any, error) {
	p.calls++
	i, ok := p.index[batchID]
	if !ok {
		return nil, fmt.Errorf("unknown batch %s", batchID)
	}
	column, _ := mc.DomainKwargs["column"].(string)
	return p.fn(mc.MetricName, column, i)
}

// taxiProvider serves a three column table: a constant row count, the
// distinct count sample for "pickup_datetime" and fixed metrics elsewhere.
func taxiProvider(batches []core.Batch) *fakeProvider {
	return newFakeProvider(batches, func(metric, column string, batch int) (any, error) {
		switch metric {
		case core.MetricTableRowCount:
			return int64(10000), nil
		case core.MetricTableColumns:
			return []any{"id", "pickup_datetime", "vendor_id", "store_and_fwd_flag"}, nil
		case core.MetricTableColumnTypes:
			return []any{
				map[string]any{"name": "id", "type": "BIGINT"},
				map[string]any{"name": "pickup_datetime", "type": "VARCHAR"},
				map[string]any{"name": "vendor_id", "type": "BIGINT"},
				map[string]any{"name": "store_and_fwd_flag", "type": "BOOLEAN"},
			}, nil
		case core.MetricColumnDistinctValuesCount:
			if column == "pickup_datetime" {
				return distinctCounts[batch%len(distinctCounts)], nil
			}
			return int64(2), nil
		case core.MetricColumnUniqueProportion:
			if column == "pickup_datetime" {
				return float64(distinctCounts[batch%len(distinctCounts)]) / 10000, nil
			}
			return 0.0002, nil
		}
		return nil, fmt.Errorf("unexpected metric %s", metric)
	})
}

func mustConfig(t *testing.T, m map[string]any) *core.ProfilerConfig {
	t.Helper()
	cfg, err := core.ProfilerConfigFromJSONDict(m)
	require.NoError(t, err)
	return cfg
}

func newTestProfiler(t *testing.T, m map[string]any) *Profiler {
	t.Helper()
	p, err := New(mustConfig(t, m), Config{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return p
}

// rangeRule returns a rule estimating a range of metric over domains from
// domainBuilder, emitting expectationType with min_value/max_value.
func rangeRule(name, metric, expectationType string, domainBuilder map[string]any, variables map[string]any, extraKwargs map[string]any) map[string]any {
	paramName := "metric_values"
	rangeName := "metric_values_range"
	metricBuilder := map[string]any{
		"class_name":             ClassMetricMultiBatchParameterBuilder,
		"name":                   paramName,
		"metric_name":            metric,
		"metric_domain_kwargs":   "$domain.domain_kwargs",
		"enforce_numeric_metric": true,
		"replace_nan_with_zero":  true,
		"reduce_scalar_metric":   true,
	}
	expectation := map[string]any{
		"class_name":       ClassDefaultExpectationConfigurationBuilder,
		"expectation_type": expectationType,
		"min_value":        "$parameter." + rangeName + ".value[0]",
		"max_value":        "$parameter." + rangeName + ".value[1]",
		"meta":             map[string]any{"profiler_details": "$parameter." + rangeName + ".details"},
		"validation_parameter_builder_configs": []any{
			map[string]any{
				"class_name":           ClassNumericMetricRangeParameterBuilder,
				"name":                 rangeName,
				"metric_name":          metric,
				"metric_domain_kwargs": "$domain.domain_kwargs",
				"metric_multi_batch_parameter_builder_name":      paramName,
				"enforce_numeric_metric":                         true,
				"replace_nan_with_zero":                          true,
				"estimator":                                      "$variables.estimator",
				"false_positive_rate":                            "$variables.false_positive_rate",
				"n_resamples":                                    "$variables.n_resamples",
				"random_seed":                                    "$variables.random_seed",
				"quantile_statistic_interpolation_method":        "$variables.quantile_statistic_interpolation_method",
				"include_estimator_samples_histogram_in_details": "$variables.include_estimator_samples_histogram_in_details",
				"truncate_values":                                "$variables.truncate_values",
				"round_decimals":                                 "$variables.round_decimals",
				"evaluation_parameter_builder_configs":           []any{metricBuilder},
			},
		},
	}
	for k, v := range extraKwargs {
		expectation[k] = v
	}
	vars := map[string]any{
		"false_positive_rate":                     0.05,
		"quantile_statistic_interpolation_method": "auto",
		"estimator":   "bootstrap",
		"n_resamples": 999,
		"include_estimator_samples_histogram_in_details": false,
		"truncate_values": map[string]any{"lower_bound": 0},
		"round_decimals":  0,
	}
	for k, v := range variables {
		vars[k] = v
	}
	return map[string]any{
		"name":                               name,
		"variables":                          vars,
		"domain_builder":                     domainBuilder,
		"parameter_builders":                 []any{metricBuilder},
		"expectation_configuration_builders": []any{expectation},
	}
}

func tableRule(variables map[string]any) map[string]any {
	return rangeRule("table_rule", core.MetricTableRowCount, "expect_table_row_count_to_be_between",
		map[string]any{"class_name": ClassTableDomainBuilder}, variables, nil)
}

func categoricalRule(variables map[string]any) map[string]any {
	return rangeRule("categorical_columns_rule", core.MetricColumnDistinctValuesCount,
		"expect_column_unique_value_count_to_be_between",
		map[string]any{
			"class_name":                         ClassCategoricalColumnDomainBuilder,
			"exclude_column_names":               []any{"id"},
			"exclude_column_name_suffixes":       []any{"_id"},
			"exclude_semantic_types":             []any{"binary", "currency", "identifier"},
			"allowed_semantic_types_passthrough": []any{"logic"},
			"cardinality_limit_mode":             "REL_100",
		},
		variables,
		map[string]any{"column": "$domain.domain_kwargs.column"})
}

func profilerConfig(rules ...map[string]any) map[string]any {
	rs := make([]any, len(rules))
	for i, r := range rules {
		rs[i] = r
	}
	return map[string]any{
		"name":           "test_profiler",
		"config_version": 1.0,
		"variables":      map[string]any{"random_seed": 42},
		"rules":          rs,
	}
}
