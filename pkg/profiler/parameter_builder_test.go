package profiler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func seriesProvider(batches []core.Batch, values ...any) *fakeProvider {
	return newFakeProvider(batches, func(_, _ string, batch int) (any, error) {
		return values[batch], nil
	})
}

func builderConfig(className, name string, options map[string]any) *core.BuilderConfig {
	return &core.BuilderConfig{ClassName: className, Name: name, Options: options}
}

func buildParameter(t *testing.T, b ParameterBuilder, provider core.MetricProvider, batches []core.Batch, params core.Parameters) (*core.ParameterNode, error) {
	t.Helper()
	if params == nil {
		params = core.Parameters{}
	}
	domain := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare"}, nil, "rule")
	return b.Build(context.Background(), buildContext(t, provider, batches, nil), domain, params)
}

func TestMetricMultiBatchParameterBuilder_Reduce(t *testing.T) {
	tests := []struct {
		name    string
		batches int
		reduce  any
		want    any
	}{
		{"single batch reduces to scalar", 1, true, int64(7)},
		{"many batches keep a list", 3, true, []any{int64(7), int64(8), int64(9)}},
		{"reduce defaults on", 1, nil, int64(7)},
		{"no reduction wraps each value", 2, false, []any{[]any{int64(7)}, []any{int64(8)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := makeBatches(tt.batches)
			opts := map[string]any{"metric_name": core.MetricTableRowCount}
			if tt.reduce != nil {
				opts["reduce_scalar_metric"] = tt.reduce
			}
			b, err := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "rows", opts))
			require.NoError(t, err)
			require.NoError(t, b.Validate(nil))

			node, err := buildParameter(t, b, seriesProvider(batches, int64(7), int64(8), int64(9)), batches, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.Value)
			assert.Equal(t, core.BatchIDs(batches), node.AttributedValue.Keys())
			assert.Equal(t, tt.batches, node.Details["num_batches"])
		})
	}
}

func TestMetricMultiBatchParameterBuilder_DomainKwargs(t *testing.T) {
	batches := makeBatches(1)
	var seen core.MetricConfiguration
	provider := core.MetricProviderFunc(func(_ context.Context, _ string, mc core.MetricConfiguration) (any, error) {
		seen = mc
		return 1.5, nil
	})
	b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "mean", map[string]any{
		"metric_name":         "column.mean",
		"metric_value_kwargs": map[string]any{"strict": true},
	}))

	node, err := buildParameter(t, b, provider, batches, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.5, node.Value)
	assert.Equal(t, map[string]any{"column": "fare"}, seen.DomainKwargs)
	assert.Equal(t, map[string]any{"strict": true}, seen.MetricValueKwargs)
	assert.Equal(t, map[string]any{
		"metric_name":         "column.mean",
		"domain_kwargs":       map[string]any{"column": "fare"},
		"metric_value_kwargs": map[string]any{"strict": true},
		"metric_dependencies": nil,
	}, node.Details["metric_configuration"])
}

func TestMetricMultiBatchParameterBuilder_NaNReplacement(t *testing.T) {
	batches := makeBatches(2)
	nan := math.NaN()

	t.Run("batch stage replaces before storing", func(t *testing.T) {
		b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "m", map[string]any{
			"metric_name":            "column.mean",
			"enforce_numeric_metric": true,
			"replace_nan_with_zero":  true,
		}))
		node, err := buildParameter(t, b, seriesProvider(batches, nan, 2.5), batches, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{0, 2.5}, node.Value)
		assert.Equal(t, []any{0, 2.5}, node.AttributedValue.Values())
	})

	t.Run("reduced stage keeps NaN per batch", func(t *testing.T) {
		b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "m", map[string]any{
			"metric_name":            "column.mean",
			"enforce_numeric_metric": true,
			"replace_nan_with_zero":  true,
			"nan_replacement_stage":  NaNReplaceReduced,
		}))
		node, err := buildParameter(t, b, seriesProvider(batches, nan, 2.5), batches, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{0, 2.5}, node.Value)
		first := node.AttributedValue.Values()[0].(float64)
		assert.True(t, math.IsNaN(first))
	})

	t.Run("unknown stage is rejected", func(t *testing.T) {
		b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "m", map[string]any{
			"metric_name":           "column.mean",
			"nan_replacement_stage": "never",
		}))
		err := b.Validate(nil)
		assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))
	})
}

func TestMetricMultiBatchParameterBuilder_EnforceNumeric(t *testing.T) {
	batches := makeBatches(2)
	b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "m", map[string]any{
		"metric_name":            "column.max",
		"enforce_numeric_metric": true,
	}))
	_, err := buildParameter(t, b, seriesProvider(batches, 1.0, "zzz"), batches, nil)

	var me *core.MetricError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, batches[1].ID, me.BatchID)
}

func TestMetricMultiBatchParameterBuilder_RequiresMetricName(t *testing.T) {
	b, _ := NewMetricMultiBatchParameterBuilder(builderConfig(ClassMetricMultiBatchParameterBuilder, "m", nil))
	err := b.Validate(nil)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))
}

func TestNumericMetricRangeParameterBuilder_ExactFloatRange(t *testing.T) {
	batches := makeBatches(10)
	values := make([]any, 10)
	for i := range values {
		values[i] = 1.5 + float64(i)
	}
	b, _ := NewNumericMetricRangeParameterBuilder(builderConfig(ClassNumericMetricRangeParameterBuilder, "fare_range", map[string]any{
		"metric_name":         "column.mean",
		"estimator":           "exact",
		"false_positive_rate": 0.1,
		"round_decimals":      2,
	}))
	require.NoError(t, b.Validate(nil))

	node, err := buildParameter(t, b, seriesProvider(batches, values...), batches, nil)
	require.NoError(t, err)
	got := node.Value.([]any)
	assert.InDelta(t, 1.95, got[0].(float64), 1e-9)
	assert.InDelta(t, 10.05, got[1].(float64), 1e-9)
	assert.Equal(t, 10, node.AttributedValue.Len())
	assert.Equal(t, 10, node.Details["num_batches"])
}

func TestNumericMetricRangeParameterBuilder_Truncate(t *testing.T) {
	batches := makeBatches(4)
	b, _ := NewNumericMetricRangeParameterBuilder(builderConfig(ClassNumericMetricRangeParameterBuilder, "r", map[string]any{
		"metric_name":     "column.mean",
		"estimator":       "exact",
		"truncate_values": map[string]any{"lower_bound": 0, "upper_bound": 1},
		"round_decimals":  1,
	}))
	node, err := buildParameter(t, b, seriesProvider(batches, -0.5, 0.25, 0.5, 1.75), batches, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 1.0}, node.Value)
}

func TestNumericMetricRangeParameterBuilder_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		kind    core.ConfigErrorKind
	}{
		{"unknown estimator", map[string]any{"metric_name": "m", "estimator": "kde"}, core.ConfigUnknownEstimator},
		{"false positive rate out of range", map[string]any{"metric_name": "m", "false_positive_rate": 1.5}, core.ConfigInvalidOption},
		{"negative round decimals", map[string]any{"metric_name": "m", "round_decimals": -1}, core.ConfigInvalidOption},
		{"inverted truncation", map[string]any{"metric_name": "m", "truncate_values": map[string]any{"lower_bound": 5, "upper_bound": 1}}, core.ConfigInvalidOption},
		{"unknown interpolation", map[string]any{"metric_name": "m", "quantile_statistic_interpolation_method": "cubic"}, core.ConfigInvalidOption},
		{"no metric and no upstream", map[string]any{}, core.ConfigInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := NewNumericMetricRangeParameterBuilder(builderConfig(ClassNumericMetricRangeParameterBuilder, "r", tt.options))
			err := b.Validate(nil)
			require.Error(t, err)
			assert.True(t, core.IsConfigErrorKind(err, tt.kind), err.Error())
		})
	}
}

func TestNumericMetricRangeParameterBuilder_UpstreamSample(t *testing.T) {
	batches := makeBatches(3)
	upstream := &core.ParameterNode{
		Value:           []any{int64(3), int64(5), int64(4)},
		AttributedValue: core.NewAttributedValue(),
		Details:         map[string]any{"num_batches": 3},
	}
	for i, v := range []int64{3, 5, 4} {
		upstream.AttributedValue.Set(batches[i].ID, v)
	}
	params := core.Parameters{}
	params.Set("counts", upstream)

	b, _ := NewNumericMetricRangeParameterBuilder(builderConfig(ClassNumericMetricRangeParameterBuilder, "counts_range", map[string]any{
		"metric_multi_batch_parameter_builder_name": "counts",
		"estimator":           "exact",
		"false_positive_rate": 0.0,
		"include_estimator_samples_histogram_in_details": true,
	}))
	assert.Equal(t, []string{"counts"}, b.Dependencies())

	provider := newFakeProvider(batches, func(string, string, int) (any, error) {
		t.Fatal("upstream sample must not be recomputed")
		return nil, nil
	})
	node, err := buildParameter(t, b, provider, batches, params)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), int64(5)}, node.Value)
	assert.Same(t, upstream.AttributedValue, node.AttributedValue)

	hist, ok := node.Details["estimation_histogram"].(map[string]any)
	require.True(t, ok)
	counts := hist["counts"].([]any)
	total := 0
	for _, c := range counts {
		total += c.(int)
	}
	assert.Equal(t, 3, total)
	assert.Len(t, hist["bin_edges"], len(counts)+1)

	upstream.Details["num_batches"] = 99
	assert.Equal(t, 3, node.Details["num_batches"], "details are copied from the upstream node")
}

func TestNumericMetricRangeParameterBuilder_MissingUpstream(t *testing.T) {
	batches := makeBatches(1)
	b, _ := NewNumericMetricRangeParameterBuilder(builderConfig(ClassNumericMetricRangeParameterBuilder, "r", map[string]any{
		"metric_multi_batch_parameter_builder_name": "absent",
	}))
	_, err := buildParameter(t, b, seriesProvider(batches, 1), batches, nil)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigUnresolvedReference))
}

func TestValueSetMultiBatchParameterBuilder(t *testing.T) {
	batches := makeBatches(2)
	provider := seriesProvider(batches,
		[]any{"cash", "card"},
		[]string{"card", "voucher"},
	)
	b, _ := NewValueSetMultiBatchParameterBuilder(builderConfig(ClassValueSetMultiBatchParameterBuilder, "payment_types", nil))
	require.NoError(t, b.Validate(nil))

	node, err := buildParameter(t, b, provider, batches, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"card", "cash", "voucher"}, node.Value)
	assert.Equal(t, map[string]any{"card": 1.0, "cash": 0.5, "voucher": 0.5}, node.Details["value_support"])
	mc := node.Details["metric_configuration"].(map[string]any)
	assert.Equal(t, core.MetricColumnDistinctValues, mc["metric_name"])
}

func TestValueSetMultiBatchParameterBuilder_RejectsScalars(t *testing.T) {
	batches := makeBatches(1)
	b, _ := NewValueSetMultiBatchParameterBuilder(builderConfig(ClassValueSetMultiBatchParameterBuilder, "v", nil))
	_, err := buildParameter(t, b, seriesProvider(batches, 12), batches, nil)

	var me *core.MetricError
	assert.ErrorAs(t, err, &me)
}

func TestParameterBuilder_Dependencies(t *testing.T) {
	cfg := builderConfig(ClassNumericMetricRangeParameterBuilder, "r", map[string]any{
		"metric_multi_batch_parameter_builder_name": "base",
		"false_positive_rate":                       "$parameter.fpr.value",
		"round_decimals":                            "$variables.round_decimals",
	})
	cfg.EvaluationParameterBuilderConfigs = []*core.BuilderConfig{
		builderConfig(ClassMetricMultiBatchParameterBuilder, "base", map[string]any{"metric_name": "m"}),
	}
	b, _ := NewNumericMetricRangeParameterBuilder(cfg)
	assert.ElementsMatch(t, []string{"base", "fpr"}, b.Dependencies())
}
