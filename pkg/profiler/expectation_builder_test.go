package profiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func rangeParams() core.Parameters {
	params := core.Parameters{}
	params.Set("row_count_range", &core.ParameterNode{
		Value:   []any{int64(90), int64(110)},
		Details: map[string]any{"num_batches": 3},
	})
	return params
}

func buildExpectation(t *testing.T, options map[string]any, validation ...*core.BuilderConfig) (*core.ExpectationConfiguration, error) {
	t.Helper()
	cfg := &core.BuilderConfig{
		ClassName:                         ClassDefaultExpectationConfigurationBuilder,
		ValidationParameterBuilderConfigs: validation,
		Options:                           options,
	}
	b, err := NewDefaultExpectationConfigurationBuilder(cfg)
	require.NoError(t, err)
	vars := map[string]any{"mostly": 0.95, "strict": false}
	require.NoError(t, b.Validate(vars))

	domain := core.NewDomain(core.DomainTypeColumn, map[string]any{"column": "fare"}, nil, "rule")
	return b.Build(context.Background(), buildContext(t, nil, makeBatches(1), vars), domain, rangeParams())
}

func TestDefaultExpectationConfigurationBuilder_Substitution(t *testing.T) {
	exp, err := buildExpectation(t, map[string]any{
		"expectation_type": "expect_column_values_to_be_between",
		"column":           "$domain.domain_kwargs.column",
		"min_value":        "$parameter.row_count_range.value[0]",
		"max_value":        "$parameter.row_count_range.value[1]",
		"mostly":           "$variables.mostly",
		"strict_min":       "$variables.strict",
		"meta":             map[string]any{"profiler_details": "$parameter.row_count_range.details", "owner": "data"},
	})
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, "expect_column_values_to_be_between", exp.ExpectationType)
	assert.Equal(t, map[string]any{
		"column":     "fare",
		"min_value":  int64(90),
		"max_value":  int64(110),
		"mostly":     0.95,
		"strict_min": false,
	}, exp.Kwargs)
	assert.Equal(t, map[string]any{"num_batches": 3}, exp.ProfilerDetails())
	assert.Equal(t, "data", exp.Meta["owner"])
	assert.Equal(t, "fare", exp.Column())
}

func TestDefaultExpectationConfigurationBuilder_Condition(t *testing.T) {
	opts := func(cond string) map[string]any {
		return map[string]any{
			"expectation_type": "expect_column_min_to_be_between",
			"min_value":        "$parameter.row_count_range.value[0]",
			"condition":        cond,
		}
	}

	exp, err := buildExpectation(t, opts("$parameter.row_count_range.value[0] > 100"))
	require.NoError(t, err)
	assert.Nil(t, exp)

	exp, err = buildExpectation(t, opts("$parameter.row_count_range.value[0] <= 100 & $variables.strict == false"))
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.NotContains(t, exp.Kwargs, "condition")
}

func TestDefaultExpectationConfigurationBuilder_DetailsFromSingleValidationBuilder(t *testing.T) {
	exp, err := buildExpectation(t, map[string]any{
		"expectation_type": "expect_table_row_count_to_be_between",
		"min_value":        "$parameter.row_count_range.value[0]",
	}, &core.BuilderConfig{ClassName: ClassNumericMetricRangeParameterBuilder, Name: "row_count_range"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"num_batches": 3}, exp.ProfilerDetails())
}

func TestDefaultExpectationConfigurationBuilder_InvalidConfig(t *testing.T) {
	_, err := NewDefaultExpectationConfigurationBuilder(&core.BuilderConfig{
		ClassName: ClassDefaultExpectationConfigurationBuilder,
		Options:   map[string]any{"min_value": 1},
	})
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))

	_, err = NewDefaultExpectationConfigurationBuilder(&core.BuilderConfig{
		ClassName: ClassDefaultExpectationConfigurationBuilder,
		Options:   map[string]any{"expectation_type": "x", "condition": "$variables.a =="},
	})
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))
}

func TestDefaultExpectationConfigurationBuilder_Dependencies(t *testing.T) {
	b, err := NewDefaultExpectationConfigurationBuilder(&core.BuilderConfig{
		ClassName: ClassDefaultExpectationConfigurationBuilder,
		ValidationParameterBuilderConfigs: []*core.BuilderConfig{
			{ClassName: ClassNumericMetricRangeParameterBuilder, Name: "r"},
		},
		Options: map[string]any{
			"expectation_type": "x",
			"value":            "$parameter.v.value",
			"condition":        "$parameter.c.value > 1",
			"meta":             map[string]any{"notes": "$parameter.m.details"},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r", "v", "c", "m"}, b.Dependencies())
}
