package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func TestMergeVariables(t *testing.T) {
	base := map[string]any{
		"false_positive_rate": 0.05,
		"n_resamples":         9999,
		"truncate_values":     map[string]any{"lower_bound": 0, "upper_bound": nil},
		"estimator":           "bootstrap",
	}
	override := map[string]any{
		"n_resamples":     100,
		"truncate_values": map[string]any{"upper_bound": 500},
		"random_seed":     7,
	}

	got := core.MergeVariables(base, override)
	assert.Equal(t, map[string]any{
		"false_positive_rate": 0.05,
		"n_resamples":         100,
		"truncate_values":     map[string]any{"lower_bound": 0, "upper_bound": 500},
		"estimator":           "bootstrap",
		"random_seed":         7,
	}, got)

	assert.Equal(t, 9999, base["n_resamples"], "base is not modified")
	assert.Equal(t, map[string]any{"lower_bound": 0, "upper_bound": nil}, base["truncate_values"])
	assert.Equal(t, map[string]any{"upper_bound": 500}, override["truncate_values"])
}

func TestMergeVariables_Empty(t *testing.T) {
	assert.Equal(t, map[string]any{}, core.MergeVariables(nil, nil))
	assert.Equal(t, map[string]any{"a": 1}, core.MergeVariables(map[string]any{"a": 1}, nil))
	assert.Equal(t, map[string]any{"a": 1}, core.MergeVariables(nil, map[string]any{"a": 1}))
}
