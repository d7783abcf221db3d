package profiler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func TestLookupCardinalityLimitMode(t *testing.T) {
	m, err := LookupCardinalityLimitMode("rel_100")
	require.NoError(t, err)
	assert.Equal(t, "REL_100", m.Name)
	assert.False(t, m.IsAbsolute())
	assert.Equal(t, map[string]any{
		"name":                       "REL_100",
		"max_proportion_unique":      1.0,
		"metric_name_defining_limit": core.MetricColumnUniqueProportion,
	}, m.ToJSONDict())

	m, err = LookupCardinalityLimitMode("FEW")
	require.NoError(t, err)
	assert.True(t, m.IsAbsolute())
	assert.Equal(t, core.MetricColumnDistinctValuesCount, m.MetricName)

	_, err = LookupCardinalityLimitMode("LOTS")
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))

	assert.Contains(t, CardinalityLimitModeNames(), "ONE_PCT")
}

func TestCardinalityLimitMode_Allows(t *testing.T) {
	few, _ := LookupCardinalityLimitMode("TWO")
	assert.True(t, few.Allows(2))
	assert.False(t, few.Allows(3))

	half, _ := LookupCardinalityLimitMode("REL_50")
	assert.True(t, half.Allows(0.5))
	assert.False(t, half.Allows(0.51))
	assert.False(t, half.Allows(math.NaN()))
}

func TestResolveCardinalityLimit(t *testing.T) {
	n := int64(7)
	p := 0.3

	m, err := resolveCardinalityLimit(nil, &n, nil)
	require.NoError(t, err)
	assert.True(t, m.Allows(7))
	assert.False(t, m.Allows(8))

	m, err = resolveCardinalityLimit(nil, nil, &p)
	require.NoError(t, err)
	assert.Equal(t, core.MetricColumnUniqueProportion, m.MetricName)

	_, err = resolveCardinalityLimit(nil, nil, nil)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigInvalidOption))

	_, err = resolveCardinalityLimit("FEW", nil, &p)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigMutuallyExclusive))

	_, err = resolveCardinalityLimit(nil, &n, &p)
	assert.True(t, core.IsConfigErrorKind(err, core.ConfigMutuallyExclusive))
}
