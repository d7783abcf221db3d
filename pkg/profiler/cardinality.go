package profiler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// CardinalityLimitMode bundles the metric that measures column
// distinctness with the threshold a categorical column must not exceed.
// Exactly one of MaxUniqueValues and MaxProportionUnique is set.
type CardinalityLimitMode struct {
	Name                string
	MaxUniqueValues     *int64
	MaxProportionUnique *float64
	MetricName          string
}

// IsAbsolute reports whether the limit counts distinct values.
func (m CardinalityLimitMode) IsAbsolute() bool {
	return m.MaxUniqueValues != nil
}

// Allows reports whether a measured value satisfies the limit.
// NaN never satisfies it.
func (m CardinalityLimitMode) Allows(measured float64) bool {
	if math.IsNaN(measured) {
		return false
	}
	if m.MaxUniqueValues != nil {
		return measured <= float64(*m.MaxUniqueValues)
	}
	return measured <= *m.MaxProportionUnique
}

// ToJSONDict renders the mode the way it appears in profiler configs.
func (m CardinalityLimitMode) ToJSONDict() map[string]any {
	out := map[string]any{
		"name":                       m.Name,
		"metric_name_defining_limit": m.MetricName,
	}
	if m.MaxUniqueValues != nil {
		out["max_unique_values"] = *m.MaxUniqueValues
	} else {
		out["max_proportion_unique"] = *m.MaxProportionUnique
	}
	return out
}

func absoluteMode(name string, n int64) CardinalityLimitMode {
	return CardinalityLimitMode{Name: name, MaxUniqueValues: &n, MetricName: core.MetricColumnDistinctValuesCount}
}

func relativeMode(name string, p float64) CardinalityLimitMode {
	return CardinalityLimitMode{Name: name, MaxProportionUnique: &p, MetricName: core.MetricColumnUniqueProportion}
}

var cardinalityModes = func() map[string]CardinalityLimitMode {
	modes := []CardinalityLimitMode{
		absoluteMode("ZERO", 0),
		absoluteMode("ONE", 1),
		absoluteMode("TWO", 2),
		absoluteMode("VERY_FEW", 10),
		absoluteMode("FEW", 100),
		absoluteMode("SOME", 1000),
		absoluteMode("MANY", 10000),
		absoluteMode("VERY_MANY", 100000),
		relativeMode("UNIQUE", 1.0),
		absoluteMode("ABS_10", 10),
		absoluteMode("ABS_100", 100),
		absoluteMode("ABS_1000", 1000),
		absoluteMode("ABS_10_000", 10000),
		absoluteMode("ABS_100_000", 100000),
		absoluteMode("ABS_1_000_000", 1000000),
		absoluteMode("ABS_10_000_000", 10000000),
		absoluteMode("ABS_100_000_000", 100000000),
		absoluteMode("ABS_1_000_000_000", 1000000000),
		absoluteMode("ABS_10_000_000_000", 10000000000),
		absoluteMode("ABS_100_000_000_000", 100000000000),
		relativeMode("REL_0", 0),
		relativeMode("REL_001", 1e-5),
		relativeMode("REL_01", 1e-4),
		relativeMode("REL_0_1", 1e-3),
		relativeMode("REL_1", 1e-2),
		relativeMode("REL_10", 0.10),
		relativeMode("REL_25", 0.25),
		relativeMode("REL_50", 0.50),
		relativeMode("REL_75", 0.75),
		relativeMode("REL_100", 1.0),
		relativeMode("ONE_PCT", 0.01),
		relativeMode("TEN_PCT", 0.10),
	}
	out := make(map[string]CardinalityLimitMode, len(modes))
	for _, m := range modes {
		out[m.Name] = m
	}
	return out
}()

// CardinalityLimitModeNames lists the named presets.
func CardinalityLimitModeNames() []string {
	names := make([]string, 0, len(cardinalityModes))
	for n := range cardinalityModes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupCardinalityLimitMode returns a named preset (case-insensitive).
func LookupCardinalityLimitMode(name string) (CardinalityLimitMode, error) {
	m, ok := cardinalityModes[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return CardinalityLimitMode{}, core.NewConfigError(core.ConfigInvalidOption,
			"unknown cardinality_limit_mode %q", name)
	}
	return m, nil
}

// resolveCardinalityLimit builds the effective mode from the three
// mutually exclusive ways of expressing it. mode may be a preset name or a
// mapping as produced by ToJSONDict.
func resolveCardinalityLimit(mode any, maxUnique *int64, maxProportion *float64) (CardinalityLimitMode, error) {
	set := 0
	if mode != nil {
		set++
	}
	if maxUnique != nil {
		set++
	}
	if maxProportion != nil {
		set++
	}
	switch {
	case set == 0:
		return CardinalityLimitMode{}, core.NewConfigError(core.ConfigInvalidOption,
			"one of cardinality_limit_mode, max_unique_values or max_proportion_unique is required")
	case set > 1:
		return CardinalityLimitMode{}, core.NewConfigError(core.ConfigMutuallyExclusive,
			"only one of cardinality_limit_mode, max_unique_values and max_proportion_unique may be set")
	case maxUnique != nil:
		return absoluteMode("CUSTOM", *maxUnique), nil
	case maxProportion != nil:
		return relativeMode("CUSTOM", *maxProportion), nil
	}

	switch t := mode.(type) {
	case string:
		return LookupCardinalityLimitMode(t)
	case CardinalityLimitMode:
		return t, nil
	case map[string]any:
		var raw struct {
			Name                string   `mapstructure:"name"`
			MaxUniqueValues     *int64   `mapstructure:"max_unique_values"`
			MaxProportionUnique *float64 `mapstructure:"max_proportion_unique"`
			MetricName          string   `mapstructure:"metric_name_defining_limit"`
		}
		if err := decodeOptions("cardinality_limit_mode", t, &raw); err != nil {
			return CardinalityLimitMode{}, err
		}
		if raw.MaxUniqueValues == nil && raw.MaxProportionUnique == nil {
			if raw.Name == "" {
				return CardinalityLimitMode{}, core.NewConfigError(core.ConfigInvalidOption,
					"cardinality_limit_mode mapping needs a name or a limit")
			}
			return LookupCardinalityLimitMode(raw.Name)
		}
		m, err := resolveCardinalityLimit(nil, raw.MaxUniqueValues, raw.MaxProportionUnique)
		if err != nil {
			return CardinalityLimitMode{}, err
		}
		if raw.Name != "" {
			m.Name = raw.Name
		}
		if raw.MetricName != "" {
			m.MetricName = raw.MetricName
		}
		return m, nil
	default:
		return CardinalityLimitMode{}, core.NewConfigError(core.ConfigInvalidOption,
			"cardinality_limit_mode must be a name or a mapping, got %s", fmt.Sprintf("%T", mode))
	}
}
