// Package estimator derives numeric ranges from per-batch metric samples.
// Quantile interpolation follows the numpy conventions so configurations
// written for other profilers keep their meaning.
package estimator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Method selects how a quantile falling between two samples is computed.
type Method string

// Quantile interpolation methods.
const (
	MethodAuto     Method = "auto"
	MethodLinear   Method = "linear"
	MethodLower    Method = "lower"
	MethodHigher   Method = "higher"
	MethodMidpoint Method = "midpoint"
	MethodNearest  Method = "nearest"
)

// ParseMethod converts a string to a Method. The empty string means auto.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodLinear, MethodLower, MethodHigher, MethodMidpoint, MethodNearest:
		return m, nil
	default:
		return "", core.NewConfigError(core.ConfigInvalidOption,
			"unknown quantile_statistic_interpolation_method %q (expected auto, linear, lower, higher, midpoint or nearest)", s)
	}
}

// ResolveAuto picks the concrete method for "auto": nearest when the result
// is rounded to whole numbers, linear otherwise.
func (m Method) ResolveAuto(roundDecimals *int) Method {
	if m != MethodAuto && m != "" {
		return m
	}
	if roundDecimals != nil && *roundDecimals == 0 {
		return MethodNearest
	}
	return MethodLinear
}

// Quantile returns the q-th quantile of an ascending-sorted sample.
// q is clamped to [0, 1]. The virtual index is q*(n-1).
func Quantile(sorted []float64, q float64, m Method) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		hi = n - 1
	}

	switch m.ResolveAuto(nil) {
	case MethodLower:
		return sorted[lo]
	case MethodHigher:
		return sorted[hi]
	case MethodMidpoint:
		return (sorted[lo] + sorted[hi]) / 2
	case MethodNearest:
		return sorted[int(math.RoundToEven(pos))]
	default:
		w := pos - float64(lo)
		if lo == hi || w == 0 || sorted[lo] == sorted[hi] {
			return sorted[lo]
		}
		// Interpolating toward an infinite neighbour stays infinite.
		if math.IsInf(sorted[lo], 0) {
			return sorted[lo]
		}
		if math.IsInf(sorted[hi], 0) {
			return sorted[hi]
		}
		return sorted[lo] + w*(sorted[hi]-sorted[lo])
	}
}

// sortedCopy returns an ascending copy of values.
func sortedCopy(values []float64) []float64 {
	cp := make([]float64, len(values))
	copy(cp, values)
	sort.Float64s(cp)
	return cp
}

// hasNaN reports whether any value is NaN.
func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Round rounds v to the given number of decimals, halves away from zero.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Bounds is an optional closed interval used to clip estimates.
type Bounds struct {
	Lower *float64 `mapstructure:"lower_bound"`
	Upper *float64 `mapstructure:"upper_bound"`
}

// Validate checks that lower does not exceed upper.
func (b Bounds) Validate() error {
	if b.Lower != nil && b.Upper != nil && *b.Lower > *b.Upper {
		return core.NewConfigError(core.ConfigInvalidOption,
			"truncate_values lower_bound %v exceeds upper_bound %v", *b.Lower, *b.Upper)
	}
	return nil
}

// Clip clamps v into the bounds. NaN passes through.
func (b Bounds) Clip(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if b.Lower != nil && v < *b.Lower {
		v = *b.Lower
	}
	if b.Upper != nil && v > *b.Upper {
		v = *b.Upper
	}
	return v
}

// String renders the bounds for logs.
func (b Bounds) String() string {
	f := func(p *float64) string {
		if p == nil {
			return "none"
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprintf("[%s, %s]", f(b.Lower), f(b.Upper))
}
