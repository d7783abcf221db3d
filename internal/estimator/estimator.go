package estimator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Kind names a range estimator.
type Kind string

// Estimator kinds.
const (
	KindBootstrap Kind = "bootstrap"
	KindExact     Kind = "exact"
)

// DefaultResamples is the bootstrap resample count used when none is set.
const DefaultResamples = 9999

// DefaultHistogramBins is the number of bins of the estimation histogram.
const DefaultHistogramBins = 10

// biasCorrectionThreshold is the bias/standard-error ratio above which the
// bootstrap point estimate is bias corrected.
const biasCorrectionThreshold = 0.25

// ParseKind converts a string to an estimator Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBootstrap, KindExact:
		return k, nil
	default:
		return "", core.NewConfigError(core.ConfigUnknownEstimator,
			"unknown estimator %q (expected bootstrap or exact)", s)
	}
}

// Options configures a range estimation.
type Options struct {
	FalsePositiveRate float64
	Method            Method
	NResamples        int
	// RandomSeed freezes bootstrap resampling. Nil draws a fresh seed.
	RandomSeed    *uint64
	HistogramBins int
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.FalsePositiveRate < 0 || o.FalsePositiveRate >= 1 || math.IsNaN(o.FalsePositiveRate) {
		return core.NewConfigError(core.ConfigInvalidOption,
			"false_positive_rate must be in [0, 1), got %v", o.FalsePositiveRate)
	}
	if o.NResamples < 0 {
		return core.NewConfigError(core.ConfigInvalidOption, "n_resamples must be positive, got %d", o.NResamples)
	}
	return nil
}

func (o Options) quantileLevels() (float64, float64) {
	return o.FalsePositiveRate / 2, 1 - o.FalsePositiveRate/2
}

// Result is an estimated range plus the distribution it was derived from.
type Result struct {
	Lower float64
	Upper float64
	// Histogram counts the estimator samples (bootstrap resample values or
	// the observed sample) over equal-width bins between BinEdges.
	Histogram []int
	BinEdges  []float64
}

// Range returns [Lower, Upper].
func (r Result) Range() []float64 {
	return []float64{r.Lower, r.Upper}
}

// Estimate runs the estimator of the given kind.
func Estimate(kind Kind, sample []float64, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if len(sample) == 0 {
		return Result{}, fmt.Errorf("cannot estimate a range from an empty sample")
	}
	switch kind {
	case KindBootstrap:
		return Bootstrap(sample, opts), nil
	case KindExact:
		return Exact(sample, opts), nil
	default:
		return Result{}, core.NewConfigError(core.ConfigUnknownEstimator, "unknown estimator %q", kind)
	}
}

// Exact takes the quantiles of the observed sample directly.
func Exact(sample []float64, opts Options) Result {
	bins := binsOrDefault(opts.HistogramBins)
	if hasNaN(sample) {
		return Result{Lower: math.NaN(), Upper: math.NaN()}
	}
	sorted := sortedCopy(sample)
	lq, uq := opts.quantileLevels()
	h := newSampleHistogram(sorted, bins)
	h.AddAll(sorted)
	return Result{
		Lower:     Quantile(sorted, lq, opts.Method),
		Upper:     Quantile(sorted, uq, opts.Method),
		Histogram: h.Counts,
		BinEdges:  h.Edges,
	}
}

// Bootstrap resamples the sample with replacement NResamples times and
// estimates each bound as the mean of the per-resample quantiles. When the
// bootstrap bias exceeds a quarter of its standard error the bias is
// subtracted from the point estimate.
func Bootstrap(sample []float64, opts Options) Result {
	bins := binsOrDefault(opts.HistogramBins)
	if hasNaN(sample) {
		return Result{Lower: math.NaN(), Upper: math.NaN()}
	}
	n := opts.NResamples
	if n == 0 {
		n = DefaultResamples
	}

	sorted := sortedCopy(sample)
	lq, uq := opts.quantileLevels()
	sampleLower := Quantile(sorted, lq, opts.Method)
	sampleUpper := Quantile(sorted, uq, opts.Method)

	rng := newRand(opts.RandomSeed)
	h := newSampleHistogram(sorted, bins)
	lowers := make([]float64, n)
	uppers := make([]float64, n)
	resample := make([]float64, len(sample))
	for i := 0; i < n; i++ {
		for j := range resample {
			resample[j] = sample[rng.IntN(len(sample))]
		}
		h.AddAll(resample)
		rs := sortedCopy(resample)
		lowers[i] = Quantile(rs, lq, opts.Method)
		uppers[i] = Quantile(rs, uq, opts.Method)
	}

	return Result{
		Lower:     biasCorrected(lowers, sampleLower),
		Upper:     biasCorrected(uppers, sampleUpper),
		Histogram: h.Counts,
		BinEdges:  h.Edges,
	}
}

func biasCorrected(estimates []float64, sampleStatistic float64) float64 {
	mean, std := meanStd(estimates)
	if math.IsInf(mean, 0) || math.IsInf(sampleStatistic, 0) {
		return mean
	}
	bias := mean - sampleStatistic
	if std == 0 || math.IsNaN(std) || bias/std <= biasCorrectionThreshold {
		return mean
	}
	return mean - bias
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

func newRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}

func binsOrDefault(bins int) int {
	if bins <= 0 {
		return DefaultHistogramBins
	}
	return bins
}
