package estimator

import "math"

// Histogram counts values over equal-width bins. The last bin is closed on
// both ends; the others are half-open. A degenerate range [v, v] is widened
// to [v-0.5, v+0.5].
type Histogram struct {
	Edges  []float64
	Counts []int
}

// NewHistogram creates an empty histogram over [lo, hi].
func NewHistogram(lo, hi float64, bins int) *Histogram {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi
	return &Histogram{Edges: edges, Counts: make([]int, bins)}
}

// newSampleHistogram spans the finite values of an ascending-sorted
// sample. A sample without finite values gets the unit range around zero.
func newSampleHistogram(sorted []float64, bins int) *Histogram {
	lo, hi := math.NaN(), math.NaN()
	for _, v := range sorted {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) {
			lo = v
		}
		hi = v
	}
	if math.IsNaN(lo) {
		lo, hi = 0, 0
	}
	return NewHistogram(lo, hi, bins)
}

// Add counts one value. Values outside the range and non-finite values
// are ignored.
func (h *Histogram) Add(v float64) {
	bins := len(h.Counts)
	lo, hi := h.Edges[0], h.Edges[bins]
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return
	}
	i := int((v - lo) / (hi - lo) * float64(bins))
	switch {
	case i < 0:
		i = 0
	case i >= bins:
		i = bins - 1
	}
	h.Counts[i]++
}

// AddAll counts every value.
func (h *Histogram) AddAll(values []float64) {
	for _, v := range values {
		h.Add(v)
	}
}

// Total returns the number of counted values.
func (h *Histogram) Total() int {
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	return total
}
