package aggregator

import (
	"math"
	"math/big"
	"strconv"
)

// Mean returns the arithmetic mean of values, NaN when values is empty.
// The sum is taken over the exact binary values and rounded once, so the
// result is the float64 nearest the true mean and never overflows for
// finite input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum, x big.Rat
	for _, v := range values {
		if x.SetFloat64(v) == nil {
			return floatMean(values)
		}
		sum.Add(&sum, &x)
	}
	sum.Quo(&sum, new(big.Rat).SetInt64(int64(len(values))))
	mean, _ := sum.Float64()
	return mean
}

// floatMean is used when values holds an Inf or NaN, which big.Rat cannot
// represent. Plain float arithmetic propagates them.
func floatMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile computes the p-th percentile (0..100) of sorted using linear
// interpolation between the closest ranks: rank = p/100 * (n-1).
// Input must be sorted ascending. Returns NaN for empty input.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if upper >= n {
		upper = n - 1
	}
	if lower == upper {
		return sorted[lower]
	}
	return lerp(sorted[lower], sorted[upper], rank-float64(lower))
}

// lerp interpolates from the nearer endpoint so that t close to 1 lands
// exactly on b.
func lerp(a, b, t float64) float64 {
	diff := b - a
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}

// Round rounds v to the given number of decimal places, resolving exact ties
// to even. The decision is made on the exact binary value of v, so 2.675
// (stored as 2.67499...) rounds down to 2.67.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
