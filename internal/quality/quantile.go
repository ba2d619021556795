package quality

import "sort"

// Quantile computes quantile q over values using linear interpolation on the
// sorted sample (the "type 7" convention). Pinned explicitly: for
// [1,2,2,3,100] it yields Q1=2 and Q3=3, so outlier bounds are reproducible
// across refreshes.
func Quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
