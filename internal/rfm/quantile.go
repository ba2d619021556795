package rfm

import "sort"

// quantileScores assigns each value a 1..bins score by rank-based quantile
// boundaries computed from the population itself. Tie rule, pinned for
// reproducibility: every occurrence of a value scores the bin of that
// value's first rank in sort order, so equal values can never straddle a
// boundary even when that produces unequal bin sizes.
func quantileScores(values []float64, bins int) []int {
	n := len(values)
	scores := make([]int, n)
	if n == 0 {
		return scores
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	// Rank of the first occurrence of each distinct value.
	firstRank := make(map[float64]int, n)
	for i, v := range sorted {
		if _, seen := firstRank[v]; !seen {
			firstRank[v] = i
		}
	}

	for i, v := range values {
		bin := firstRank[v] * bins / n
		if bin >= bins {
			bin = bins - 1
		}
		scores[i] = bin + 1
	}
	return scores
}
