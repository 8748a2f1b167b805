// Package stats holds the batch statistics shared by the RFM and CLTV
// pipelines: interpolated quantiles, equal-population binning and
// first-seen ranking.
package stats

import (
	"math"
	"sort"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
)

// Quantile returns the q-quantile of values using linear interpolation
// between closest ranks (h = (n-1)q). values need not be sorted.
// It returns NaN for an empty slice.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 || q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * q
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Edges returns the buckets+1 equal-population bin edges of values.
func Edges(values []float64, buckets int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	edges := make([]float64, buckets+1)
	for i := range edges {
		edges[i] = quantileSorted(sorted, float64(i)/float64(buckets))
	}
	return edges
}

// Bin assigns each value to one of `buckets` equal-population bins using
// edges computed from values themselves. Bins are right-closed, (e[i], e[i+1]],
// with the lowest bin also holding e[0]; a value sitting exactly on an inner
// edge therefore lands in the lower bin. Returned indices are 0-based.
//
// When two edges coincide the bins cannot be formed and a
// *domain.ErrDegeneratePopulation naming metric is returned.
func Bin(values []float64, buckets int, metric string) ([]int, error) {
	if len(values) == 0 {
		return []int{}, nil
	}
	if buckets < 1 {
		return nil, &domain.ErrValidation{Field: "buckets", Message: "must be positive"}
	}
	edges := Edges(values, buckets)
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return nil, &domain.ErrDegeneratePopulation{
				Metric:   metric,
				Buckets:  buckets,
				Distinct: Distinct(values),
			}
		}
	}
	return BinWithEdges(values, edges), nil
}

// BinWithEdges assigns values to precomputed right-closed bins. Values outside
// [e[0], e[last]] are clamped to the first or last bin.
func BinWithEdges(values []float64, edges []float64) []int {
	buckets := len(edges) - 1
	inner := edges[1:]
	out := make([]int, len(values))
	for i, v := range values {
		b := sort.SearchFloat64s(inner, v)
		if b > buckets-1 {
			b = buckets - 1
		}
		out[i] = b
	}
	return out
}

// Distinct counts the distinct values.
func Distinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// RankFirst returns 1-based ranks of values where ties are broken by the
// order in which the values appear, so every rank is unique.
func RankFirst(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})
	ranks := make([]float64, len(values))
	for pos, i := range idx {
		ranks[i] = float64(pos + 1)
	}
	return ranks
}
