package stats_test

import (
	"errors"
	"math"
	"testing"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantile_LinearInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}

	assert.InDelta(t, 1.0, stats.Quantile(values, 0), 1e-12)
	assert.InDelta(t, 3.0, stats.Quantile(values, 0.5), 1e-12)
	assert.InDelta(t, 5.0, stats.Quantile(values, 1), 1e-12)
	// h = 4*0.01 = 0.04 -> 1 + 0.04*(2-1)
	assert.InDelta(t, 1.04, stats.Quantile(values, 0.01), 1e-12)
	assert.InDelta(t, 4.96, stats.Quantile(values, 0.99), 1e-12)
}

func TestQuantile_Empty(t *testing.T) {
	assert.True(t, math.IsNaN(stats.Quantile(nil, 0.5)))
}

func TestBin_EqualPopulation(t *testing.T) {
	values := make([]float64, 103)
	for i := range values {
		values[i] = float64((i * 37) % 103) // permutation of 0..102
	}

	bins, err := stats.Bin(values, 5, "monetary")
	require.NoError(t, err)

	counts := make([]int, 5)
	for _, b := range bins {
		require.GreaterOrEqual(t, b, 0)
		require.Less(t, b, 5)
		counts[b]++
	}
	for _, c := range counts {
		assert.InDelta(t, 103.0/5.0, float64(c), 1.0)
	}
}

func TestBin_OrderFollowsValue(t *testing.T) {
	values := []float64{10, 50, 20, 40, 30}
	bins, err := stats.Bin(values, 5, "x")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 1, 3, 2}, bins)
}

func TestBin_DegeneratePopulation(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 2, 3}
	_, err := stats.Bin(values, 5, "frequency")
	require.Error(t, err)

	var degenerate *domain.ErrDegeneratePopulation
	require.True(t, errors.As(err, &degenerate))
	assert.Equal(t, "frequency", degenerate.Metric)
	assert.Equal(t, 3, degenerate.Distinct)
}

func TestBin_Empty(t *testing.T) {
	bins, err := stats.Bin(nil, 4, "cltv")
	require.NoError(t, err)
	assert.Empty(t, bins)
}

func TestBin_TieOnEdgeGoesToLowerBin(t *testing.T) {
	// edges for 4 buckets over 1..5 are 1, 2, 3, 4, 5; every inner edge value
	// lands in the bin it closes.
	values := []float64{1, 2, 3, 4, 5}
	bins, err := stats.Bin(values, 4, "cltv")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 2, 3}, bins)
}

func TestRankFirst_BreaksTiesByPosition(t *testing.T) {
	ranks := stats.RankFirst([]float64{3, 1, 3, 2, 1})
	assert.Equal(t, []float64{4, 1, 5, 3, 2}, ranks)
}

func TestRankFirst_BinsWithHeavyTies(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		if i%10 == 0 {
			values[i] = 7
		} else {
			values[i] = 2
		}
	}
	_, err := stats.Bin(values, 5, "frequency")
	require.Error(t, err)

	bins, err := stats.Bin(stats.RankFirst(values), 5, "frequency")
	require.NoError(t, err)
	counts := make([]int, 5)
	for _, b := range bins {
		counts[b]++
	}
	assert.Equal(t, []int{10, 10, 10, 10, 10}, counts)
}
