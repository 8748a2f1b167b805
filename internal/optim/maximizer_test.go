package optim_test

import (
	"testing"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// concave quadratic with its maximum at (1, -2).
func quadratic() optim.Objective {
	return optim.Objective{
		Func: func(x []float64) float64 {
			dx, dy := x[0]-1, x[1]+2
			return 3 - dx*dx - 2*dy*dy
		},
		Grad: func(grad, x []float64) {
			grad[0] = -2 * (x[0] - 1)
			grad[1] = -4 * (x[1] + 2)
		},
	}
}

func TestMaximizers_FindQuadraticPeak(t *testing.T) {
	for _, name := range []string{optim.NelderMeadName, optim.LBFGSName} {
		t.Run(name, func(t *testing.T) {
			m, err := optim.New(name, optim.DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, name, m.Name())

			res, err := m.Maximize(quadratic(), []float64{0.1, 0.1})
			require.NoError(t, err)
			assert.True(t, res.Converged, "status %s", res.Status)
			assert.InDelta(t, 1.0, res.X[0], 1e-3)
			assert.InDelta(t, -2.0, res.X[1], 1e-3)
			assert.InDelta(t, 3.0, res.F, 1e-6)
		})
	}
}

func TestLBFGS_StopsAtGradientThreshold(t *testing.T) {
	cfg := optim.DefaultConfig()
	assert.Equal(t, 1e-7, cfg.GradientThreshold)

	cfg.GradientThreshold = 1e-3
	res, err := optim.NewLBFGS(cfg).Maximize(quadratic(), []float64{0.1, 0.1})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, "GradientThreshold", res.Status)
	assert.InDelta(t, 1.0, res.X[0], 1e-2)
}

func TestLBFGS_RequiresGradient(t *testing.T) {
	m := optim.NewLBFGS(optim.DefaultConfig())
	obj := quadratic()
	obj.Grad = nil

	_, err := m.Maximize(obj, []float64{0, 0})
	assert.ErrorIs(t, err, optim.ErrGradientRequired)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := optim.New("simulated-annealing", optim.DefaultConfig())
	assert.Error(t, err)
}

func TestNelderMead_IterationCapReportsNotConverged(t *testing.T) {
	cfg := optim.DefaultConfig()
	cfg.MaxIterations = 3
	m := optim.NewNelderMead(cfg)

	res, _ := m.Maximize(quadratic(), []float64{50, 50})
	require.NotNil(t, res)
	assert.False(t, res.Converged)
}
