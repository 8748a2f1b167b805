package optim

import "gonum.org/v1/gonum/optimize"

const (
	NelderMeadName = "nelder-mead"
	LBFGSName      = "lbfgs"
)

// NelderMead is a derivative-free simplex maximizer.
type NelderMead struct {
	cfg Config
}

// NewNelderMead creates a Nelder-Mead maximizer.
func NewNelderMead(cfg Config) *NelderMead {
	return &NelderMead{cfg: cfg}
}

func (m *NelderMead) Name() string { return NelderMeadName }

// Maximize runs the simplex search from x0. The gradient, if any, is ignored.
func (m *NelderMead) Maximize(obj Objective, x0 []float64) (*Result, error) {
	return minimize(&optimize.NelderMead{}, Objective{Func: obj.Func}, x0, m.cfg)
}

// LBFGS is a limited-memory quasi-Newton maximizer. It needs a gradient.
type LBFGS struct {
	cfg Config
}

// NewLBFGS creates an L-BFGS maximizer.
func NewLBFGS(cfg Config) *LBFGS {
	return &LBFGS{cfg: cfg}
}

func (m *LBFGS) Name() string { return LBFGSName }

// Maximize runs L-BFGS from x0.
func (m *LBFGS) Maximize(obj Objective, x0 []float64) (*Result, error) {
	if obj.Grad == nil {
		return nil, ErrGradientRequired
	}
	return minimize(&optimize.LBFGS{}, obj, x0, m.cfg)
}
