// Package model fits and evaluates the two probabilistic customer-value
// models: BG-NBD for purchase timing and Gamma-Gamma for average spend.
//
// Fitters turn a batch of CLTV inputs into immutable parameter bundles;
// predictors are built from a bundle and answer per-customer questions, so
// one fit can serve many horizons.
package model

import (
	"context"
	"math"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
)

const (
	ModelBGNBD      = "bg-nbd"
	ModelGammaGamma = "gamma-gamma"
)

// initialLogParam is the starting value of every log-parameter.
const initialLogParam = 0.1

// TransactionPredictor forecasts purchase counts.
type TransactionPredictor interface {
	// ExpectedPurchases returns the expected number of purchases in the t
	// weeks following the customer's tenure.
	ExpectedPurchases(in domain.CLTVInputs, t float64) (float64, error)
}

// SpendPredictor forecasts the average transaction value.
type SpendPredictor interface {
	ExpectedAverageValue(in domain.CLTVInputs) (float64, error)
}

// maximizeLogParams runs m from a uniform start and maps non-convergence to
// *domain.ErrNotConverged.
func maximizeLogParams(ctx context.Context, m optim.Maximizer, model string, obj optim.Objective, dim int) (*optim.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x0 := make([]float64, dim)
	for i := range x0 {
		x0[i] = initialLogParam
	}

	res, err := m.Maximize(obj, x0)
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if res == nil {
		return nil, &domain.ErrNotConverged{Model: model, Status: "failed", Err: err}
	}
	if err != nil || !res.Converged || !allFinite(res.X) || math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		return nil, &domain.ErrNotConverged{Model: model, Iterations: res.Iterations, Status: res.Status, Err: err}
	}
	return res, nil
}

func bgnbdFrom(theta []float64) domain.BGNBDParams {
	return domain.BGNBDParams{R: theta[0], Alpha: theta[1], A: theta[2], B: theta[3]}
}

func ggFrom(theta []float64) domain.GammaGammaParams {
	return domain.GammaGammaParams{P: theta[0], Q: theta[1], V: theta[2]}
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return false
		}
	}
	return true
}

func finitePositive(xs ...float64) bool {
	for _, x := range xs {
		if !(x > 0) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func expAll(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = math.Exp(v)
	}
	return out
}

// penalty returns pen·Σθ² and adds its derivative with respect to log θ
// (2·pen·θ²) to grad, when grad is non-nil.
func penalty(theta []float64, pen float64, grad []float64) float64 {
	var s float64
	for i, t := range theta {
		s += t * t
		if grad != nil {
			grad[i] -= 2 * pen * t * t
		}
	}
	return pen * s
}

// logObjective wraps a mean log-likelihood over θ = exp(u) into an
// optim.Objective over u. eval returns the mean log-likelihood and, when
// grad is non-nil, writes its mean gradient with respect to θ.
func logObjective(pen float64, eval func(theta, grad []float64) float64) optim.Objective {
	f := func(u, grad []float64) float64 {
		theta := expAll(u)
		if !finitePositive(theta...) {
			for i := range grad {
				grad[i] = 0
			}
			return math.Inf(-1)
		}
		ll := eval(theta, grad)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			for i := range grad {
				grad[i] = 0
			}
			return math.Inf(-1)
		}
		for i := range grad {
			grad[i] *= theta[i]
		}
		return ll - penalty(theta, pen, grad)
	}
	return optim.Objective{
		Func: func(u []float64) float64 { return f(u, nil) },
		Grad: func(grad, u []float64) { f(u, grad) },
	}
}
