package model

import (
	"context"
	"fmt"
	"math"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"
)

// GammaGammaFitter estimates Gamma-Gamma parameters by penalized maximum
// likelihood. Frequency and spend are assumed independent.
type GammaGammaFitter struct {
	Penalizer float64
	Maximizer optim.Maximizer
}

// NewGammaGammaFitter creates a Gamma-Gamma fitter.
func NewGammaGammaFitter(penalizer float64, m optim.Maximizer) *GammaGammaFitter {
	return &GammaGammaFitter{Penalizer: penalizer, Maximizer: m}
}

// Fit maximizes mean(ln L) - Penalizer·Σθ² over (x, m̄) pairs. Every record
// needs frequency >= 1 and a positive average spend. A fit whose q is not
// above 1 is rejected since the population mean spend is then undefined.
func (f *GammaGammaFitter) Fit(ctx context.Context, data []domain.CLTVInputs) (domain.GammaGammaParams, domain.FitReport, error) {
	report := domain.FitReport{Model: ModelGammaGamma, Optimizer: f.Maximizer.Name(), Penalizer: f.Penalizer}
	if len(data) == 0 {
		return domain.GammaGammaParams{}, report, &domain.ErrValidation{Field: "records", Message: "cannot fit an empty batch"}
	}
	if err := validateSpend(data, "gamma-gamma fit"); err != nil {
		return domain.GammaGammaParams{}, report, err
	}

	// The likelihood is invariant to the currency unit up to v, so spend is
	// fitted in units of its batch mean and v is rescaled afterwards.
	var scale float64
	for _, d := range data {
		scale += d.MonetaryAvg
	}
	scale /= float64(len(data))

	x := make([]float64, len(data))
	m := make([]float64, len(data))
	for i, d := range data {
		x[i] = float64(d.Frequency)
		m[i] = d.MonetaryAvg / scale
	}

	obj := logObjective(f.Penalizer, func(theta, grad []float64) float64 {
		p := ggFrom(theta)
		var g, gi [3]float64
		var sum float64
		for i := range x {
			if grad == nil {
				sum += ggLogLikelihood(p, x[i], m[i], nil)
				continue
			}
			sum += ggLogLikelihood(p, x[i], m[i], &gi)
			for k := range g {
				g[k] += gi[k]
			}
		}
		n := float64(len(x))
		for k := range grad {
			grad[k] = g[k] / n
		}
		return sum / n
	})

	res, err := maximizeLogParams(ctx, f.Maximizer, ModelGammaGamma, obj, 3)
	if err != nil {
		return domain.GammaGammaParams{}, report, err
	}
	theta := expAll(res.X)
	params := ggFrom(theta)
	params.V *= scale

	report.Iterations = res.Iterations
	report.Evaluations = res.Evaluations
	report.Status = res.Status
	report.LogLikelihood = GammaGammaLogLikelihood(params, data)
	if params.Q <= 1 {
		return params, report, &domain.ErrNotConverged{
			Model:      ModelGammaGamma,
			Iterations: res.Iterations,
			Status:     res.Status,
			Err:        fmt.Errorf("q = %.4f must exceed 1", params.Q),
		}
	}
	return params, report, nil
}

// GammaGammaLogLikelihood returns the summed, unpenalized log-likelihood.
func GammaGammaLogLikelihood(p domain.GammaGammaParams, data []domain.CLTVInputs) float64 {
	var sum float64
	for _, d := range data {
		sum += ggLogLikelihood(p, float64(d.Frequency), d.MonetaryAvg, nil)
	}
	return sum
}

// ggLogLikelihood evaluates
//
//	lnΓ(px+q) - lnΓ(px) - lnΓ(q) + q ln v + (px-1) ln m + px ln x - (px+q) ln(xm+v)
//
// and, when grad is non-nil, its gradient with respect to (p, q, v).
func ggLogLikelihood(p domain.GammaGammaParams, x, m float64, grad *[3]float64) float64 {
	px := p.P * x
	lnV := math.Log(p.V)
	lnM := math.Log(m)
	lnX := math.Log(x)
	lnXMV := math.Log(x*m + p.V)

	ll := stats.LogGamma(px+p.Q) - stats.LogGamma(px) - stats.LogGamma(p.Q) +
		p.Q*lnV + (px-1)*lnM + px*lnX - (px+p.Q)*lnXMV

	if grad != nil {
		psiPXQ := stats.Digamma(px + p.Q)
		grad[0] = x*psiPXQ - x*stats.Digamma(px) + x*lnM + x*lnX - x*lnXMV
		grad[1] = psiPXQ - stats.Digamma(p.Q) + lnV - lnXMV
		grad[2] = p.Q/p.V - (px+p.Q)/(x*m+p.V)
	}
	return ll
}

// GammaGammaPredictor answers spend questions for one fitted bundle.
type GammaGammaPredictor struct {
	params domain.GammaGammaParams
}

// NewGammaGammaPredictor wraps fitted parameters. q must exceed 1.
func NewGammaGammaPredictor(p domain.GammaGammaParams) (*GammaGammaPredictor, error) {
	if !finitePositive(p.P, p.Q, p.V) || p.Q <= 1 {
		return nil, &domain.ErrValidation{Field: "gamma_gamma_params", Message: fmt.Sprintf("need positive p, v and q > 1: %+v", p)}
	}
	return &GammaGammaPredictor{params: p}, nil
}

// Params returns the fitted bundle.
func (p *GammaGammaPredictor) Params() domain.GammaGammaParams {
	return p.params
}

// PopulationMean returns p·v/(q-1), the expected spend of an unseen customer.
func (p *GammaGammaPredictor) PopulationMean() float64 {
	return p.params.V * p.params.P / (p.params.Q - 1)
}

// ExpectedAverageValue shrinks the observed average m̄ toward the population
// mean with weight px/(px+q-1) on m̄.
func (p *GammaGammaPredictor) ExpectedAverageValue(in domain.CLTVInputs) (float64, error) {
	if err := validateSpend([]domain.CLTVInputs{in}, "gamma-gamma predict"); err != nil {
		return 0, err
	}
	px := p.params.P * float64(in.Frequency)
	w := px / (px + p.params.Q - 1)
	return (1-w)*p.PopulationMean() + w*in.MonetaryAvg, nil
}

func validateSpend(data []domain.CLTVInputs, stage string) error {
	var bad []string
	for _, d := range data {
		if d.Frequency < 1 || !(d.MonetaryAvg > 0) || math.IsInf(d.MonetaryAvg, 0) {
			bad = append(bad, d.ID)
		}
	}
	if len(bad) > 0 {
		return &domain.ErrInvalidRecords{Stage: stage, Reason: "need frequency >= 1 and positive average spend", IDs: bad}
	}
	return nil
}
