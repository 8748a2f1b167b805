package model

import (
	"context"
	"fmt"
	"math"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"
)

// timeScale is the largest tenure after rescaling the fit data. The
// likelihood is invariant to the time unit up to alpha, so fitting on a
// common scale keeps alpha near the other parameters.
const timeScale = 10.0

// BGNBDFitter estimates BG-NBD parameters by penalized maximum likelihood.
type BGNBDFitter struct {
	Penalizer float64
	Maximizer optim.Maximizer
}

// NewBGNBDFitter creates a BG-NBD fitter.
func NewBGNBDFitter(penalizer float64, m optim.Maximizer) *BGNBDFitter {
	return &BGNBDFitter{Penalizer: penalizer, Maximizer: m}
}

// Fit maximizes mean(ln L) - Penalizer·Σθ² over the whole batch. Every record
// must satisfy T >= t_x >= 0.
func (f *BGNBDFitter) Fit(ctx context.Context, data []domain.CLTVInputs) (domain.BGNBDParams, domain.FitReport, error) {
	report := domain.FitReport{Model: ModelBGNBD, Optimizer: f.Maximizer.Name(), Penalizer: f.Penalizer}
	if len(data) == 0 {
		return domain.BGNBDParams{}, report, &domain.ErrValidation{Field: "records", Message: "cannot fit an empty batch"}
	}
	if err := validateTiming(data, "bg-nbd fit"); err != nil {
		return domain.BGNBDParams{}, report, err
	}

	maxT := 0.0
	for _, d := range data {
		maxT = math.Max(maxT, d.TenureWeeks)
	}
	scale := 1.0
	if maxT > 0 {
		scale = timeScale / maxT
	}

	x := make([]float64, len(data))
	tx := make([]float64, len(data))
	T := make([]float64, len(data))
	for i, d := range data {
		x[i] = float64(d.Frequency)
		tx[i] = d.RecencyWeeks * scale
		T[i] = d.TenureWeeks * scale
	}

	obj := logObjective(f.Penalizer, func(theta, grad []float64) float64 {
		p := bgnbdFrom(theta)
		var g, gi [4]float64
		var sum float64
		for i := range x {
			if grad == nil {
				sum += bgnbdLogLikelihood(p, x[i], tx[i], T[i], nil)
				continue
			}
			sum += bgnbdLogLikelihood(p, x[i], tx[i], T[i], &gi)
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

	res, err := maximizeLogParams(ctx, f.Maximizer, ModelBGNBD, obj, 4)
	if err != nil {
		return domain.BGNBDParams{}, report, err
	}
	theta := expAll(res.X)
	params := domain.BGNBDParams{R: theta[0], Alpha: theta[1] / scale, A: theta[2], B: theta[3]}

	report.Iterations = res.Iterations
	report.Evaluations = res.Evaluations
	report.Status = res.Status
	report.LogLikelihood = BGNBDLogLikelihood(params, data)
	return params, report, nil
}

// BGNBDLogLikelihood returns the summed, unpenalized log-likelihood of data.
func BGNBDLogLikelihood(p domain.BGNBDParams, data []domain.CLTVInputs) float64 {
	var sum float64
	for _, d := range data {
		sum += bgnbdLogLikelihood(p, float64(d.Frequency), d.RecencyWeeks, d.TenureWeeks, nil)
	}
	return sum
}

// bgnbdLogLikelihood evaluates one customer's log-likelihood
//
//	A1 = lnΓ(r+x) - lnΓ(r) + r ln α
//	A2 = lnΓ(a+b) + lnΓ(b+x) - lnΓ(b) - lnΓ(a+b+x)
//	A3 = -(r+x) ln(α+T)
//	A4 = ln a - ln(b+max(x,1)-1) - (r+x) ln(α+t_x)
//	ll = A1 + A2 + ln(e^A3 + 1{x>0} e^A4)
//
// and, when grad is non-nil, its gradient with respect to (r, α, a, b).
func bgnbdLogLikelihood(p domain.BGNBDParams, x, tx, T float64, grad *[4]float64) float64 {
	r, alpha, a, b := p.R, p.Alpha, p.A, p.B
	lnAT := math.Log(alpha + T)
	lnAtx := math.Log(alpha + tx)
	bx := b + math.Max(x, 1) - 1

	a1 := stats.LogGamma(r+x) - stats.LogGamma(r) + r*math.Log(alpha)
	a2 := stats.LogGamma(a+b) + stats.LogGamma(b+x) - stats.LogGamma(b) - stats.LogGamma(a+b+x)
	a3 := -(r + x) * lnAT

	w3, w4 := 1.0, 0.0
	tail := a3
	if x > 0 {
		a4 := math.Log(a) - math.Log(bx) - (r+x)*lnAtx
		tail = stats.LogSumExp(a3, a4)
		w3 = math.Exp(a3 - tail)
		w4 = math.Exp(a4 - tail)
	}

	if grad != nil {
		psiAB := stats.Digamma(a + b)
		psiABX := stats.Digamma(a + b + x)
		grad[0] = stats.Digamma(r+x) - stats.Digamma(r) + math.Log(alpha) - w3*lnAT - w4*lnAtx
		grad[1] = r/alpha - w3*(r+x)/(alpha+T) - w4*(r+x)/(alpha+tx)
		grad[2] = psiAB - psiABX + w4/a
		grad[3] = psiAB + stats.Digamma(b+x) - stats.Digamma(b) - psiABX - w4/bx
	}
	return a1 + a2 + tail
}

// BGNBDPredictor answers purchase-count questions for one fitted bundle.
type BGNBDPredictor struct {
	params domain.BGNBDParams
}

// NewBGNBDPredictor wraps fitted parameters. All four must be positive.
func NewBGNBDPredictor(p domain.BGNBDParams) (*BGNBDPredictor, error) {
	if !finitePositive(p.R, p.Alpha, p.A, p.B) {
		return nil, &domain.ErrValidation{Field: "bgnbd_params", Message: fmt.Sprintf("parameters must be positive: %+v", p)}
	}
	return &BGNBDPredictor{params: p}, nil
}

// Params returns the fitted bundle.
func (p *BGNBDPredictor) Params() domain.BGNBDParams {
	return p.params
}

// ExpectedPurchases returns E[Y(t) | x, t_x, T], the expected number of
// purchases in (T, T+t]:
//
//	(a+b+x-1)/(a-1) · [1 - ((α+T)/(α+T+t))^(r+x) · 2F1(r+x, b+x; a+b+x-1; t/(α+T+t))]
//	-----------------------------------------------------------------------------
//	            1 + 1{x>0} · a/(b+x-1) · ((α+T)/(α+t_x))^(r+x)
func (p *BGNBDPredictor) ExpectedPurchases(in domain.CLTVInputs, t float64) (float64, error) {
	if t < 0 {
		return 0, &domain.ErrValidation{Field: "horizon", Message: "must not be negative"}
	}
	if err := validateTiming([]domain.CLTVInputs{in}, "bg-nbd predict"); err != nil {
		return 0, err
	}
	if t == 0 {
		return 0, nil
	}

	r, alpha, a, b := p.params.R, p.params.Alpha, p.params.A, p.params.B
	x, tx, T := float64(in.Frequency), in.RecencyWeeks, in.TenureWeeks

	hypA := r + x
	hypB := b + x
	hypC := a + b + x - 1
	z := t / (alpha + T + t)

	lnHyp := stats.LogHyp2F1(hypA, hypB, hypC, z)
	first := (a + b + x - 1) / (a - 1)
	second := -math.Expm1(lnHyp + (r+x)*math.Log((alpha+T)/(alpha+t+T)))
	numerator := first * second

	denominator := 1.0
	if x > 0 {
		denominator += a / (b + x - 1) * math.Pow((alpha+T)/(alpha+tx), r+x)
	}

	v := numerator / denominator
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bg-nbd: expected purchases for %s not finite", in.ID)
	}
	return math.Max(v, 0), nil
}

// validateTiming checks T >= t_x >= 0 and frequency >= 0 for every record.
func validateTiming(data []domain.CLTVInputs, stage string) error {
	var bad []string
	for _, d := range data {
		if d.Frequency < 0 || d.RecencyWeeks < 0 || d.TenureWeeks < d.RecencyWeeks ||
			math.IsNaN(d.RecencyWeeks) || math.IsNaN(d.TenureWeeks) || math.IsInf(d.TenureWeeks, 0) {
			bad = append(bad, d.ID)
		}
	}
	if len(bad) > 0 {
		return &domain.ErrInvalidRecords{Stage: stage, Reason: "need T >= recency >= 0 and frequency >= 0", IDs: bad}
	}
	return nil
}
