package stats

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// LogGamma returns ln|Γ(x)|.
func LogGamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// LogBeta returns ln B(a, b).
func LogBeta(a, b float64) float64 {
	return mathext.Lbeta(a, b)
}

// Digamma returns ψ(x), the derivative of ln Γ(x).
func Digamma(x float64) float64 {
	return mathext.Digamma(x)
}

// maxSeriesTerms caps the hypergeometric power series.
const maxSeriesTerms = 200000

// LogHyp2F1 returns ln 2F1(a, b; c; z) for positive a, b, c and 0 <= z < 1.
//
// The power series Σ (a)_n (b)_n / (c)_n z^n / n! is summed with a running
// log-scale so large intermediate terms do not overflow. Summation stops once
// the terms are shrinking and no longer move the sum.
func LogHyp2F1(a, b, c, z float64) float64 {
	if z == 0 {
		return 0
	}
	if z < 0 || z >= 1 || a <= 0 || b <= 0 || c <= 0 {
		return math.NaN()
	}
	lz := math.Log(z)
	logTerm := 0.0
	logSum := 0.0
	for n := 0; n < maxSeriesTerms; n++ {
		fn := float64(n)
		step := math.Log(a+fn) + math.Log(b+fn) - math.Log(c+fn) - math.Log(fn+1) + lz
		logTerm += step
		logSum = LogSumExp(logSum, logTerm)
		if step < 0 && logTerm-logSum < -40 {
			break
		}
	}
	return logSum
}

// LogSumExp returns ln(e^x + e^y) without overflow.
func LogSumExp(x, y float64) float64 {
	if math.IsInf(x, -1) {
		return y
	}
	if math.IsInf(y, -1) {
		return x
	}
	m := math.Max(x, y)
	return m + math.Log(math.Exp(x-m)+math.Exp(y-m))
}
