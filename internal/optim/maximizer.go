// Package optim abstracts the numerical maximization used to fit the
// customer-value models, so likelihood code never depends on a specific
// optimizer backend.
package optim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// Objective is a function to maximize over R^n. Grad is optional; when set
// it writes ∂f/∂x into grad.
type Objective struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// Result holds the outcome of a maximization.
type Result struct {
	X           []float64 `json:"x"`
	F           float64   `json:"f"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	Status      string    `json:"status"`
	Converged   bool      `json:"converged"`
}

// Maximizer finds a local maximum of an objective from an initial guess.
type Maximizer interface {
	Name() string
	Maximize(obj Objective, x0 []float64) (*Result, error)
}

// ErrGradientRequired is returned by gradient-based backends when the
// objective carries no gradient.
var ErrGradientRequired = errors.New("optim: objective has no gradient")

// Config bounds a maximization run.
type Config struct {
	MaxIterations     int     `json:"max_iterations" yaml:"max_iterations"`         // Major iteration cap (default: 5000)
	MaxEvaluations    int     `json:"max_evaluations" yaml:"max_evaluations"`       // Function evaluation cap (default: 50000)
	Tolerance         float64 `json:"tolerance" yaml:"tolerance"`                   // Absolute objective change regarded as a stall (default: 1e-10)
	StallIterations   int     `json:"stall_iterations" yaml:"stall_iterations"`     // Stalled iterations before declaring convergence (default: 200)
	GradientThreshold float64 `json:"gradient_threshold" yaml:"gradient_threshold"` // Gradient norm treated as a stationary point (default: 1e-7)
}

// DefaultConfig returns the default optimizer bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     5000,
		MaxEvaluations:    50000,
		Tolerance:         1e-10,
		StallIterations:   200,
		GradientThreshold: 1e-7,
	}
}

// New returns the backend registered under name.
func New(name string, cfg Config) (Maximizer, error) {
	switch name {
	case "", NelderMeadName:
		return NewNelderMead(cfg), nil
	case LBFGSName:
		return NewLBFGS(cfg), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", name)
	}
}

// minimize runs a gonum method on -f and converts the outcome back.
func minimize(method optimize.Method, obj Objective, x0 []float64, cfg Config) (*Result, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -obj.Func(x)
		},
	}
	if obj.Grad != nil {
		problem.Grad = func(grad, x []float64) {
			obj.Grad(grad, x)
			for i := range grad {
				grad[i] = -grad[i]
			}
		}
	}

	// gonum's default 1e-12 gradient threshold is unreachable on a mean
	// log-likelihood.
	settings := &optimize.Settings{
		GradientThreshold: cfg.GradientThreshold,
		MajorIterations:   cfg.MaxIterations,
		FuncEvaluations:   cfg.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   cfg.Tolerance,
			Iterations: cfg.StallIterations,
		},
	}

	res, err := optimize.Minimize(problem, append([]float64(nil), x0...), settings, method)
	if res == nil {
		return nil, err
	}
	out := &Result{
		X:           res.X,
		F:           -res.F,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: res.Stats.FuncEvaluations,
		Status:      res.Status.String(),
		Converged:   converged(res.Status),
	}
	return out, err
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success,
		optimize.FunctionConvergence,
		optimize.MethodConverge,
		optimize.GradientThreshold,
		optimize.StepConvergence:
		return true
	}
	return false
}
