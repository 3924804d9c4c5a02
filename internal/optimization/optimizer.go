// Package optimization holds the contracts shared by the global search
// strategies used to fit optical templates.
package optimization

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optix/internal/errors"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Optimize runs the optimization process
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the history of evaluations
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// OptimizerConfig contains configuration for the optimizer
type OptimizerConfig struct {
	// Objective function to minimize
	Objective ObjectiveFunction

	// Bounds for each dimension [min, max]. Either side may be infinite.
	Bounds [][2]float64

	// InitialPoint is the starting point of the search. When empty the
	// strategy picks one inside Bounds.
	InitialPoint []float64

	// Maximum number of iterations (hops for basin hopping, generations
	// for population methods)
	MaxIterations int

	// Random seed for reproducibility; 0 seeds from the clock
	RandomSeed int64

	// StepSize is the initial half-width of random perturbations
	StepSize float64

	// Temperature of the Metropolis acceptance test
	Temperature float64

	// LocalMethod selects the local refinement method
	LocalMethod LocalMethod
}

// Dim returns the dimensionality of the problem.
func (c OptimizerConfig) Dim() int {
	if len(c.InitialPoint) > 0 {
		return len(c.InitialPoint)
	}
	return len(c.Bounds)
}

// ObjectiveFunction defines the function to be optimized
type ObjectiveFunction func([]float64) (float64, error)

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
}

// Evaluation represents a single evaluation of the objective function
type Evaluation struct {
	Iteration int
	Solution  *Solution
	Accepted  bool
	Error     error
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []Evaluation
	Iterations   int
	Converged    bool
}

// LocalMethod is a gonum local minimizer used to refine a trial point.
type LocalMethod int

const (
	MethodLBFGS LocalMethod = iota
	MethodNelderMead
	MethodGradientDescent
)

var localMethodNames = map[LocalMethod]string{
	MethodLBFGS:           "lbfgs",
	MethodNelderMead:      "neldermead",
	MethodGradientDescent: "gradient",
}

func (m LocalMethod) String() string {
	if name, ok := localMethodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("LocalMethod(%d)", int(m))
}

// NeedsGradient reports whether the method consumes gradients.
func (m LocalMethod) NeedsGradient() bool {
	return m != MethodNelderMead
}

// ToGonumMethod returns a fresh gonum method value. gonum methods carry
// state between iterations, so callers must not share the result.
func (m LocalMethod) ToGonumMethod() optimize.Method {
	switch m {
	case MethodNelderMead:
		return &optimize.NelderMead{}
	case MethodGradientDescent:
		return &optimize.GradientDescent{}
	default:
		return &optimize.LBFGS{}
	}
}

// ParseLocalMethod maps a configuration name to a LocalMethod.
func ParseLocalMethod(name string) (LocalMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lbfgs", "l-bfgs", "l-bfgs-b":
		return MethodLBFGS, nil
	case "neldermead", "nelder-mead":
		return MethodNelderMead, nil
	case "gradient", "gradientdescent":
		return MethodGradientDescent, nil
	default:
		return MethodLBFGS, errors.Errorf(errors.KindConfiguration, "unknown local method %q", name).
			WithComponent("optimization").WithOperation("ParseLocalMethod")
	}
}
