package basinhopping

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optix/internal/optimization"
)

// localMinimizer refines a point with a gonum method in the unconstrained
// internal coordinates of the bound transforms.
type localMinimizer struct {
	method     optimization.LocalMethod
	transforms transforms
	objective  func(x []float64) float64
	maxIter    int
	logger     *zap.Logger
}

// minimize returns the refined point in external coordinates together with
// its objective value and the number of objective evaluations spent. The
// result is never worse than x0.
func (m *localMinimizer) minimize(x0 []float64) ([]float64, float64, int) {
	dim := len(x0)
	start := m.transforms.clip(make([]float64, dim), x0)
	bestX := append([]float64(nil), start...)
	bestF := m.objective(bestX)
	evals := 1

	u0 := m.transforms.internal(make([]float64, dim), start)
	scratch := make([]float64, dim)
	f := func(u []float64) float64 {
		return m.objective(m.transforms.external(scratch, u))
	}

	problem := optimize.Problem{Func: f}
	if m.method.NeedsGradient() {
		problem.Grad = func(grad, u []float64) {
			fd.Gradient(grad, f, u, &fd.Settings{Formula: fd.Central})
		}
	}

	consider := func(res *optimize.Result) {
		if res == nil {
			return
		}
		evals += res.FuncEvaluations
		if !math.IsInf(res.F, 1) && !math.IsNaN(res.F) && res.F < bestF {
			bestF = res.F
			m.transforms.external(bestX, res.X)
		}
	}

	res, err := optimize.Minimize(problem, u0, m.settings(), m.method.ToGonumMethod())
	consider(res)
	if err != nil && m.method != optimization.MethodNelderMead {
		m.logger.Debug("local refinement failed, falling back to Nelder-Mead",
			zap.Stringer("method", m.method),
			zap.Error(err))
		from := u0
		if res != nil && res.F == bestF {
			from = res.X
		}
		res, err = optimize.Minimize(optimize.Problem{Func: f}, from, m.settings(), &optimize.NelderMead{})
		consider(res)
	}
	if err != nil {
		m.logger.Debug("local refinement stopped early", zap.Error(err))
	}

	return bestX, bestF, evals
}

// settings builds a fresh Settings value; convergers keep state between runs.
func (m *localMinimizer) settings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: m.maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 20,
		},
	}
}
