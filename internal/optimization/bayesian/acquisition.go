package bayesian

import "gonum.org/v1/gonum/stat/distuv"

// ExpectedImprovement scores candidate points for minimization by the
// expected amount they undercut the best observation.
type ExpectedImprovement struct {
	bestObserved float64
	// xi trades exploration for exploitation
	xi float64
}

// NewExpectedImprovement creates the acquisition function.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{bestObserved: bestObserved, xi: xi}
}

// Compute returns EI = I Φ(I/σ) + σ φ(I/σ) with I = best - μ - ξ.
// It is never negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.bestObserved - mu - ei.xi
	if sigma <= 1e-12 {
		if improvement > 0 {
			return improvement
		}
		return 0
	}

	z := improvement / sigma
	v := improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	if v < 0 {
		return 0
	}
	return v
}

// UpdateBest updates the best observed value
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// BestObserved returns the best observed value
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
