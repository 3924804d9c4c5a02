package bayesian

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/optix/internal/errors"
)

// maxJitterAttempts bounds how often the diagonal jitter is raised tenfold
// before a kernel matrix is given up on.
const maxJitterAttempts = 6

// GP is a zero-mean Gaussian process regressor on standardized targets.
type GP struct {
	kernel   Kernel
	noiseVar float64

	x     [][]float64
	alpha *mat.VecDense
	chol  mat.Cholesky

	// standardization of the training targets
	mean, scale float64
}

// NewGP creates a Gaussian process. noiseVar is added to the kernel
// diagonal.
func NewGP(kernel Kernel, noiseVar float64) *GP {
	return &GP{kernel: kernel, noiseVar: noiseVar, scale: 1}
}

// Fit conditions the process on the observations y at x.
func (gp *GP) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return errors.Errorf(errors.KindUnknown, "got %d points and %d targets", n, len(y)).
			WithComponent(component).WithOperation("GP.Fit")
	}

	mean, std := stat.MeanStdDev(y, nil)
	if !(std > 0) || math.IsInf(std, 0) {
		std = 1
	}
	target := mat.NewVecDense(n, nil)
	for i, v := range y {
		target.SetVec(i, (v-mean)/std)
	}

	jitter := gp.noiseVar
	if jitter <= 0 {
		jitter = 1e-10
	}
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := gp.kernel.Eval(x[i], x[j])
				if i == j {
					v += jitter
				}
				k.SetSym(i, j, v)
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(k) {
			alpha := mat.NewVecDense(n, nil)
			if err := chol.SolveVecTo(alpha, target); err == nil {
				gp.x = x
				gp.alpha = alpha
				gp.chol = chol
				gp.mean, gp.scale = mean, std
				return nil
			}
		}
		jitter *= 10
	}
	return errors.Errorf(errors.KindUnknown, "kernel matrix of %d points is not positive definite", n).
		WithComponent(component).WithOperation("GP.Fit")
}

// Predict returns the posterior mean and standard deviation at x.
func (gp *GP) Predict(x []float64) (mu, sigma float64) {
	n := len(gp.x)
	if n == 0 {
		return gp.mean, gp.scale * math.Sqrt(gp.kernel.Eval(x, x))
	}

	k := mat.NewVecDense(n, nil)
	for i, xi := range gp.x {
		k.SetVec(i, gp.kernel.Eval(x, xi))
	}
	mu = mat.Dot(k, gp.alpha)

	var v mat.VecDense
	variance := 0.0
	if err := gp.chol.SolveVecTo(&v, k); err == nil {
		variance = gp.kernel.Eval(x, x) - mat.Dot(k, &v)
	}
	if variance < 0 {
		variance = 0
	}
	return gp.mean + gp.scale*mu, gp.scale * math.Sqrt(variance)
}
