package bayesian

import (
	"math"

	"github.com/copyleftdev/optix/internal/errors"
)

// Kernel represents a covariance function for Gaussian processes.
type Kernel interface {
	// Eval computes the covariance between x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters
	SetHyperparameters(params []float64) error
}

// stationary holds the hyperparameters shared by the isotropic kernels.
type stationary struct {
	// Length scale parameter (larger = smoother function)
	lengthScale float64
	// Signal variance (controls the amplitude of the function)
	signalVar float64
}

func newStationary(op string, lengthScale, signalVar float64) (stationary, error) {
	if !(lengthScale > 0) || !(signalVar > 0) {
		return stationary{}, errors.Errorf(errors.KindConfiguration,
			"length scale and signal variance must be positive, got %g and %g", lengthScale, signalVar).
			WithComponent(component).WithOperation(op)
	}
	return stationary{lengthScale: lengthScale, signalVar: signalVar}, nil
}

func (k *stationary) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

func (k *stationary) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return errors.Errorf(errors.KindInvalidArity, "expected 2 hyperparameters, got %d", len(params)).
			WithComponent(component).WithOperation("SetHyperparameters")
	}
	s, err := newStationary("SetHyperparameters", params[0], params[1])
	if err != nil {
		return err
	}
	*k = s
	return nil
}

func distance(x1, x2 []float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := x1[i] - x2[i]
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq)
}

// RBFKernel is the squared exponential kernel.
type RBFKernel struct {
	stationary
}

// NewRBFKernel creates an RBF kernel.
func NewRBFKernel(lengthScale, signalVar float64) (*RBFKernel, error) {
	s, err := newStationary("NewRBFKernel", lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &RBFKernel{s}, nil
}

func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	r := distance(x1, x2) / k.lengthScale
	return k.signalVar * math.Exp(-r*r/2)
}

// Matern52Kernel is the Matérn 5/2 kernel. Its sample paths are twice
// differentiable.
type Matern52Kernel struct {
	stationary
}

// NewMatern52Kernel creates a Matérn 5/2 kernel.
func NewMatern52Kernel(lengthScale, signalVar float64) (*Matern52Kernel, error) {
	s, err := newStationary("NewMatern52Kernel", lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &Matern52Kernel{s}, nil
}

func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(5) * distance(x1, x2) / k.lengthScale
	return k.signalVar * (1 + r + r*r/3) * math.Exp(-r)
}
