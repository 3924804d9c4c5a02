package fit

import (
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optimization"
)

// Strategy selects the global search.
type Strategy string

const (
	// StrategyBasinHopping hops between local minima from x0.
	StrategyBasinHopping Strategy = "basinhopping"
	// StrategyMayfly explores the bounds with a mayfly swarm and then
	// refines its best position with basin hopping.
	StrategyMayfly Strategy = "mayfly"
	// StrategyBayesian explores the bounds with a Gaussian-process surrogate
	// and then refines its best point with basin hopping.
	StrategyBayesian Strategy = "bayesian"
)

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "", StrategyBasinHopping:
		return StrategyBasinHopping, nil
	case StrategyMayfly, StrategyBayesian:
		return s, nil
	default:
		return StrategyBasinHopping, errors.Errorf(errors.KindConfiguration, "unknown strategy %q", name).
			WithComponent(component).WithOperation("ParseStrategy")
	}
}

const (
	// DefaultLowerBound keeps lengths, focal lengths and radii away from zero.
	DefaultLowerBound = 1e-3
	DefaultHops       = 100
	DefaultStepSize   = 0.5
	DefaultTemp       = 1.0

	// Weights of the waist radius and waist location errors.
	WeightRadius   = 1000.0
	WeightLocation = 1.0
)

type runConfig struct {
	bounds      [][2]float64
	hops        int
	seed        int64
	stepSize    float64
	temperature float64
	localMethod optimization.LocalMethod
	chains      int
	strategy    Strategy
	population  int
	logger      *zap.Logger
}

func defaultRunConfig() runConfig {
	return runConfig{
		hops:        DefaultHops,
		stepSize:    DefaultStepSize,
		temperature: DefaultTemp,
		localMethod: optimization.MethodLBFGS,
		chains:      1,
		strategy:    StrategyBasinHopping,
		logger:      zap.NewNop(),
	}
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithBounds sets per-parameter [min, max] bounds. Either side may be
// infinite. The default is [1e-3, +Inf) for every parameter.
func WithBounds(bounds [][2]float64) RunOption {
	return func(c *runConfig) { c.bounds = bounds }
}

// WithHops sets the number of basin-hopping iterations. Values below 1
// select the default of 100.
func WithHops(n int) RunOption {
	return func(c *runConfig) { c.hops = n }
}

// WithSeed makes the search reproducible. Zero seeds from the clock.
func WithSeed(seed int64) RunOption {
	return func(c *runConfig) { c.seed = seed }
}

// WithStepSize sets the initial perturbation half-width.
func WithStepSize(step float64) RunOption {
	return func(c *runConfig) { c.stepSize = step }
}

// WithTemperature sets the Metropolis temperature.
func WithTemperature(t float64) RunOption {
	return func(c *runConfig) { c.temperature = t }
}

// WithLocalMethod selects the local refinement method.
func WithLocalMethod(m optimization.LocalMethod) RunOption {
	return func(c *runConfig) { c.localMethod = m }
}

// WithChains runs n independent chains concurrently and keeps the best.
func WithChains(n int) RunOption {
	return func(c *runConfig) { c.chains = n }
}

// WithStrategy selects the global search.
func WithStrategy(s Strategy) RunOption {
	return func(c *runConfig) { c.strategy = s }
}

// WithPopulation sets the swarm size of the mayfly strategy.
func WithPopulation(n int) RunOption {
	return func(c *runConfig) { c.population = n }
}

// WithLogger sets the logger used for search progress.
func WithLogger(logger *zap.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func (c *runConfig) validate(n int) error {
	fail := func(kind errors.Kind, format string, args ...interface{}) error {
		return errors.Errorf(kind, format, args...).WithComponent(component).WithOperation("Run")
	}

	if c.bounds == nil {
		c.bounds = make([][2]float64, n)
		for i := range c.bounds {
			c.bounds[i] = [2]float64{DefaultLowerBound, inf}
		}
	} else if len(c.bounds) != n {
		return fail(errors.KindParameterCountMismatch, "got %d bounds for %d parameters", len(c.bounds), n)
	}
	if c.hops < 1 {
		c.hops = DefaultHops
	}
	if c.stepSize < 0 || c.temperature < 0 {
		return fail(errors.KindConfiguration, "step size and temperature must not be negative")
	}
	if c.chains < 1 {
		c.chains = 1
	}
	if _, err := ParseStrategy(string(c.strategy)); err != nil {
		return err
	}
	return nil
}
