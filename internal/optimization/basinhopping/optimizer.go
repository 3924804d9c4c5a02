// Package basinhopping implements a basin-hopping global search: repeated
// random perturbation of the current minimum, bounded local refinement and
// Metropolis acceptance.
package basinhopping

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optimization"
)

const (
	component = "basinhopping"

	defaultHops        = 100
	defaultStepSize    = 0.5
	defaultTemperature = 1.0
	defaultLocalIter   = 200

	// Step-size adaptation toward the target acceptance rate.
	adaptInterval    = 50
	targetAcceptRate = 0.5
	stepFactor       = 0.9
)

// Optimizer implements optimization.Optimizer with basin hopping.
type Optimizer struct {
	config optimization.OptimizerConfig
	logger *zap.Logger
	rng    *rand.Rand

	mu           sync.Mutex
	bestSolution *optimization.Solution
	history      []optimization.Evaluation
	cancel       context.CancelFunc
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOptimizer validates config, fills in defaults and returns an optimizer.
func NewOptimizer(config optimization.OptimizerConfig, opts ...Option) (*Optimizer, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	o := &Optimizer{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named(component)

	seed := config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	o.rng = rand.New(rand.NewSource(seed))
	return o, nil
}

func withDefaults(config optimization.OptimizerConfig) (optimization.OptimizerConfig, error) {
	fail := func(format string, args ...interface{}) (optimization.OptimizerConfig, error) {
		return config, errors.Errorf(errors.KindConfiguration, format, args...).
			WithComponent(component).WithOperation("NewOptimizer")
	}

	if config.Objective == nil {
		return fail("objective function is required")
	}
	dim := config.Dim()
	if dim == 0 {
		return fail("problem has no dimensions")
	}
	if len(config.Bounds) > 0 && len(config.Bounds) != dim {
		return fail("got %d bounds for %d dimensions", len(config.Bounds), dim)
	}
	for i, b := range config.Bounds {
		if b[0] > b[1] || math.IsNaN(b[0]) || math.IsNaN(b[1]) {
			return fail("invalid bounds [%g, %g] at index %d", b[0], b[1], i)
		}
	}
	if config.StepSize < 0 || config.Temperature < 0 {
		return fail("step size and temperature must not be negative")
	}

	if config.MaxIterations < 1 {
		config.MaxIterations = defaultHops
	}
	if config.StepSize == 0 {
		config.StepSize = defaultStepSize
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	return config, nil
}

// Optimize runs MaxIterations hops. A non-nil config with an objective
// replaces the configuration given at construction. When ctx is cancelled
// between hops the best result so far is returned together with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		cfg, err := withDefaults(config)
		if err != nil {
			return nil, err
		}
		o.config = cfg
	}
	cfg := o.config
	dim := cfg.Dim()

	o.mu.Lock()
	ctx, o.cancel = context.WithCancel(ctx)
	o.bestSolution = nil
	o.history = make([]optimization.Evaluation, 0, cfg.MaxIterations+1)
	o.mu.Unlock()
	defer o.Stop()

	ts := newTransforms(cfg.Bounds, dim)
	local := &localMinimizer{
		method:     cfg.LocalMethod,
		transforms: ts,
		objective:  o.finiteObjective(cfg.Objective),
		maxIter:    defaultLocalIter,
		logger:     o.logger,
	}

	x, f, evals := local.minimize(o.initialPoint(ts))
	o.record(0, x, f, true)
	o.logger.Debug("initial local minimum",
		zap.Float64("value", f),
		zap.Int("evaluations", evals))

	step := cfg.StepSize
	accepted := 0
	trial := make([]float64, dim)
	hops := 0
	for i := 1; i <= cfg.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			o.logger.Debug("search cancelled", zap.Int("hops", hops))
			return o.result(hops), ctx.Err()
		default:
		}

		for j := range trial {
			trial[j] = x[j] + step*(2*o.rng.Float64()-1)
		}
		xt, ft, n := local.minimize(ts.clip(trial, trial))
		evals += n
		hops++

		accept := o.accept(f, ft, cfg.Temperature)
		if accept {
			x, f = xt, ft
			accepted++
		}
		o.record(i, xt, ft, accept)

		if i%adaptInterval == 0 {
			rate := float64(accepted) / adaptInterval
			if rate > targetAcceptRate {
				step /= stepFactor
			} else {
				step *= stepFactor
			}
			accepted = 0
			o.logger.Debug("adapted step size",
				zap.Int("hop", i),
				zap.Float64("accept_rate", rate),
				zap.Float64("step", step))
		}
	}

	res := o.result(hops)
	o.logger.Debug("search finished",
		zap.Int("hops", hops),
		zap.Int("evaluations", evals),
		zap.Float64("best", res.BestSolution.Value))
	return res, nil
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestSolution
}

// GetHistory returns the history of evaluations
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]optimization.Evaluation(nil), o.history...)
}

// Stop stops the optimization process
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// accept applies the Metropolis criterion at temperature t.
func (o *Optimizer) accept(current, trial, t float64) bool {
	if trial <= current {
		return true
	}
	if math.IsInf(trial, 1) {
		return false
	}
	return o.rng.Float64() < math.Exp(-(trial-current)/t)
}

// finiteObjective maps objective errors and NaN to +Inf so that local
// methods see an ordinary, if huge, value.
func (o *Optimizer) finiteObjective(objective optimization.ObjectiveFunction) func([]float64) float64 {
	return func(x []float64) float64 {
		v, err := objective(x)
		if err != nil || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
}

// initialPoint returns the configured start, or one drawn inside the bounds.
func (o *Optimizer) initialPoint(ts transforms) []float64 {
	x := make([]float64, len(ts))
	if len(o.config.InitialPoint) > 0 {
		return ts.clip(x, o.config.InitialPoint)
	}
	for i, t := range ts {
		switch t.kind {
		case twoSided:
			x[i] = t.lo + o.rng.Float64()*(t.hi-t.lo)
		case lowerOnly:
			x[i] = t.lo + o.rng.Float64()
		case upperOnly:
			x[i] = t.hi - o.rng.Float64()
		default:
			x[i] = 2*o.rng.Float64() - 1
		}
	}
	return x
}

func (o *Optimizer) record(iteration int, x []float64, f float64, accepted bool) {
	params := append([]float64(nil), x...)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, optimization.Evaluation{
		Iteration: iteration,
		Solution:  &optimization.Solution{Parameters: params, Value: f},
		Accepted:  accepted,
	})
	if o.bestSolution == nil || f < o.bestSolution.Value {
		o.bestSolution = &optimization.Solution{Parameters: params, Value: f}
	}
}

func (o *Optimizer) result(hops int) *optimization.OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &optimization.OptimizationResult{
		BestSolution: o.bestSolution,
		History:      append([]optimization.Evaluation(nil), o.history...),
		Iterations:   hops,
		Converged:    o.bestSolution != nil && !math.IsInf(o.bestSolution.Value, 1),
	}
}
