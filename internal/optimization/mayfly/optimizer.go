// Package mayfly adapts the mayfly swarm algorithm to the
// optimization.Optimizer contract.
package mayfly

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	mf "github.com/cwbudde/mayfly"
	"go.uber.org/zap"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optimization"
)

const (
	component = "mayfly"

	defaultIterations = 100
	// The library rejects smaller populations.
	minPopulation = 20
)

// Optimizer runs a mayfly swarm over the unit cube and maps every position
// onto the per-dimension search box of the problem.
type Optimizer struct {
	config     optimization.OptimizerConfig
	population int
	logger     *zap.Logger

	mu           sync.Mutex
	bestSolution *optimization.Solution
	history      []optimization.Evaluation
	evaluations  int
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

// WithPopulation sets the swarm size. Values below 20 are raised to 20.
func WithPopulation(n int) Option {
	return func(o *Optimizer) { o.population = n }
}

// NewOptimizer returns a mayfly optimizer for config.
func NewOptimizer(config optimization.OptimizerConfig, opts ...Option) (*Optimizer, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	if config.MaxIterations < 1 {
		config.MaxIterations = defaultIterations
	}

	o := &Optimizer{
		config:     config,
		population: minPopulation,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.population < minPopulation {
		o.population = minPopulation
	}
	o.logger = o.logger.Named(component)
	return o, nil
}

func validate(config optimization.OptimizerConfig) error {
	var msg string
	switch {
	case config.Objective == nil:
		msg = "objective function is required"
	case config.Dim() == 0:
		msg = "problem has no dimensions"
	case len(config.Bounds) > 0 && len(config.Bounds) != config.Dim():
		msg = "bounds do not match the problem dimension"
	default:
		return nil
	}
	return errors.New(errors.KindConfiguration, msg).
		WithComponent(component).WithOperation("NewOptimizer")
}

// Optimize runs the swarm. The library has no cancellation hook, so once
// ctx is done every further evaluation short-circuits to +Inf and the best
// solution seen before cancellation is returned with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		if err := validate(config); err != nil {
			return nil, err
		}
		if config.MaxIterations < 1 {
			config.MaxIterations = defaultIterations
		}
		o.config = config
	}
	cfg := o.config
	dim := cfg.Dim()
	box := optimization.SearchBox(cfg)

	o.mu.Lock()
	ctx, o.cancel = context.WithCancel(ctx)
	o.bestSolution = nil
	o.history = nil
	o.evaluations = 0
	o.mu.Unlock()
	defer o.Stop()

	if len(cfg.InitialPoint) > 0 {
		o.observe(cfg.Objective, box.Clip(cfg.InitialPoint))
	}
	if ctx.Err() != nil {
		return o.result(0), ctx.Err()
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mfConfig := mf.NewDefaultConfig()
	mfConfig.ObjectiveFunc = func(u []float64) float64 {
		return o.evaluate(ctx, cfg.Objective, box.Scale(u))
	}
	mfConfig.ProblemSize = dim
	mfConfig.MaxIterations = cfg.MaxIterations
	mfConfig.NPop = o.population
	mfConfig.LowerBound = 0
	mfConfig.UpperBound = 1
	mfConfig.Rand = rand.New(rand.NewSource(seed))

	if _, err := mf.Optimize(mfConfig); err != nil {
		o.logger.Warn("mayfly run failed", zap.Error(err))
		if o.GetBestSolution() == nil {
			return nil, errors.Wrap(err, "mayfly run failed").
				WithComponent(component).WithOperation("Optimize")
		}
	}

	res := o.result(cfg.MaxIterations)
	o.logger.Debug("swarm finished",
		zap.Int("iterations", cfg.MaxIterations),
		zap.Int("population", o.population),
		zap.Int("evaluations", o.evaluations))
	return res, ctx.Err()
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestSolution
}

// GetHistory returns every improvement of the best solution.
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

func (o *Optimizer) evaluate(ctx context.Context, objective optimization.ObjectiveFunction, x []float64) float64 {
	if ctx.Err() != nil {
		return math.Inf(1)
	}
	return o.observe(objective, x)
}

// observe evaluates x and records it when it improves the best solution.
func (o *Optimizer) observe(objective optimization.ObjectiveFunction, x []float64) float64 {
	v, err := objective(x)
	if err != nil || math.IsNaN(v) {
		v = math.Inf(1)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluations++
	if o.bestSolution == nil || v < o.bestSolution.Value {
		sol := &optimization.Solution{Parameters: append([]float64(nil), x...), Value: v}
		o.bestSolution = sol
		o.history = append(o.history, optimization.Evaluation{
			Iteration: o.evaluations,
			Solution:  sol,
			Accepted:  true,
		})
	}
	return v
}

func (o *Optimizer) result(iterations int) *optimization.OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &optimization.OptimizationResult{
		BestSolution: o.bestSolution,
		History:      append([]optimization.Evaluation(nil), o.history...),
		Iterations:   iterations,
		Converged:    o.bestSolution != nil && !math.IsInf(o.bestSolution.Value, 1),
	}
}
