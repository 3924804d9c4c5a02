// Package bayesian implements a surrogate-model global search: a Gaussian
// process is conditioned on every evaluation and the next point is the
// maximizer of the expected improvement.
package bayesian

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optimization"
)

const (
	component = "bayesian"

	defaultIterations    = 30
	defaultInitialPoints = 10
	defaultLengthScale   = 0.25
	defaultNoise         = 1e-6
	defaultXi            = 0.01

	// Random candidates scored per acquisition step before the polish.
	candidates = 256
	// Fraction of candidates drawn around the incumbent.
	localFraction = 4
	localSpread   = 0.05
)

// Optimizer implements optimization.Optimizer with Bayesian optimization.
// The process works in the unit cube of the problem's search box.
type Optimizer struct {
	config        optimization.OptimizerConfig
	initialPoints int
	kernel        Kernel
	logger        *zap.Logger
	rng           *rand.Rand

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

// WithInitialPoints sets the number of Latin hypercube samples drawn before
// the surrogate takes over. Defaults to 10.
func WithInitialPoints(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.initialPoints = n
		}
	}
}

// WithKernel replaces the default Matérn 5/2 kernel. Length scales are in
// unit-cube coordinates.
func WithKernel(k Kernel) Option {
	return func(o *Optimizer) {
		if k != nil {
			o.kernel = k
		}
	}
}

// NewOptimizer validates config and returns an optimizer.
func NewOptimizer(config optimization.OptimizerConfig, opts ...Option) (*Optimizer, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	kernel, err := NewMatern52Kernel(defaultLengthScale, 1)
	if err != nil {
		return nil, err
	}
	o := &Optimizer{
		config:        config,
		initialPoints: defaultInitialPoints,
		kernel:        kernel,
		logger:        zap.NewNop(),
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
	var msg string
	switch {
	case config.Objective == nil:
		msg = "objective function is required"
	case config.Dim() == 0:
		msg = "problem has no dimensions"
	case len(config.Bounds) > 0 && len(config.Bounds) != config.Dim():
		msg = "bounds do not match the problem dimension"
	default:
		for _, b := range config.Bounds {
			if b[0] > b[1] || math.IsNaN(b[0]) || math.IsNaN(b[1]) {
				msg = "bounds must be ordered pairs"
			}
		}
	}
	if msg != "" {
		return config, errors.New(errors.KindConfiguration, msg).
			WithComponent(component).WithOperation("NewOptimizer")
	}

	if config.MaxIterations < 1 {
		config.MaxIterations = defaultIterations
	}
	return config, nil
}

// Optimize evaluates the initial point, a Latin hypercube design and then
// MaxIterations acquisition steps. When ctx is cancelled the best result so
// far is returned together with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		cfg, err := withDefaults(config)
		if err != nil {
			return nil, err
		}
		o.config = cfg
	}
	cfg := o.config
	box := optimization.SearchBox(cfg)
	dim := box.Dim()

	o.mu.Lock()
	ctx, o.cancel = context.WithCancel(ctx)
	o.bestSolution = nil
	o.history = make([]optimization.Evaluation, 0, cfg.MaxIterations+o.initialPoints+1)
	o.mu.Unlock()
	defer o.Stop()

	var us [][]float64
	var values []float64
	observeAt := func(u, x []float64) {
		v, err := cfg.Objective(x)
		if err != nil || math.IsNaN(v) {
			v = math.Inf(1)
		}
		us = append(us, u)
		values = append(values, v)
		o.record(len(values)-1, x, v)
	}
	observe := func(u []float64) { observeAt(u, box.Scale(u)) }

	if len(cfg.InitialPoint) > 0 {
		x0 := box.Clip(cfg.InitialPoint)
		observeAt(box.Unit(x0), x0)
	}
	for _, u := range latinHypercube(o.rng, o.initialPoints, dim) {
		if ctx.Err() != nil {
			return o.result(0), ctx.Err()
		}
		observe(u)
	}

	gp := NewGP(o.kernel, defaultNoise)
	ei := NewExpectedImprovement(0, defaultXi)
	steps := 0
	for ; steps < cfg.MaxIterations; steps++ {
		if ctx.Err() != nil {
			break
		}

		targets := surrogateTargets(values)
		if err := gp.Fit(us, targets); err != nil {
			o.logger.Warn("surrogate fit failed, sampling at random", zap.Error(err))
			observe(uniform(o.rng, dim))
			continue
		}
		best := floats.MinIdx(targets)
		ei.UpdateBest(targets[best])
		observe(o.maximizeAcquisition(gp, ei, us[best]))
	}

	res := o.result(steps)
	o.logger.Debug("surrogate search finished",
		zap.Int("evaluations", len(values)),
		zap.Float64("best", res.BestSolution.Value))
	return res, ctx.Err()
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestSolution
}

// GetHistory returns a copy of every evaluation in order.
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

// maximizeAcquisition scores random candidates, a quarter of them around
// the incumbent, and polishes the winner with Nelder-Mead.
func (o *Optimizer) maximizeAcquisition(gp *GP, ei *ExpectedImprovement, incumbent []float64) []float64 {
	dim := len(incumbent)
	score := func(u []float64) float64 {
		mu, sigma := gp.Predict(u)
		return ei.Compute(mu, sigma)
	}

	bestU := uniform(o.rng, dim)
	bestScore := score(bestU)
	for c := 1; c < candidates; c++ {
		var u []float64
		if c%localFraction == 0 {
			u = make([]float64, dim)
			for j := range u {
				u[j] = clampUnit(incumbent[j] + localSpread*o.rng.NormFloat64())
			}
		} else {
			u = uniform(o.rng, dim)
		}
		if s := score(u); s > bestScore {
			bestU, bestScore = u, s
		}
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			clamped := make([]float64, len(u))
			for i, v := range u {
				clamped[i] = clampUnit(v)
			}
			return -score(clamped)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 200,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-9,
			Iterations: 20,
		},
	}
	res, _ := optimize.Minimize(problem, bestU, settings, &optimize.NelderMead{SimplexSize: localSpread})
	if res != nil && -res.F > bestScore {
		polished := make([]float64, dim)
		for i, v := range res.X {
			polished[i] = clampUnit(v)
		}
		return polished
	}
	return bestU
}

func (o *Optimizer) record(iteration int, x []float64, v float64) {
	params := append([]float64(nil), x...)

	o.mu.Lock()
	defer o.mu.Unlock()
	sol := &optimization.Solution{Parameters: params, Value: v}
	o.history = append(o.history, optimization.Evaluation{
		Iteration: iteration,
		Solution:  sol,
		Accepted:  true,
	})
	if o.bestSolution == nil || v < o.bestSolution.Value {
		o.bestSolution = sol
	}
}

func (o *Optimizer) result(steps int) *optimization.OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &optimization.OptimizationResult{
		BestSolution: o.bestSolution,
		History:      append([]optimization.Evaluation(nil), o.history...),
		Iterations:   steps,
		Converged:    o.bestSolution != nil && !math.IsInf(o.bestSolution.Value, 0),
	}
}

// surrogateTargets maps observations to log1p(v - min v). Infinite values
// take the largest finite one.
func surrogateTargets(values []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !math.IsInf(v, 0) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	out := make([]float64, len(values))
	if math.IsInf(lo, 1) {
		return out
	}
	for i, v := range values {
		if math.IsInf(v, 0) {
			v = hi
		}
		out[i] = math.Log1p(v - lo)
	}
	return out
}

// latinHypercube draws n stratified points in the unit cube.
func latinHypercube(rng *rand.Rand, n, dim int) [][]float64 {
	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, dim)
	}
	for i := 0; i < dim; i++ {
		strata := rng.Perm(n)
		for j := 0; j < n; j++ {
			samples[j][i] = (float64(strata[j]) + rng.Float64()) / float64(n)
		}
	}
	return samples
}

func uniform(rng *rand.Rand, dim int) []float64 {
	u := make([]float64, dim)
	for i := range u {
		u[i] = rng.Float64()
	}
	return u
}

func clampUnit(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
