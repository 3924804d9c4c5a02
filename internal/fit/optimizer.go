// Package fit searches the free constructor parameters of an optical
// template so that a given input beam is mapped onto a target waist.
//
// A template is an ordered list of fixed elements and parametric slots.
// Parameter vectors are laid out in template order: every slot consumes as
// many consecutive values as it has free parameters.
package fit

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optics"
	"github.com/copyleftdev/optix/internal/optimization"
	"github.com/copyleftdev/optix/internal/optimization/basinhopping"
	"github.com/copyleftdev/optix/internal/optimization/bayesian"
	"github.com/copyleftdev/optix/internal/optimization/mayfly"
)

const (
	component = "fit"

	// surrogateBudget caps the acquisition steps of the bayesian strategy;
	// every step refits the process on all evaluations so far.
	surrogateBudget = 50
)

var inf = math.Inf(1)

type entry struct {
	element optics.Element
	slot    *Slot
}

// Optimizer holds a template of fixed elements and slots. Each Optimizer
// owns its template; instances never share state.
type Optimizer struct {
	entries []entry
}

// Range locates the parameters of one slot inside a parameter vector.
type Range struct {
	// Position is the index of the slot in the template.
	Position int
	Slot     string
	Params   []string
	Start    int
	End      int
}

// Result describes the outcome of a fit.
type Result struct {
	Params   []float64
	Distance float64
	Output   optics.GaussianBeam
	Hops     int
	Chain    int
	History  []optimization.Evaluation
}

// New returns an optimizer whose template holds entries. Every entry must
// be an optics.Element or a *Slot.
func New(entries ...any) (*Optimizer, error) {
	o := &Optimizer{entries: make([]entry, 0, len(entries))}
	for _, e := range entries {
		if err := o.Append(e); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Append adds a fixed element or a slot to the end of the template.
func (o *Optimizer) Append(e any) error {
	switch v := e.(type) {
	case *Slot:
		if v != nil && v.build != nil {
			o.entries = append(o.entries, entry{slot: v})
			return nil
		}
	case *optics.Path:
		if v != nil {
			o.entries = append(o.entries, entry{element: v})
			return nil
		}
	case optics.Element:
		if v != nil {
			o.entries = append(o.entries, entry{element: v})
			return nil
		}
	}
	return errors.Errorf(errors.KindInvalidElementType,
		"template entries must be an optics.Element or a *fit.Slot, got %T", e).
		WithComponent(component).WithOperation("Append")
}

// Len returns the number of template entries.
func (o *Optimizer) Len() int { return len(o.entries) }

// ParameterCount returns the total number of free parameters.
func (o *Optimizer) ParameterCount() int {
	n := 0
	for _, e := range o.entries {
		if e.slot != nil {
			n += e.slot.Arity()
		}
	}
	return n
}

// Layout returns the parameter range of every slot in template order.
func (o *Optimizer) Layout() []Range {
	var ranges []Range
	start := 0
	for i, e := range o.entries {
		if e.slot == nil {
			continue
		}
		end := start + e.slot.Arity()
		ranges = append(ranges, Range{
			Position: i,
			Slot:     e.slot.Name,
			Params:   append([]string(nil), e.slot.Params...),
			Start:    start,
			End:      end,
		})
		start = end
	}
	return ranges
}

// Concretize builds the path described by the template and params.
func (o *Optimizer) Concretize(params []float64) (*optics.Path, error) {
	return concretize(o.entries, params, o.ParameterCount())
}

// Evaluate propagates in through the path concretized with params.
func (o *Optimizer) Evaluate(in optics.GaussianBeam, params []float64) (optics.GaussianBeam, error) {
	p, err := o.Concretize(params)
	if err != nil {
		return optics.GaussianBeam{}, err
	}
	return p.Propagate(in), nil
}

func concretize(entries []entry, params []float64, n int) (*optics.Path, error) {
	if len(params) != n {
		return nil, errors.Errorf(errors.KindParameterCountMismatch,
			"template has %d free parameters, got %d values", n, len(params)).
			WithComponent(component).WithOperation("Concretize")
	}

	p := optics.NewPath()
	i := 0
	for _, e := range entries {
		if e.slot == nil {
			p.Append(e.element)
			continue
		}
		k := e.slot.Arity()
		element, err := e.slot.Build(params[i : i+k])
		if err != nil {
			return nil, err
		}
		p.Append(element)
		i += k
	}
	return p, nil
}

// Distance scores an output waist against the target:
// ((W1 (w - w*))^2 + (W2 (z - z*))^2) / (W1 + W2).
// Non-finite scores are reported as +Inf.
func Distance(waistRadius, waistLocation, targetRadius, targetLocation float64) float64 {
	dw := WeightRadius * (waistRadius - targetRadius)
	dz := WeightLocation * (waistLocation - targetLocation)
	d := (dw*dw + dz*dz) / (WeightRadius + WeightLocation)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return inf
	}
	return d
}

// Run searches the free parameters starting from x0 and returns the best
// vector found, in template order. A search that does not reach the target
// is not an error; callers judge the returned parameters themselves.
func (o *Optimizer) Run(ctx context.Context, in optics.GaussianBeam, targetWaistRadius, targetWaistLocation float64, x0 []float64, opts ...RunOption) ([]float64, error) {
	res, err := o.Fit(ctx, in, targetWaistRadius, targetWaistLocation, x0, opts...)
	if res == nil {
		return nil, err
	}
	return res.Params, err
}

// Fit is Run with the full search result. When ctx is cancelled the best
// result so far is returned together with ctx.Err().
func (o *Optimizer) Fit(ctx context.Context, in optics.GaussianBeam, targetWaistRadius, targetWaistLocation float64, x0 []float64, opts ...RunOption) (*Result, error) {
	n := o.ParameterCount()
	if n == 0 {
		return nil, errors.New(errors.KindNoFreeParameters, "template has no free parameters").
			WithComponent(component).WithOperation("Run")
	}
	if len(x0) != n {
		return nil, errors.Errorf(errors.KindParameterCountMismatch,
			"x0 has %d values, template has %d free parameters", len(x0), n).
			WithComponent(component).WithOperation("Run")
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(n); err != nil {
		return nil, err
	}
	logger := cfg.logger.Named(component)

	entries := o.snapshot()
	objective := func(x []float64) (float64, error) {
		p, err := concretize(entries, x, n)
		if err != nil {
			return inf, err
		}
		out := p.Propagate(in)
		return Distance(out.WaistRadius(), out.WaistLocation(), targetWaistRadius, targetWaistLocation), nil
	}

	start := append([]float64(nil), x0...)
	var exploreErr error
	if cfg.strategy != StrategyBasinHopping {
		explored, err := o.explore(ctx, objective, start, cfg, logger)
		if explored == nil {
			return nil, err
		}
		start, exploreErr = explored, err
	}

	results := make([]*optimization.OptimizationResult, cfg.chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.chains; c++ {
		g.Go(func() error {
			seed := cfg.seed
			if seed != 0 {
				seed += int64(c)
			}
			bh, err := basinhopping.NewOptimizer(optimization.OptimizerConfig{
				Objective:     objective,
				Bounds:        cfg.bounds,
				InitialPoint:  start,
				MaxIterations: cfg.hops,
				RandomSeed:    seed,
				StepSize:      cfg.stepSize,
				Temperature:   cfg.temperature,
				LocalMethod:   cfg.localMethod,
			}, basinhopping.WithLogger(logger.With(zap.Int("chain", c))))
			if err != nil {
				return err
			}
			res, err := bh.Optimize(gctx, optimization.OptimizerConfig{})
			results[c] = res
			return err
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = exploreErr
	}

	best := -1
	for c, res := range results {
		if res == nil || res.BestSolution == nil {
			continue
		}
		if best < 0 || res.BestSolution.Value < results[best].BestSolution.Value {
			best = c
		}
	}
	if best < 0 {
		return nil, runErr
	}

	winner := results[best]
	params := append([]float64(nil), winner.BestSolution.Parameters...)
	out, err := o.Evaluate(in, params)
	if err != nil {
		return nil, err
	}
	logger.Info("fit finished",
		zap.Int("chain", best),
		zap.Int("hops", winner.Iterations),
		zap.Float64("distance", winner.BestSolution.Value),
		zap.Float64("waist_radius", out.WaistRadius()),
		zap.Float64("waist_location", out.WaistLocation()))

	if runErr != nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return &Result{
		Params:   params,
		Distance: winner.BestSolution.Value,
		Output:   out,
		Hops:     winner.Iterations,
		Chain:    best,
		History:  winner.History,
	}, runErr
}

// explore runs the exploration strategy over the bounds and returns its
// best position, which is never worse than x0. On cancellation the best
// position so far is returned together with the context error.
func (o *Optimizer) explore(ctx context.Context, objective optimization.ObjectiveFunction, x0 []float64, cfg runConfig, logger *zap.Logger) ([]float64, error) {
	config := optimization.OptimizerConfig{
		Objective:     objective,
		Bounds:        cfg.bounds,
		InitialPoint:  x0,
		MaxIterations: cfg.hops,
		RandomSeed:    cfg.seed,
	}

	var explorer optimization.Optimizer
	var err error
	switch cfg.strategy {
	case StrategyBayesian:
		config.MaxIterations = min(cfg.hops, surrogateBudget)
		explorer, err = bayesian.NewOptimizer(config, bayesian.WithLogger(logger))
	default:
		opts := []mayfly.Option{mayfly.WithLogger(logger)}
		if cfg.population > 0 {
			opts = append(opts, mayfly.WithPopulation(cfg.population))
		}
		explorer, err = mayfly.NewOptimizer(config, opts...)
	}
	if err != nil {
		return nil, err
	}

	res, err := explorer.Optimize(ctx, optimization.OptimizerConfig{})
	switch {
	case res != nil && res.BestSolution != nil:
	case ctx.Err() != nil:
		// cancelled before anything was evaluated
		return optimization.SearchBox(config).Clip(x0), err
	default:
		if err == nil {
			err = errors.New(errors.KindUnknown, "exploration returned no solution").
				WithComponent(component).WithOperation("explore")
		}
		return nil, err
	}
	logger.Debug("exploration finished",
		zap.String("strategy", string(cfg.strategy)),
		zap.Float64("distance", res.BestSolution.Value),
		zap.Error(err))
	return res.BestSolution.Parameters, err
}

// snapshot freezes nested paths into their combined element so that
// concurrent chains never touch a path's matrix cache.
func (o *Optimizer) snapshot() []entry {
	out := make([]entry, len(o.entries))
	for i, e := range o.entries {
		if p, ok := e.element.(*optics.Path); ok {
			e.element = p.System()
		}
		out[i] = e
	}
	return out
}
