package basinhopping

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optimization"
)

func TestNewOptimizerValidation(t *testing.T) {
	sphere := optimization.Sphere(0)
	tests := []struct {
		name   string
		config optimization.OptimizerConfig
	}{
		{
			name:   "no objective",
			config: optimization.OptimizerConfig{InitialPoint: []float64{1}},
		},
		{
			name:   "no dimensions",
			config: optimization.OptimizerConfig{Objective: sphere},
		},
		{
			name: "bounds length mismatch",
			config: optimization.OptimizerConfig{
				Objective:    sphere,
				InitialPoint: []float64{1, 2},
				Bounds:       [][2]float64{{0, 1}},
			},
		},
		{
			name: "inverted bounds",
			config: optimization.OptimizerConfig{
				Objective: sphere,
				Bounds:    [][2]float64{{1, 0}},
			},
		},
		{
			name: "negative temperature",
			config: optimization.OptimizerConfig{
				Objective:    sphere,
				InitialPoint: []float64{1},
				Temperature:  -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := NewOptimizer(tt.config)
			require.Error(t, err)
			assert.Nil(t, opt)
			assert.True(t, stderrors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestNewOptimizerDefaults(t *testing.T) {
	opt, err := NewOptimizer(optimization.OptimizerConfig{
		Objective:    optimization.Sphere(0),
		InitialPoint: []float64{1},
	})
	require.NoError(t, err)
	require.NotNil(t, opt.rng)

	assert.Equal(t, defaultHops, opt.config.MaxIterations)
	assert.Equal(t, defaultStepSize, opt.config.StepSize)
	assert.Equal(t, defaultTemperature, opt.config.Temperature)
	assert.Equal(t, optimization.MethodLBFGS, opt.config.LocalMethod)
}

func TestOptimizeSphere(t *testing.T) {
	for _, method := range []optimization.LocalMethod{optimization.MethodLBFGS, optimization.MethodNelderMead} {
		t.Run(method.String(), func(t *testing.T) {
			config := optimization.OptimizerConfig{
				Objective:     optimization.Sphere(1.5),
				InitialPoint:  []float64{0, 0, 0},
				Bounds:        [][2]float64{{-5, 5}, {-5, 5}, {-5, 5}},
				MaxIterations: 10,
				RandomSeed:    7,
				LocalMethod:   method,
			}
			opt, err := NewOptimizer(config, WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)

			res, err := opt.Optimize(context.Background(), config)
			require.NoError(t, err)
			require.NotNil(t, res.BestSolution)

			optimization.AssertFloat64SlicesEqual(t, res.BestSolution.Parameters, []float64{1.5, 1.5, 1.5}, 1e-3)
			assert.Less(t, res.BestSolution.Value, 1e-6)
			assert.True(t, res.Converged)
			assert.Equal(t, 10, res.Iterations)
		})
	}
}

func TestOptimizeRosenbrockUnbounded(t *testing.T) {
	config := optimization.OptimizerConfig{
		Objective:     optimization.Rosenbrock,
		InitialPoint:  []float64{-1.2, 1},
		MaxIterations: 5,
		RandomSeed:    3,
	}
	opt, err := NewOptimizer(config)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	optimization.AssertFloat64SlicesEqual(t, res.BestSolution.Parameters, []float64{1, 1}, 1e-3)
}

func TestOptimizeEscapesLocalMinimum(t *testing.T) {
	config := optimization.OptimizerConfig{
		Objective:     optimization.DoubleWell,
		InitialPoint:  []float64{2},
		Bounds:        [][2]float64{{-5, 5}},
		MaxIterations: 100,
		StepSize:      2.5,
		RandomSeed:    42,
	}
	opt, err := NewOptimizer(config)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), config)
	require.NoError(t, err)

	assert.InDelta(t, -2.1149, res.BestSolution.Parameters[0], 1e-3)
	assert.Less(t, res.BestSolution.Value, -2.0)

	// The first entry is the local minimum next to the start.
	history := opt.GetHistory()
	require.Len(t, history, 101)
	assert.InDelta(t, 1.8608, history[0].Solution.Parameters[0], 1e-3)
	assert.True(t, history[0].Accepted)
}

func TestOptimizeMinimumOnBound(t *testing.T) {
	bounds := [][2]float64{{1e-3, math.Inf(1)}, {1e-3, math.Inf(1)}}
	config := optimization.OptimizerConfig{
		Objective:     optimization.Sphere(-3),
		InitialPoint:  []float64{2, 4},
		Bounds:        bounds,
		MaxIterations: 20,
		RandomSeed:    11,
	}
	opt, err := NewOptimizer(config)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), config)
	require.NoError(t, err)

	optimization.AssertFloat64SlicesEqual(t, res.BestSolution.Parameters, []float64{1e-3, 1e-3}, 1e-4)
	for _, eval := range res.History {
		optimization.AssertWithinBounds(t, eval.Solution.Parameters, bounds)
	}
}

func TestOptimizeIsDeterministicForSeed(t *testing.T) {
	run := func() *optimization.Solution {
		config := optimization.OptimizerConfig{
			Objective:     optimization.Rastrigin,
			InitialPoint:  []float64{3.2, -2.7},
			Bounds:        [][2]float64{{-5.12, 5.12}, {-5.12, 5.12}},
			MaxIterations: 30,
			RandomSeed:    1234,
		}
		opt, err := NewOptimizer(config)
		require.NoError(t, err)
		res, err := opt.Optimize(context.Background(), config)
		require.NoError(t, err)
		return res.BestSolution
	}

	first, second := run(), run()
	assert.Equal(t, first.Parameters, second.Parameters)
	assert.Equal(t, first.Value, second.Value)
}

func TestOptimizeTreatsObjectiveErrorsAsInfinite(t *testing.T) {
	config := optimization.OptimizerConfig{
		Objective: func(x []float64) (float64, error) {
			if x[0] < 0 {
				return 0, stderrors.New("negative input")
			}
			return (x[0] - 1) * (x[0] - 1), nil
		},
		InitialPoint:  []float64{3},
		MaxIterations: 20,
		StepSize:      2,
		RandomSeed:    5,
	}
	opt, err := NewOptimizer(config)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), config)
	require.NoError(t, err)
	assert.InDelta(t, 1, res.BestSolution.Parameters[0], 1e-4)
	for _, eval := range res.History {
		assert.False(t, math.IsNaN(eval.Solution.Value))
	}
}

func TestOptimizeCancelledContext(t *testing.T) {
	config := optimization.OptimizerConfig{
		Objective:    optimization.Sphere(0),
		InitialPoint: []float64{1},
		RandomSeed:   1,
	}
	opt, err := NewOptimizer(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := opt.Optimize(ctx, config)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Iterations)
	require.NotNil(t, res.BestSolution, "the initial refinement is kept")
	assert.InDelta(t, 0, res.BestSolution.Parameters[0], 1e-4)
}

func TestStopDuringOptimize(t *testing.T) {
	var opt *Optimizer
	calls := 0
	config := optimization.OptimizerConfig{
		Objective: func(x []float64) (float64, error) {
			calls++
			if calls == 500 {
				opt.Stop()
			}
			return optimization.Sphere(0)(x)
		},
		InitialPoint:  []float64{1, 1},
		MaxIterations: 100000,
		RandomSeed:    1,
	}
	var err error
	opt, err = NewOptimizer(config)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), config)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, res.Iterations, 100000)
	assert.NotNil(t, opt.GetBestSolution())
}
