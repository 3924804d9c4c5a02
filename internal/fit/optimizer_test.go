package fit

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optics"
	"github.com/copyleftdev/optix/internal/optimization"
)

func testBeam(t *testing.T) optics.GaussianBeam {
	t.Helper()
	in, err := optics.NewGaussianBeam(1e-6, optics.WaistRadius(1e-3))
	require.NoError(t, err)
	return in
}

// referenceTarget is the waist produced by FreeSpace(0.5), ThinLens(0.2),
// FreeSpace(0.1).
func referenceTarget(t *testing.T, in optics.GaussianBeam) (float64, float64) {
	t.Helper()
	out := optics.NewPath(optics.FreeSpace(0.5, 1), optics.ThinLens(0.2), optics.FreeSpace(0.1, 1)).Propagate(in)
	return out.WaistRadius(), out.WaistLocation()
}

func TestAppendValidatesEntries(t *testing.T) {
	abcd, err := optics.New(1, 2, 3, 4)
	require.NoError(t, err)

	valid := []any{
		optics.FreeSpace(1, 1),
		abcd,
		ThinLens(),
		optics.NewPath(optics.ThinLens(1)),
		NewSlot("Spacer", []string{"d"}, func(p []float64) (optics.Element, error) {
			return optics.FreeSpace(p[0], 1), nil
		}),
	}
	for _, e := range valid {
		o, err := New()
		require.NoError(t, err)
		assert.NoError(t, o.Append(e), "%T", e)
	}

	invalid := []struct {
		name  string
		entry any
	}{
		{"integer", 123},
		{"float", 1.5},
		{"string", "ThinLens"},
		{"nil", nil},
		{"nil path", (*optics.Path)(nil)},
		{"nil slot", (*Slot)(nil)},
		{"slot without builder", &Slot{Name: "broken"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(ThinLens())
			require.NoError(t, err)
			err = o.Append(tt.entry)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidElementType), "got %v", err)
			assert.Equal(t, 1, o.Len())
		})
	}
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	_, err := New(ThinLens(), 123)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidElementType))

	_, err = New(optics.ThinLens(1), 123)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidElementType))
}

func TestParameterCountAndLayout(t *testing.T) {
	o, err := New(
		optics.FreeSpace(0.1, 1),
		ThinLens(),
		FreeSpace(),
		optics.FlatInterface(1, 1.5),
		PlanoConvexLens(),
	)
	require.NoError(t, err)

	assert.Equal(t, 5, o.ParameterCount())
	assert.Equal(t, []Range{
		{Position: 1, Slot: "ThinLens", Params: []string{"f"}, Start: 0, End: 1},
		{Position: 2, Slot: "FreeSpace", Params: []string{"d"}, Start: 1, End: 2},
		{Position: 4, Slot: "PlanoConvexLens", Params: []string{"R", "d", "n"}, Start: 2, End: 5},
	}, o.Layout())
}

func TestConcretize(t *testing.T) {
	o, err := New(FreeSpace(), optics.ThinLens(0.2), PlanoConvexLens())
	require.NoError(t, err)

	p, err := o.Concretize([]float64{0.5, 2.1e-3, 1e-3, 1.7})
	require.NoError(t, err)

	want := optics.NewPath(optics.FreeSpace(0.5, 1), optics.ThinLens(0.2), optics.PlanoConvexLens(2.1e-3, 1e-3, 1.7))
	assert.True(t, mat.EqualApprox(want.Matrix(), p.Matrix(), 1e-12))
	assert.Equal(t, want.Name(), p.Name())
	assert.InDelta(t, 0.501, p.Length(), 1e-12)

	_, err = o.Concretize([]float64{0.5})
	assert.True(t, stderrors.Is(err, errors.ErrParameterCountMismatch))
}

func TestRunNoFreeParameters(t *testing.T) {
	o, err := New(
		optics.FreeSpace(10e-2, 1),
		optics.FreeSpace(1, 1),
		optics.FlatInterface(1, 1.5),
		optics.FreeSpace(2e-2, 1),
		optics.FlatInterface(1.5, 1),
		optics.ThinLens(1),
	)
	require.NoError(t, err)

	in, err := optics.NewGaussianBeam(405e-9, optics.WaistLocation(-200), optics.Divergence(2e-3))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), in, 1, 1, nil)
	assert.True(t, stderrors.Is(err, errors.ErrNoFreeParameters), "got %v", err)

	empty, err := New()
	require.NoError(t, err)
	_, err = empty.Run(context.Background(), in, 1, 1, []float64{1})
	assert.True(t, stderrors.Is(err, errors.ErrNoFreeParameters), "checked before x0 length")
}

func TestRunArgumentValidation(t *testing.T) {
	in := testBeam(t)
	o, err := New(FreeSpace(), ThinLens())
	require.NoError(t, err)

	tests := []struct {
		name    string
		x0      []float64
		opts    []RunOption
		wantErr error
	}{
		{"x0 too short", []float64{1}, nil, errors.ErrParameterCountMismatch},
		{"x0 too long", []float64{1, 1, 1}, nil, errors.ErrParameterCountMismatch},
		{"bounds length", []float64{1, 1}, []RunOption{WithBounds([][2]float64{{0, 1}})}, errors.ErrParameterCountMismatch},
		{"unknown strategy", []float64{1, 1}, []RunOption{WithStrategy("annealing")}, errors.ErrConfiguration},
		{"negative temperature", []float64{1, 1}, []RunOption{WithTemperature(-1)}, errors.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := o.Run(context.Background(), in, 1e-4, 0.5, tt.x0, tt.opts...)
			assert.Nil(t, params)
			assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRunRecoversFocalLength(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	params, err := o.Run(context.Background(), in, targetW, targetZ, []float64{1},
		WithHops(20), WithSeed(42), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.InDelta(t, 0.2, params[0], 1e-3)

	out, err := o.Evaluate(in, params)
	require.NoError(t, err)
	assert.InDelta(t, targetW, out.WaistRadius(), 1e-7)
	assert.InDelta(t, targetZ, out.WaistLocation(), 1e-4)
}

func TestRunRecoversDistanceAndFocalLength(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(FreeSpace(), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	res, err := o.Fit(context.Background(), in, targetW, targetZ, []float64{1, 1},
		WithHops(30), WithSeed(7))
	require.NoError(t, err)
	require.Len(t, res.Params, 2)

	assert.Less(t, res.Distance, 1e-11)
	assert.InDelta(t, targetW, res.Output.WaistRadius(), 1e-6)
	assert.InDelta(t, targetZ, res.Output.WaistLocation(), 1e-4)
	assert.Equal(t, 30, res.Hops)
	assert.Len(t, res.History, 31)
}

func TestRunWithNelderMead(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	params, err := o.Run(context.Background(), in, targetW, targetZ, []float64{1},
		WithHops(10), WithSeed(3), WithLocalMethod(optimization.MethodNelderMead))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, params[0], 1e-3)
}

func TestRunRespectsBounds(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	params, err := o.Run(context.Background(), in, targetW, targetZ, []float64{0.6},
		WithBounds([][2]float64{{0.3, 1}}), WithHops(10), WithSeed(5))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, params[0], 0.3)
	assert.LessOrEqual(t, params[0], 1.0)
	assert.InDelta(t, 0.3, params[0], 1e-3)
}

func TestRunChains(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	res, err := o.Fit(context.Background(), in, targetW, targetZ, []float64{1},
		WithHops(10), WithSeed(11), WithChains(3))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Chain, 0)
	assert.Less(t, res.Chain, 3)
	assert.InDelta(t, 0.2, res.Params[0], 1e-3)
}

func TestRunMayflyStrategy(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	params, err := o.Run(context.Background(), in, targetW, targetZ, []float64{1},
		WithStrategy(StrategyMayfly), WithBounds([][2]float64{{1e-3, 2}}), WithHops(20), WithSeed(9))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, params[0], 1e-3)
}

func TestRunBayesianStrategy(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	res, err := o.Fit(context.Background(), in, targetW, targetZ, []float64{1},
		WithStrategy(StrategyBayesian), WithBounds([][2]float64{{1e-3, 2}}), WithHops(20), WithSeed(11))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res.Params[0], 1e-3)
	assert.Less(t, res.Distance, 1e-9)
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"", "basinhopping", "Mayfly", " bayesian "} {
		_, err := ParseStrategy(name)
		assert.NoError(t, err, name)
	}
	s, _ := ParseStrategy("")
	assert.Equal(t, StrategyBasinHopping, s)
}

func TestRunCancelled(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	for _, strategy := range []Strategy{StrategyBasinHopping, StrategyMayfly, StrategyBayesian} {
		t.Run(string(strategy), func(t *testing.T) {
			o, err := New(optics.FreeSpace(0.5, 1), ThinLens(), optics.FreeSpace(0.1, 1))
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			params, err := o.Run(ctx, in, targetW, targetZ, []float64{1}, WithSeed(1), WithStrategy(strategy))
			assert.ErrorIs(t, err, context.Canceled)
			require.Len(t, params, 1, "the refined starting point is still reported")

			res, err := o.Fit(ctx, in, targetW, targetZ, []float64{1}, WithSeed(1), WithStrategy(strategy))
			assert.ErrorIs(t, err, context.Canceled)
			require.NotNil(t, res)
			start, err := o.Evaluate(in, []float64{1})
			require.NoError(t, err)
			assert.LessOrEqual(t, res.Distance,
				Distance(start.WaistRadius(), start.WaistLocation(), targetW, targetZ))
		})
	}
}

func TestOptimizerInstancesAreIndependent(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	require.NoError(t, a.Append(ThinLens()))
	assert.Equal(t, 1, a.ParameterCount())
	assert.Equal(t, 0, b.ParameterCount())
	assert.Equal(t, 0, b.Len())
}

func TestFixedPathIsUsedAsAWhole(t *testing.T) {
	in := testBeam(t)
	targetW, targetZ := referenceTarget(t, in)

	head := optics.NewPath(optics.FreeSpace(0.25, 1))
	head.Append(optics.FreeSpace(0.25, 1))
	o, err := New(head, ThinLens(), optics.FreeSpace(0.1, 1))
	require.NoError(t, err)

	params, err := o.Run(context.Background(), in, targetW, targetZ, []float64{1}, WithHops(10), WithSeed(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, params[0], 1e-3)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0.0, Distance(1e-3, 0.5, 1e-3, 0.5))
	assert.InDelta(t, 1000.0*1000.0*1e-6/1001, Distance(2e-3, 0, 1e-3, 0), 1e-15)
	assert.InDelta(t, 4.0/1001, Distance(0, 2, 0, 0), 1e-15)
	assert.True(t, math.IsInf(Distance(math.NaN(), 0, 0, 0), 1))
	assert.True(t, math.IsInf(Distance(math.Inf(1), 0, 0, 0), 1))
}
