package basinhopping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransformKind(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name   string
		bounds [2]float64
		want   boundKind
	}{
		{"two sided", [2]float64{-1, 1}, twoSided},
		{"lower only", [2]float64{1e-3, inf}, lowerOnly},
		{"upper only", [2]float64{-inf, 2}, upperOnly},
		{"unbounded", [2]float64{-inf, inf}, unbounded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newTransform(tt.bounds).kind)
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name   string
		bounds [2]float64
		points []float64
	}{
		{"two sided", [2]float64{-2, 3}, []float64{-1.5, 0, 0.7, 2.9}},
		{"lower only", [2]float64{1e-3, inf}, []float64{0.01, 0.5, 1, 250}},
		{"upper only", [2]float64{-inf, 2}, []float64{-100, -1, 0, 1.9}},
		{"unbounded", [2]float64{-inf, inf}, []float64{-7, 0, 3.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTransform(tt.bounds)
			for _, x := range tt.points {
				assert.InDelta(t, x, tr.external(tr.internal(x)), 1e-9*(1+math.Abs(x)))
			}
		})
	}
}

func TestTransformExternalStaysInBounds(t *testing.T) {
	inf := math.Inf(1)
	for _, b := range [][2]float64{{-2, 3}, {1e-3, inf}, {-inf, 2}} {
		tr := newTransform(b)
		for u := -50.0; u <= 50; u += 0.37 {
			x := tr.external(u)
			assert.GreaterOrEqual(t, x, b[0])
			assert.LessOrEqual(t, x, b[1])
		}
	}
}

func TestTransformInternalAvoidsStationaryPoints(t *testing.T) {
	lower := newTransform([2]float64{1, math.Inf(1)})
	assert.Greater(t, lower.internal(1), 0.0)

	box := newTransform([2]float64{0, 1})
	assert.Less(t, math.Abs(box.internal(1)), math.Pi/2)
	assert.Less(t, math.Abs(box.internal(0)), math.Pi/2)
}

func TestTransformsClip(t *testing.T) {
	ts := newTransforms([][2]float64{{0, 1}, {2, math.Inf(1)}, {math.Inf(-1), -1}}, 3)
	got := ts.clip(make([]float64, 3), []float64{1.5, 0, 4})
	assert.Equal(t, []float64{1, 2, -1}, got)
}

func TestTransformsWithoutBoundsAreIdentity(t *testing.T) {
	ts := newTransforms(nil, 2)
	x := []float64{-3, 4}
	assert.Equal(t, x, ts.external(make([]float64, 2), ts.internal(make([]float64, 2), x)))
}
