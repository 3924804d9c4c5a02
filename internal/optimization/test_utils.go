package optimization

import (
	"math"
	"testing"
)

// Sphere is sum((x_i - c)^2) with its minimum 0 at x_i = c.
func Sphere(center float64) ObjectiveFunction {
	return func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			sum += (v - center) * (v - center)
		}
		return sum, nil
	}
}

// Rosenbrock is the banana function with its minimum 0 at (1, ..., 1).
func Rosenbrock(x []float64) (float64, error) {
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		sum += a*a + 100*b*b
	}
	return sum, nil
}

// Rastrigin is highly multimodal with its global minimum 0 at the origin
// and local minima near every integer lattice point.
func Rastrigin(x []float64) (float64, error) {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum, nil
}

// DoubleWell has a local minimum near x = 1.86 and the global minimum near
// x = -2.11 (value about -2.06), separated by a barrier near x = 0.25.
func DoubleWell(x []float64) (float64, error) {
	v := x[0]
	return (v*v-4)*(v*v-4)/4 + v, nil
}

// AssertFloat64SlicesEqual checks that two slices agree elementwise within tol.
func AssertFloat64SlicesEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertWithinBounds checks that every coordinate of x lies inside bounds.
func AssertWithinBounds(t testing.TB, x []float64, bounds [][2]float64) {
	t.Helper()

	if len(x) != len(bounds) {
		t.Fatalf("length mismatch: got %d coordinates, %d bounds", len(x), len(bounds))
	}
	for i, v := range x {
		if v < bounds[i][0] || v > bounds[i][1] {
			t.Fatalf("at index %d: %v outside [%v, %v]", i, v, bounds[i][0], bounds[i][1])
		}
	}
}
