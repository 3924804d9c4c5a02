package optimization

import "math"

// Box is a finite per-dimension search region. Population and surrogate
// strategies sample the unit cube and scale positions into a Box.
type Box struct {
	Lo, Hi []float64
}

// SearchBox closes the infinite sides of config.Bounds with a window around
// the initial point (or the finite side) that is at least one unit wide.
func SearchBox(config OptimizerConfig) Box {
	dim := config.Dim()
	b := Box{Lo: make([]float64, dim), Hi: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		lo, hi := math.Inf(-1), math.Inf(1)
		if i < len(config.Bounds) {
			lo, hi = config.Bounds[i][0], config.Bounds[i][1]
		}

		center := 0.0
		switch {
		case i < len(config.InitialPoint):
			center = config.InitialPoint[i]
		case !math.IsInf(lo, 0):
			center = lo + 1
		case !math.IsInf(hi, 0):
			center = hi - 1
		}
		half := math.Max(2*math.Abs(center), 1)

		if math.IsInf(lo, -1) {
			lo = math.Min(center, hi) - half
		}
		if math.IsInf(hi, 1) {
			hi = math.Max(center, lo) + half
		}
		b.Lo[i], b.Hi[i] = lo, hi
	}
	return b
}

// Dim returns the number of dimensions.
func (b Box) Dim() int { return len(b.Lo) }

// Scale maps unit-cube coordinates into the box. Coordinates outside [0, 1]
// are clamped.
func (b Box) Scale(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		v = math.Min(math.Max(v, 0), 1)
		x[i] = b.Lo[i] + v*(b.Hi[i]-b.Lo[i])
	}
	return x
}

// Unit maps a point of the box into the unit cube. Degenerate sides map
// to 0.
func (b Box) Unit(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		if w := b.Hi[i] - b.Lo[i]; w > 0 {
			u[i] = math.Min(math.Max((v-b.Lo[i])/w, 0), 1)
		}
	}
	return u
}

// Clip returns a copy of x clamped into the box.
func (b Box) Clip(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, b.Lo[i]), b.Hi[i])
	}
	return out
}
