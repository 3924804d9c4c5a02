package basinhopping

import "math"

// boundKind selects the variable transform that maps an unconstrained
// internal coordinate onto a bounded external one.
type boundKind uint8

const (
	unbounded boundKind = iota
	lowerOnly
	upperOnly
	twoSided
)

// innerMargin keeps internal coordinates off the stationary points of the
// transforms, where the gradient with respect to u vanishes.
const innerMargin = 1e-3

type transform struct {
	kind   boundKind
	lo, hi float64
}

func newTransform(b [2]float64) transform {
	lo, hi := b[0], b[1]
	hasLo := !math.IsInf(lo, -1) && !math.IsNaN(lo)
	hasHi := !math.IsInf(hi, 1) && !math.IsNaN(hi)
	switch {
	case hasLo && hasHi:
		return transform{kind: twoSided, lo: lo, hi: hi}
	case hasLo:
		return transform{kind: lowerOnly, lo: lo}
	case hasHi:
		return transform{kind: upperOnly, hi: hi}
	default:
		return transform{kind: unbounded}
	}
}

// clip moves x into the feasible interval.
func (t transform) clip(x float64) float64 {
	switch t.kind {
	case twoSided:
		return math.Min(math.Max(x, t.lo), t.hi)
	case lowerOnly:
		return math.Max(x, t.lo)
	case upperOnly:
		return math.Min(x, t.hi)
	default:
		return x
	}
}

// external maps an internal coordinate into the bounded interval.
func (t transform) external(u float64) float64 {
	switch t.kind {
	case twoSided:
		return t.clip(t.lo + (t.hi-t.lo)*(math.Sin(u)+1)/2)
	case lowerOnly:
		return t.clip(t.lo - 1 + math.Sqrt(u*u+1))
	case upperOnly:
		return t.clip(t.hi + 1 - math.Sqrt(u*u+1))
	default:
		return u
	}
}

// internal is the inverse of external on the feasible interval.
func (t transform) internal(x float64) float64 {
	x = t.clip(x)
	switch t.kind {
	case twoSided:
		if t.hi == t.lo {
			return 0
		}
		s := 2*(x-t.lo)/(t.hi-t.lo) - 1
		u := math.Asin(math.Max(-1, math.Min(1, s)))
		limit := math.Pi/2 - innerMargin
		return math.Max(-limit, math.Min(limit, u))
	case lowerOnly:
		v := x - t.lo + 1
		return math.Max(innerMargin, math.Sqrt(v*v-1))
	case upperOnly:
		v := t.hi - x + 1
		return math.Max(innerMargin, math.Sqrt(v*v-1))
	default:
		return x
	}
}

type transforms []transform

func newTransforms(bounds [][2]float64, dim int) transforms {
	ts := make(transforms, dim)
	for i := range ts {
		if i < len(bounds) {
			ts[i] = newTransform(bounds[i])
		}
	}
	return ts
}

func (ts transforms) clip(dst, x []float64) []float64 {
	for i, t := range ts {
		dst[i] = t.clip(x[i])
	}
	return dst
}

func (ts transforms) external(dst, u []float64) []float64 {
	for i, t := range ts {
		dst[i] = t.external(u[i])
	}
	return dst
}

func (ts transforms) internal(dst, x []float64) []float64 {
	for i, t := range ts {
		dst[i] = t.internal(x[i])
	}
	return dst
}
