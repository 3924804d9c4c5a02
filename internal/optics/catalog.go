package optics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Radii of curvature are positive when the centre of curvature lies after the
// surface in the direction of propagation.

// FreeSpace is propagation over distance d in a medium of refractive index n.
func FreeSpace(d, n float64) ABCD {
	name := fmt.Sprintf("FreeSpace(d=%g)", d)
	if n != 1 {
		name = fmt.Sprintf("FreeSpace(d=%g, n=%g)", d, n)
	}
	return ABCD{a: 1, b: d / n, c: 0, d: 1, length: d, name: name}
}

// ThinLens is an ideal lens of focal length f with no axial extent.
func ThinLens(f float64) ABCD {
	return ABCD{a: 1, b: 0, c: -1 / f, d: 1, name: fmt.Sprintf("ThinLens(f=%g)", f)}
}

// FlatInterface is refraction at a plane boundary from index n1 into n2.
func FlatInterface(n1, n2 float64) ABCD {
	return ABCD{
		a: 1, b: 0, c: 0, d: n1 / n2,
		name: fmt.Sprintf("FlatInterface(n1=%g, n2=%g)", n1, n2),
	}
}

// CurvedInterface is refraction at a spherical boundary of radius r from
// index n1 into n2.
func CurvedInterface(n1, n2, r float64) ABCD {
	return ABCD{
		a: 1, b: 0, c: (n1 - n2) / (r * n2), d: n1 / n2,
		name: fmt.Sprintf("CurvedInterface(n1=%g, n2=%g, R=%g)", n1, n2, r),
	}
}

// ThickLens is a lens of index n in air with front radius r1, back radius r2
// and centre thickness d.
func ThickLens(r1, n, r2, d float64) ABCD {
	lens := compose(
		CurvedInterface(1, n, r1),
		slab(d),
		CurvedInterface(n, 1, r2),
	)
	lens.length = d
	lens.name = fmt.Sprintf("ThickLens(R1=%g, d=%g, R2=%g, n=%g)", r1, d, r2, n)
	return lens
}

// PlanoConvexLens is a lens of index n in air with a flat entry face and a
// convex exit face of radius r, of centre thickness d.
func PlanoConvexLens(r, d, n float64) ABCD {
	lens := compose(
		FlatInterface(1, n),
		slab(d),
		CurvedInterface(n, 1, -r),
	)
	lens.length = d
	lens.name = fmt.Sprintf("PlanoConvexLens(R=%g, d=%g, n=%g)", r, d, n)
	return lens
}

// PlanoConvexFocalLength is the effective focal length of PlanoConvexLens(r, d, n).
// It does not depend on the thickness.
func PlanoConvexFocalLength(r, n float64) float64 {
	return r / (n - 1)
}

// slab is translation inside a medium whose index is carried by the
// surrounding interfaces.
func slab(d float64) ABCD {
	return ABCD{a: 1, b: d, c: 0, d: 1, length: d, name: fmt.Sprintf("Slab(d=%g)", d)}
}

// compose folds elements given in propagation order into M_n * ... * M_1.
func compose(elements ...Element) ABCD {
	system := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	var step mat.Dense
	for _, e := range elements {
		step.Mul(e.Matrix(), system)
		system.Copy(&step)
	}
	return newABCD(system.At(0, 0), system.At(0, 1), system.At(1, 0), system.At(1, 1))
}
