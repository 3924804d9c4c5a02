// Package optics models paraxial Gaussian-beam propagation with ABCD transfer
// matrices.
//
// An Element is either a leaf ABCD value or a composite Path of elements.
// Beams are propagated through elements via the complex beam parameter
// q(z) = (z - z0) + i*zR, which every element maps with the Möbius transform
// (A q + B) / (C q + D).
package optics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/optix/internal/errors"
)

const component = "optics"

// Element is a paraxial optical element.
type Element interface {
	// Matrix returns the 2x2 ABCD matrix of the element.
	Matrix() *mat.Dense
	// Length returns the physical extent of the element along the axis.
	Length() float64
	// Name returns a human-readable description used for diagnostics.
	Name() string
	// Act maps an input complex beam parameter to the output one.
	Act(q complex128) complex128
}

// ABCD is an immutable transfer element with explicit coefficients.
type ABCD struct {
	a, b, c, d float64
	length     float64
	name       string
}

// New builds a transfer element from exactly four coefficients A, B, C, D.
func New(coeffs ...float64) (ABCD, error) {
	if len(coeffs) != 4 {
		return ABCD{}, errors.Errorf(errors.KindInvalidArity,
			"expected 4 coefficients or a 2x2 matrix, got %d values", len(coeffs)).
			WithComponent(component).WithOperation("New")
	}
	return newABCD(coeffs[0], coeffs[1], coeffs[2], coeffs[3]), nil
}

// FromMatrix builds a transfer element from a 2x2 matrix.
func FromMatrix(m mat.Matrix) (ABCD, error) {
	if m == nil {
		return ABCD{}, errors.New(errors.KindInvalidMatrixShape, "matrix is nil").
			WithComponent(component).WithOperation("FromMatrix")
	}
	r, c := m.Dims()
	if r != 2 || c != 2 {
		return ABCD{}, errors.Errorf(errors.KindInvalidMatrixShape, "expected 2x2 matrix, got %dx%d", r, c).
			WithComponent(component).WithOperation("FromMatrix")
	}
	return newABCD(m.At(0, 0), m.At(0, 1), m.At(1, 0), m.At(1, 1)), nil
}

// FromRows builds a transfer element from a row-major 2x2 array. Ragged rows
// are rejected.
func FromRows(rows [][]float64) (ABCD, error) {
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		shape := make([]int, len(rows))
		for i, row := range rows {
			shape[i] = len(row)
		}
		return ABCD{}, errors.Errorf(errors.KindInvalidMatrixShape, "expected 2x2 rows, got row lengths %v", shape).
			WithComponent(component).WithOperation("FromRows")
	}
	return newABCD(rows[0][0], rows[0][1], rows[1][0], rows[1][1]), nil
}

// Identity returns the identity transfer element.
func Identity() ABCD {
	return ABCD{a: 1, d: 1, name: "Identity"}
}

func newABCD(a, b, c, d float64) ABCD {
	return ABCD{
		a: a, b: b, c: c, d: d,
		name: fmt.Sprintf("ABCD(A=%g, B=%g, C=%g, D=%g)", a, b, c, d),
	}
}

// Matrix returns [[A, B], [C, D]] as a freshly allocated matrix.
func (e ABCD) Matrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{e.a, e.b, e.c, e.d})
}

// Coefficients returns A, B, C and D.
func (e ABCD) Coefficients() (a, b, c, d float64) {
	return e.a, e.b, e.c, e.d
}

// Det returns AD - BC.
func (e ABCD) Det() float64 {
	return e.a*e.d - e.b*e.c
}

// Length returns the physical extent of the element.
func (e ABCD) Length() float64 { return e.length }

// Name returns the diagnostic name of the element.
func (e ABCD) Name() string { return e.name }

// Act returns (A q + B) / (C q + D).
func (e ABCD) Act(q complex128) complex128 {
	num := complex(e.a, 0)*q + complex(e.b, 0)
	den := complex(e.c, 0)*q + complex(e.d, 0)
	return num / den
}

// WithLength returns a copy of e with the given physical length.
func (e ABCD) WithLength(length float64) ABCD {
	e.length = length
	return e
}

// WithName returns a copy of e with the given name.
func (e ABCD) WithName(name string) ABCD {
	e.name = name
	return e
}

// String implements fmt.Stringer.
func (e ABCD) String() string { return e.name }
