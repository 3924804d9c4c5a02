package optics

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Path is an ordered composite of elements. Elements are applied in the order
// they were appended, so the combined matrix is M_n * ... * M_2 * M_1.
// Paths may be nested.
type Path struct {
	elements []Element

	revision uint64
	cached   *ABCD
	cachedAt uint64
}

// NewPath returns a path holding the given elements.
func NewPath(elements ...Element) *Path {
	p := &Path{elements: make([]Element, 0, len(elements))}
	p.elements = append(p.elements, elements...)
	return p
}

// Append adds e to the end of the path.
func (p *Path) Append(e Element) {
	p.elements = append(p.elements, e)
	p.revision++
}

// Len returns the number of immediate children.
func (p *Path) Len() int { return len(p.elements) }

// Elements returns a copy of the immediate children.
func (p *Path) Elements() []Element {
	out := make([]Element, len(p.elements))
	copy(out, p.elements)
	return out
}

// Length returns the summed length of all children, recursing into nested
// paths.
func (p *Path) Length() float64 {
	total := 0.0
	for _, e := range p.elements {
		total += e.Length()
	}
	return total
}

// System returns the combined transfer element of the path. It is recomputed
// only after the path or one of its nested paths has changed.
func (p *Path) System() ABCD {
	stamp := p.stamp()
	if p.cached == nil || p.cachedAt != stamp {
		system := compose(p.elements...)
		system.length = p.Length()
		system.name = p.Name()
		p.cached = &system
		p.cachedAt = stamp
	}
	return *p.cached
}

// Matrix returns the combined ABCD matrix.
func (p *Path) Matrix() *mat.Dense {
	return p.System().Matrix()
}

// Act applies the combined system to q.
func (p *Path) Act(q complex128) complex128 {
	return p.System().Act(q)
}

// Name describes the path by its children.
func (p *Path) Name() string {
	names := make([]string, len(p.elements))
	for i, e := range p.elements {
		names[i] = e.Name()
	}
	return "OpticalPath(" + strings.Join(names, ", ") + ")"
}

// Propagate sends in through the path and returns the beam as seen at the
// path's exit plane, located at z = Length().
func (p *Path) Propagate(in GaussianBeam) GaussianBeam {
	qOut := p.Act(in.Q(0))
	return FromQ(in.Wavelength(), qOut, p.Length(), in.RefractiveIndex(), in.Amplitude())
}

// stamp changes whenever p or any nested path is appended to.
func (p *Path) stamp() uint64 {
	s := p.revision + uint64(len(p.elements))
	for _, e := range p.elements {
		if child, ok := e.(*Path); ok {
			s += child.stamp() + 1
		}
	}
	return s
}
