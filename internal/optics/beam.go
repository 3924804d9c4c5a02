package optics

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/copyleftdev/optix/internal/errors"
)

type shapeKind uint8

const (
	shapeWaistRadius shapeKind = iota + 1
	shapeRayleighRange
	shapeDivergence
)

func (k shapeKind) String() string {
	switch k {
	case shapeWaistRadius:
		return "waist radius"
	case shapeRayleighRange:
		return "rayleigh range"
	case shapeDivergence:
		return "divergence"
	default:
		return "unknown"
	}
}

// GaussianBeam is an immutable TEM00 beam description. It is parameterised by
// its wavelength and exactly one shape descriptor; the two remaining
// descriptors are derived on demand.
type GaussianBeam struct {
	wavelength      float64
	amplitude       float64
	refractiveIndex float64
	waistLocation   float64

	shape      shapeKind
	shapeValue float64
}

type beamOptions struct {
	amplitude       float64
	refractiveIndex float64
	waistLocation   float64
	shapes          []shapeKind
	shapeValue      float64
}

// BeamOption configures NewGaussianBeam.
type BeamOption func(*beamOptions)

// WaistRadius sets the beam's minimum radius w0.
func WaistRadius(w0 float64) BeamOption {
	return func(o *beamOptions) {
		o.shapes = append(o.shapes, shapeWaistRadius)
		o.shapeValue = w0
	}
}

// RayleighRange sets the beam's Rayleigh range zR.
func RayleighRange(zr float64) BeamOption {
	return func(o *beamOptions) {
		o.shapes = append(o.shapes, shapeRayleighRange)
		o.shapeValue = zr
	}
}

// Divergence sets the beam's far-field half-angle.
func Divergence(theta float64) BeamOption {
	return func(o *beamOptions) {
		o.shapes = append(o.shapes, shapeDivergence)
		o.shapeValue = theta
	}
}

// Amplitude sets the beam amplitude. Defaults to 1.
func Amplitude(a float64) BeamOption {
	return func(o *beamOptions) { o.amplitude = a }
}

// RefractiveIndex sets the index of the medium the beam propagates in.
// Defaults to 1.
func RefractiveIndex(n float64) BeamOption {
	return func(o *beamOptions) { o.refractiveIndex = n }
}

// WaistLocation sets the axial position of the waist. Defaults to 0.
func WaistLocation(z0 float64) BeamOption {
	return func(o *beamOptions) { o.waistLocation = z0 }
}

// NewGaussianBeam creates a beam of the given wavelength. Exactly one of
// WaistRadius, RayleighRange or Divergence must be supplied.
func NewGaussianBeam(wavelength float64, opts ...BeamOption) (GaussianBeam, error) {
	o := beamOptions{amplitude: 1, refractiveIndex: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.shapes) != 1 {
		names := make([]string, len(o.shapes))
		for i, s := range o.shapes {
			names[i] = s.String()
		}
		return GaussianBeam{}, errors.Errorf(errors.KindConfiguration,
			"exactly one of waist radius, rayleigh range or divergence must be given, got %d [%s]",
			len(o.shapes), strings.Join(names, ", ")).
			WithComponent(component).WithOperation("NewGaussianBeam")
	}
	if wavelength <= 0 || math.IsNaN(wavelength) {
		return GaussianBeam{}, errors.Errorf(errors.KindConfiguration, "wavelength must be positive, got %g", wavelength).
			WithComponent(component).WithOperation("NewGaussianBeam")
	}
	if o.refractiveIndex <= 0 {
		return GaussianBeam{}, errors.Errorf(errors.KindConfiguration, "refractive index must be positive, got %g", o.refractiveIndex).
			WithComponent(component).WithOperation("NewGaussianBeam")
	}

	return GaussianBeam{
		wavelength:      wavelength,
		amplitude:       o.amplitude,
		refractiveIndex: o.refractiveIndex,
		waistLocation:   o.waistLocation,
		shape:           o.shapes[0],
		shapeValue:      o.shapeValue,
	}, nil
}

// FromQ recovers a beam from its complex beam parameter q evaluated at axial
// position z.
func FromQ(wavelength float64, q complex128, z, refractiveIndex, amplitude float64) GaussianBeam {
	return GaussianBeam{
		wavelength:      wavelength,
		amplitude:       amplitude,
		refractiveIndex: refractiveIndex,
		waistLocation:   z - real(q),
		shape:           shapeRayleighRange,
		shapeValue:      imag(q),
	}
}

// Wavelength returns the vacuum wavelength.
func (b GaussianBeam) Wavelength() float64 { return b.wavelength }

// Amplitude returns the beam amplitude.
func (b GaussianBeam) Amplitude() float64 { return b.amplitude }

// RefractiveIndex returns the index of the propagation medium.
func (b GaussianBeam) RefractiveIndex() float64 { return b.refractiveIndex }

// WaistLocation returns the axial position of the waist.
func (b GaussianBeam) WaistLocation() float64 { return b.waistLocation }

// WaistRadius returns w0.
func (b GaussianBeam) WaistRadius() float64 {
	if b.shape == shapeWaistRadius {
		return b.shapeValue
	}
	return math.Sqrt(b.wavelength * b.RayleighRange() / (math.Pi * b.refractiveIndex))
}

// RayleighRange returns zR.
func (b GaussianBeam) RayleighRange() float64 {
	switch b.shape {
	case shapeRayleighRange:
		return b.shapeValue
	case shapeWaistRadius:
		return math.Pi * b.refractiveIndex * b.shapeValue * b.shapeValue / b.wavelength
	default:
		theta := b.shapeValue
		return b.wavelength / (math.Pi * b.refractiveIndex * theta * theta)
	}
}

// Divergence returns the far-field half-angle.
func (b GaussianBeam) Divergence() float64 {
	if b.shape == shapeDivergence {
		return b.shapeValue
	}
	return b.wavelength / (math.Pi * b.WaistRadius() * b.refractiveIndex)
}

// BeamRadius returns w(z).
func (b GaussianBeam) BeamRadius(z float64) float64 {
	x := (z - b.waistLocation) / b.RayleighRange()
	return b.WaistRadius() * math.Sqrt(1+x*x)
}

// Curvature returns the wavefront radius of curvature R(z). It is infinite at
// the waist.
func (b GaussianBeam) Curvature(z float64) float64 {
	dz := z - b.waistLocation
	if dz == 0 {
		return math.Inf(1)
	}
	zr := b.RayleighRange()
	return dz * (1 + (zr/dz)*(zr/dz))
}

// Q returns the complex beam parameter q(z) = (z - z0) + i zR.
func (b GaussianBeam) Q(z float64) complex128 {
	return complex(z-b.waistLocation, b.RayleighRange())
}

// BeamRadii applies BeamRadius elementwise.
func (b GaussianBeam) BeamRadii(z []float64) []float64 {
	return mapFloat(z, b.BeamRadius)
}

// Curvatures applies Curvature elementwise.
func (b GaussianBeam) Curvatures(z []float64) []float64 {
	return mapFloat(z, b.Curvature)
}

// Qs applies Q elementwise.
func (b GaussianBeam) Qs(z []float64) []complex128 {
	out := make([]complex128, len(z))
	for i, v := range z {
		out[i] = b.Q(v)
	}
	return out
}

// Gouy returns the Gouy phase at z.
func (b GaussianBeam) Gouy(z float64) float64 {
	return cmplx.Phase(b.Q(z))
}

// String renders the beam in laboratory units.
func (b GaussianBeam) String() string {
	var sb strings.Builder
	if b.refractiveIndex != 1 {
		fmt.Fprintf(&sb, "PROPAGATING IN MEDIA OF REFRACTIVE INDEX %g!\n", b.refractiveIndex)
	}
	fmt.Fprintf(&sb, "amplitude  = %g\n", b.amplitude)
	fmt.Fprintf(&sb, "wavelength = %g nm\n", b.wavelength*1e9)
	fmt.Fprintf(&sb, "waist_loc  = %g cm\n", b.waistLocation*1e2)
	fmt.Fprintf(&sb, "waist_rad  = %g mm\n", b.WaistRadius()*1e3)
	fmt.Fprintf(&sb, "rayleigh_r = %g mm\n", b.RayleighRange()*1e3)
	fmt.Fprintf(&sb, "divergence = %g mrad", b.Divergence()*1e3)
	return sb.String()
}

func mapFloat(in []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
