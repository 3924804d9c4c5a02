package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/fit"
	"github.com/copyleftdev/optix/internal/optics"
	"github.com/copyleftdev/optix/internal/optimization"
)

// matrixType names an element given by its raw ABCD matrix.
const matrixType = "ABCD"

// beamRequest describes an input beam. Exactly one of WaistRadius,
// RayleighRange and Divergence must be set.
type beamRequest struct {
	Wavelength      float64  `json:"wavelength"`
	WaistRadius     *float64 `json:"waist_radius,omitempty"`
	RayleighRange   *float64 `json:"rayleigh_range,omitempty"`
	Divergence      *float64 `json:"divergence,omitempty"`
	WaistLocation   float64  `json:"waist_location"`
	RefractiveIndex *float64 `json:"refractive_index,omitempty"`
	Amplitude       *float64 `json:"amplitude,omitempty"`
}

func (b beamRequest) build() (optics.GaussianBeam, error) {
	opts := []optics.BeamOption{optics.WaistLocation(b.WaistLocation)}
	if b.WaistRadius != nil {
		opts = append(opts, optics.WaistRadius(*b.WaistRadius))
	}
	if b.RayleighRange != nil {
		opts = append(opts, optics.RayleighRange(*b.RayleighRange))
	}
	if b.Divergence != nil {
		opts = append(opts, optics.Divergence(*b.Divergence))
	}
	if b.RefractiveIndex != nil {
		opts = append(opts, optics.RefractiveIndex(*b.RefractiveIndex))
	}
	if b.Amplitude != nil {
		opts = append(opts, optics.Amplitude(*b.Amplitude))
	}
	return optics.NewGaussianBeam(b.Wavelength, opts...)
}

// elementRequest is either a catalog element, {"type":"ThinLens","params":{"f":0.1}},
// or a raw matrix, {"type":"ABCD","matrix":[[1,0],[-10,1]]}.
type elementRequest struct {
	Type   string             `json:"type"`
	Params map[string]float64 `json:"params,omitempty"`
	Matrix [][]float64        `json:"matrix,omitempty"`
	Length float64            `json:"length,omitempty"`
}

func (e elementRequest) isMatrix() bool {
	return strings.EqualFold(e.Type, matrixType)
}

func (e elementRequest) matrix() (optics.Element, error) {
	el, err := optics.FromRows(e.Matrix)
	if err != nil {
		return nil, err
	}
	return el.WithLength(e.Length), nil
}

// element builds a concrete element. Every catalog parameter must be given.
func (e elementRequest) element() (optics.Element, error) {
	if e.isMatrix() {
		return e.matrix()
	}
	return fit.BuildElement(e.Type, e.Params)
}

// entry builds a template entry. Catalog parameters left out become free.
func (e elementRequest) entry() (any, error) {
	if e.isMatrix() {
		return e.matrix()
	}
	return fit.Template(e.Type, e.Params)
}

func buildPath(elements []elementRequest) (*optics.Path, error) {
	p := optics.NewPath()
	for i, req := range elements {
		e, err := req.element()
		if err != nil {
			return nil, errors.Wrap(err, "element "+strconv.Itoa(i))
		}
		p.Append(e)
	}
	return p, nil
}

func buildTemplate(elements []elementRequest) (*fit.Optimizer, error) {
	o, err := fit.New()
	if err != nil {
		return nil, err
	}
	for i, req := range elements {
		e, err := req.entry()
		if err != nil {
			return nil, errors.Wrap(err, "template entry "+strconv.Itoa(i))
		}
		if err := o.Append(e); err != nil {
			return nil, err
		}
	}
	return o, nil
}

type targetRequest struct {
	WaistRadius   float64 `json:"waist_radius"`
	WaistLocation float64 `json:"waist_location"`
}

type propagateRequest struct {
	Beam     beamRequest      `json:"beam"`
	Elements []elementRequest `json:"elements"`
	// Samples per element of the returned envelope trace. Zero skips the trace.
	Samples int `json:"samples,omitempty"`
}

// fitRequest starts a fit job. A null bound side is unbounded.
type fitRequest struct {
	Beam        beamRequest      `json:"beam"`
	Template    []elementRequest `json:"template"`
	Target      targetRequest    `json:"target"`
	X0          []float64        `json:"x0"`
	Bounds      [][2]*float64    `json:"bounds,omitempty"`
	Hops        int              `json:"hops,omitempty"`
	Seed        int64            `json:"seed,omitempty"`
	Strategy    string           `json:"strategy,omitempty"`
	LocalMethod string           `json:"local_method,omitempty"`
	Chains      int              `json:"chains,omitempty"`
}

// options returns the per-request overrides of the configured defaults.
func (r fitRequest) options(l limits) ([]fit.RunOption, error) {
	if r.Hops > l.maxHops || r.Chains > l.maxChains {
		return nil, errors.Errorf(errors.KindConfiguration,
			"hops and chains must not exceed %d and %d, got %d and %d", l.maxHops, l.maxChains, r.Hops, r.Chains).
			WithComponent(component).WithOperation("startFit")
	}
	var opts []fit.RunOption
	if r.Bounds != nil {
		bounds := make([][2]float64, len(r.Bounds))
		for i, b := range r.Bounds {
			bounds[i] = [2]float64{math.Inf(-1), math.Inf(1)}
			if b[0] != nil {
				bounds[i][0] = *b[0]
			}
			if b[1] != nil {
				bounds[i][1] = *b[1]
			}
		}
		opts = append(opts, fit.WithBounds(bounds))
	}
	if r.Hops > 0 {
		opts = append(opts, fit.WithHops(r.Hops))
	}
	if r.Seed != 0 {
		opts = append(opts, fit.WithSeed(r.Seed))
	}
	if r.Strategy != "" {
		s, err := fit.ParseStrategy(r.Strategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fit.WithStrategy(s))
	}
	if r.LocalMethod != "" {
		m, err := optimization.ParseLocalMethod(r.LocalMethod)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fit.WithLocalMethod(m))
	}
	if r.Chains > 0 {
		opts = append(opts, fit.WithChains(r.Chains))
	}
	return opts, nil
}

// beamResponse summarizes a beam. JSON has no infinities, so beams with a
// non-finite descriptor are rejected by summarize.
type beamResponse struct {
	Wavelength      float64 `json:"wavelength"`
	WaistRadius     float64 `json:"waist_radius"`
	WaistLocation   float64 `json:"waist_location"`
	RayleighRange   float64 `json:"rayleigh_range"`
	Divergence      float64 `json:"divergence"`
	RefractiveIndex float64 `json:"refractive_index"`
	Amplitude       float64 `json:"amplitude"`
	Description     string  `json:"description"`
}

func summarize(b optics.GaussianBeam) (beamResponse, error) {
	out := beamResponse{
		Wavelength:      b.Wavelength(),
		WaistRadius:     b.WaistRadius(),
		WaistLocation:   b.WaistLocation(),
		RayleighRange:   b.RayleighRange(),
		Divergence:      b.Divergence(),
		RefractiveIndex: b.RefractiveIndex(),
		Amplitude:       b.Amplitude(),
	}
	for _, v := range []float64{out.WaistRadius, out.WaistLocation, out.RayleighRange, out.Divergence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return beamResponse{}, errors.New(errors.KindConfiguration, "output beam is not a physical gaussian beam").
				WithComponent(component).WithOperation("summarize")
		}
	}
	out.Description = b.String()
	return out, nil
}

type propagateResponse struct {
	Output beamResponse     `json:"output"`
	System [2][2]float64    `json:"system"`
	Length float64          `json:"length"`
	Trace  []optics.Segment `json:"trace,omitempty"`
}

func (s *Server) propagate(req propagateRequest) (*propagateResponse, error) {
	if req.Samples > s.limits.maxSamples {
		return nil, errors.Errorf(errors.KindConfiguration,
			"samples must not exceed %d, got %d", s.limits.maxSamples, req.Samples).
			WithComponent(component).WithOperation("propagate")
	}
	in, err := req.Beam.build()
	if err != nil {
		return nil, err
	}
	p, err := buildPath(req.Elements)
	if err != nil {
		return nil, err
	}
	out, err := summarize(p.Propagate(in))
	if err != nil {
		return nil, err
	}

	a, b, c, d := p.System().Coefficients()
	res := &propagateResponse{
		Output: out,
		System: [2][2]float64{{a, b}, {c, d}},
		Length: p.Length(),
	}
	if req.Samples > 0 {
		res.Trace = optics.Trace(p, in, req.Samples)
	}
	propagationsTotal.Inc()
	return res, nil
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
