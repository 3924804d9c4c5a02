package optics

import "gonum.org/v1/gonum/floats"

// Segment is the sampled beam envelope across one element of a path.
type Segment struct {
	Name   string    `json:"name"`
	Start  float64   `json:"start"`
	End    float64   `json:"end"`
	Z      []float64 `json:"z"`
	Radius []float64 `json:"radius"`
}

// Trace walks p element by element, propagating in through the growing
// prefix, and samples the beam radius at the given number of points across
// every element that has a non-zero length. Elements without extent only
// change the beam seen by the following segments.
func Trace(p *Path, in GaussianBeam, samples int) []Segment {
	if samples < 2 {
		samples = 2
	}

	prefix := NewPath()
	segments := make([]Segment, 0, p.Len())
	z0 := 0.0
	for _, e := range p.Elements() {
		prefix.Append(e)
		z1 := prefix.Length()
		if z1-z0 <= 0 {
			continue
		}

		out := prefix.Propagate(in)
		z := floats.Span(make([]float64, samples), z0, z1)
		segments = append(segments, Segment{
			Name:   e.Name(),
			Start:  z0,
			End:    z1,
			Z:      z,
			Radius: out.BeamRadii(z),
		})
		z0 = z1
	}
	return segments
}
