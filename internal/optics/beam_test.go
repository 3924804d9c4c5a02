package optics

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/optix/internal/errors"
)

const (
	testWavelength    = 405e-9
	testWaistRadius   = 1.2e-3
	testRayleighRange = 11170.10721e-3
	testDivergence    = 0.10743e-3
)

func TestNewGaussianBeamShapeDescriptors(t *testing.T) {
	tests := []struct {
		name string
		opt  BeamOption
	}{
		{"divergence", Divergence(testDivergence)},
		{"waist radius", WaistRadius(testWaistRadius)},
		{"rayleigh range", RayleighRange(testRayleighRange)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gb, err := NewGaussianBeam(testWavelength, tt.opt)
			require.NoError(t, err)

			assert.InEpsilon(t, testDivergence, gb.Divergence(), 1e-4)
			assert.InEpsilon(t, testWaistRadius, gb.WaistRadius(), 1e-4)
			assert.InEpsilon(t, testRayleighRange, gb.RayleighRange(), 1e-4)
		})
	}
}

func TestNewGaussianBeamSuppliedDescriptorIsVerbatim(t *testing.T) {
	gb, err := NewGaussianBeam(testWavelength, WaistRadius(testWaistRadius))
	require.NoError(t, err)
	assert.Equal(t, testWaistRadius, gb.WaistRadius())

	gb, err = NewGaussianBeam(testWavelength, Divergence(testDivergence))
	require.NoError(t, err)
	assert.Equal(t, testDivergence, gb.Divergence())
}

func TestNewGaussianBeamConfigurationErrors(t *testing.T) {
	tests := []struct {
		name       string
		wavelength float64
		opts       []BeamOption
	}{
		{"no shape descriptor", testWavelength, nil},
		{"two shape descriptors", testWavelength, []BeamOption{RayleighRange(1), Divergence(1)}},
		{"same descriptor twice", testWavelength, []BeamOption{WaistRadius(1), WaistRadius(2)}},
		{"zero wavelength", 0, []BeamOption{WaistRadius(1)}},
		{"non-positive index", testWavelength, []BeamOption{WaistRadius(1), RefractiveIndex(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGaussianBeam(tt.wavelength, tt.opts...)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestNewGaussianBeamDefaults(t *testing.T) {
	gb, err := NewGaussianBeam(1, RayleighRange(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, gb.Amplitude())
	assert.Equal(t, 1.0, gb.RefractiveIndex())
	assert.Equal(t, 0.0, gb.WaistLocation())
}

func TestRefractiveIndexScalesDerivedDescriptors(t *testing.T) {
	gb, err := NewGaussianBeam(1e-6, WaistRadius(1e-3), RefractiveIndex(1.5))
	require.NoError(t, err)
	assert.InEpsilon(t, math.Pi*1.5*1e-6/1e-6, gb.RayleighRange(), 1e-12)
	assert.InEpsilon(t, 1e-6/(math.Pi*1e-3*1.5), gb.Divergence(), 1e-12)
}

func TestFromQ(t *testing.T) {
	gb := FromQ(633e-9, complex(-0.2, 0.7), 1.5, 1.3, 2)
	assert.InDelta(t, 1.7, gb.WaistLocation(), 1e-15)
	assert.Equal(t, 0.7, gb.RayleighRange())
	assert.Equal(t, 1.3, gb.RefractiveIndex())
	assert.Equal(t, 2.0, gb.Amplitude())
	assertComplexInDelta(t, complex(-0.2, 0.7), gb.Q(1.5), 1e-15)
}

func TestBeamRadii(t *testing.T) {
	const zr = 1.0
	w0 := math.Sqrt(zr / math.Pi)
	gb, err := NewGaussianBeam(1, RayleighRange(zr))
	require.NoError(t, err)

	z := make([]float64, 100)
	for i := range z {
		z[i] = 10 * float64(i) / 99
	}

	got := gb.BeamRadii(z)
	require.Len(t, got, len(z))
	for i, v := range z {
		assert.InDelta(t, w0*math.Sqrt(1+(v/zr)*(v/zr)), got[i], 1e-15)
		assert.Equal(t, gb.BeamRadius(v), got[i])
	}
	assert.InDelta(t, w0*math.Sqrt2, gb.BeamRadius(zr), 1e-15)
}

func TestCurvatures(t *testing.T) {
	const zr = 1.0
	gb, err := NewGaussianBeam(1, RayleighRange(zr))
	require.NoError(t, err)

	z := []float64{0.1, 0.5, 1, 2, 10}
	got := gb.Curvatures(z)
	for i, v := range z {
		assert.InDelta(t, v*(1+(zr/v)*(zr/v)), got[i], 1e-12)
	}
	assert.True(t, math.IsInf(gb.Curvature(0), 1))
	assert.InDelta(t, 2*zr, gb.Curvature(zr), 1e-15, "curvature is minimal at the Rayleigh range")
}

func TestQs(t *testing.T) {
	gb, err := NewGaussianBeam(1, RayleighRange(1), WaistLocation(0.25))
	require.NoError(t, err)

	z := []float64{0.1, 1, 10}
	got := gb.Qs(z)
	for i, v := range z {
		assert.Equal(t, complex(v-0.25, 1), got[i])
	}
}

func TestGouy(t *testing.T) {
	gb, err := NewGaussianBeam(1, RayleighRange(2))
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, gb.Gouy(0), 1e-15)
	assert.InDelta(t, math.Pi/4, gb.Gouy(2), 1e-15)
}

func TestBeamString(t *testing.T) {
	gb, err := NewGaussianBeam(1, RayleighRange(1))
	require.NoError(t, err)
	s := gb.String()
	assert.Contains(t, s, "wavelength = 1e+09 nm")
	assert.Contains(t, s, "rayleigh_r = 1000 mm")
	assert.NotContains(t, s, "REFRACTIVE INDEX")

	gb, err = NewGaussianBeam(1, RayleighRange(1), RefractiveIndex(1.5))
	require.NoError(t, err)
	assert.Contains(t, gb.String(), "PROPAGATING IN MEDIA OF REFRACTIVE INDEX 1.5!")
}
