package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTone feeds a complex tone at normalized frequency f and returns the
// magnitude of the steady-state output.
func runTone(f *FFTFilter, freq float64, blocks int) float64 {
	var last []complex128
	for i := 0; i < blocks*f.BlockLen(); i++ {
		s, c := math.Sincos(2 * math.Pi * freq * float64(i))
		if out := f.Run(complex(c, s)); out != nil {
			last = out
		}
	}
	var peak float64
	for _, y := range last {
		peak = math.Max(peak, cmplx.Abs(y))
	}
	return peak
}

func TestFFTFilter_AsymmetricPassband(t *testing.T) {
	f := NewFFTFilter(DefaultFFTFilterLen, 0.05, 0.15)

	assert.InDelta(t, 1.0, runTone(f, 0.1, 4), 0.05, "in-band tone")

	f.Reset()
	assert.Less(t, runTone(f, -0.1, 4), 0.01, "mirror image must be rejected")

	f.Reset()
	assert.Less(t, runTone(f, 0.3, 4), 0.01, "out-of-band tone")
}

func TestFFTFilter_BlockOutput(t *testing.T) {
	f := NewFFTFilter(256, -0.2, 0.2)
	require.Equal(t, 128, f.BlockLen())

	produced := 0
	for i := 0; i < 1000; i++ {
		if out := f.Run(1); out != nil {
			produced += len(out)
		}
	}
	assert.Equal(t, 1000/128*128, produced)
}

func TestFFTFilter_CreateClearsState(t *testing.T) {
	f := NewFFTFilter(256, -0.2, 0.2)
	for i := 0; i < 200; i++ {
		f.Run(complex(5, 5))
	}

	f.Create(-0.2, 0.2)
	var out []complex128
	for i := 0; i < f.BlockLen(); i++ {
		if o := f.Run(0); o != nil {
			out = o
		}
	}
	require.NotNil(t, out)
	for i, y := range out {
		assert.Zero(t, cmplx.Abs(y), "sample %d leaked energy", i)
	}
}

func TestNCO_UnitMagnitudeAndWrap(t *testing.T) {
	n := NewNCO(12500, 48000)
	for i := 0; i < 100000; i++ {
		x := n.NextIQ()
		assert.InDelta(t, 1.0, cmplx.Abs(complex128(x)), 1e-6)
		if math.Abs(n.Phase()) > math.Pi {
			t.Fatalf("phase not wrapped at %d: %f", i, n.Phase())
		}
	}

	n.Reset()
	assert.Equal(t, complex64(1), n.NextIQ())
}

func TestNCO_Frequency(t *testing.T) {
	const fs = 48000
	n := NewNCO(-1000, fs)
	prev := n.NextIQ()
	want := -2 * math.Pi * 1000 / fs
	for i := 0; i < 100; i++ {
		x := n.NextIQ()
		got := cmplx.Phase(complex128(x) * cmplx.Conj(complex128(prev)))
		assert.InDelta(t, want, got, 1e-5)
		prev = x
	}
}

func TestBiQuad_Lowpass(t *testing.T) {
	const fs = 48000.0
	f := NewBiQuad(2400, fs, 0.707)

	gain := func(freq float64) float64 {
		f.Reset()
		var peak float64
		for i := 0; i < 9600; i++ {
			y := f.Filter(math.Sin(2 * math.Pi * freq * float64(i) / fs))
			if i > 4800 {
				peak = math.Max(peak, math.Abs(y))
			}
		}
		return peak
	}

	assert.InDelta(t, 1.0, gain(200), 0.02)
	assert.InDelta(t, math.Sqrt2/2, gain(2400), 0.03)
	assert.Less(t, gain(19000), 0.03)
}
