package dsp

import (
	"math"

	"github.com/tphakala/simd/c128"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// DefaultFFTFilterLen is the FFT size used by the RF channel filters.
const DefaultFFTFilterLen = 1024

// FFTFilter is a complex overlap-add filter. Its passband may be asymmetric
// around zero, which a real FIR cannot do.
//
// Input is collected in blocks of half the FFT size. Each full block yields
// the same number of output samples.
type FFTFilter struct {
	fft   *fourier.CmplxFFT
	n     int
	half  int
	resp  []complex128 // filter frequency response
	in    []complex128
	fill  int
	work  []complex128
	spec  []complex128
	ovl   []complex128
	out   []complex128
	scale float64
}

// NewFFTFilter creates a filter with FFT size n passing [low, high], both
// normalized to the sample rate and in (-0.5, 0.5).
func NewFFTFilter(n int, low, high float64) *FFTFilter {
	if n < 16 {
		n = DefaultFFTFilterLen
	}
	f := &FFTFilter{
		fft:   fourier.NewCmplxFFT(n),
		n:     n,
		half:  n / 2,
		in:    make([]complex128, n/2),
		work:  make([]complex128, n),
		spec:  make([]complex128, n),
		ovl:   make([]complex128, n/2),
		out:   make([]complex128, n/2),
		scale: 1 / float64(n),
	}
	f.Create(low, high)
	return f
}

// Create designs a new passband and zeroes all buffers.
func (f *FFTFilter) Create(low, high float64) {
	low = math.Max(-0.499, math.Min(0.499, low))
	high = math.Max(-0.499, math.Min(0.499, high))
	if high < low {
		low, high = high, low
	}

	// Complex bandpass impulse response from low to high:
	// h[k] = (e^{j2π·high·k} − e^{j2π·low·k}) / (j2πk), h[0] = high − low.
	taps := f.half
	w := make([]float64, taps)
	for i := range w {
		w[i] = 1
	}
	w = window.Blackman(w)
	h := make([]complex128, f.n)
	mid := float64(taps-1) / 2
	var dc complex128
	for i := 0; i < taps; i++ {
		k := float64(i) - mid
		var v complex128
		if math.Abs(k) < 1e-9 {
			v = complex(high-low, 0)
		} else {
			sh, ch := math.Sincos(2 * math.Pi * high * k)
			sl, cl := math.Sincos(2 * math.Pi * low * k)
			num := complex(ch-cl, sh-sl)
			v = num / complex(0, 2*math.Pi*k)
		}
		h[i] = v * complex(w[i], 0)
	}
	// Unity gain at the band centre.
	fc := (low + high) / 2
	for i := 0; i < taps; i++ {
		s, c := math.Sincos(-2 * math.Pi * fc * float64(i))
		dc += h[i] * complex(c, s)
	}
	g := math.Hypot(real(dc), imag(dc))
	if g > 0 {
		for i := range h[:taps] {
			h[i] /= complex(g, 0)
		}
	}
	f.resp = f.fft.Coefficients(nil, h)
	f.Reset()
}

// Reset clears the input block and the overlap so no energy leaks from a
// previous configuration.
func (f *FFTFilter) Reset() {
	clear(f.in)
	clear(f.ovl)
	f.fill = 0
}

// Run adds one sample. When a block completes it returns the filtered block,
// valid until the next call; otherwise it returns nil.
func (f *FFTFilter) Run(x complex128) []complex128 {
	f.in[f.fill] = x
	f.fill++
	if f.fill < f.half {
		return nil
	}
	f.fill = 0

	copy(f.work, f.in)
	clear(f.work[f.half:])
	f.spec = f.fft.Coefficients(f.spec, f.work)
	c128.Mul(f.spec, f.spec, f.resp)
	f.work = f.fft.Sequence(f.work, f.spec)

	for i := 0; i < f.half; i++ {
		f.out[i] = f.work[i]*complex(f.scale, 0) + f.ovl[i]
		f.ovl[i] = f.work[i+f.half] * complex(f.scale, 0)
	}
	return f.out
}

// BlockLen returns the number of samples per output block.
func (f *FFTFilter) BlockLen() int {
	return f.half
}
