package dsp

import "github.com/tphakala/simd/f64"

// FIRFilter implements a stateful, per-sample Finite Impulse Response filter.
//
// The history is kept twice (at i and i+N) so the last N samples are always
// contiguous and the convolution is a single dot product.
type FIRFilter struct {
	taps []float64 // reversed, so taps[N-1] multiplies the newest sample
	hist []float64
	pos  int
}

// NewFIRFilter creates a new FIR filter with the given taps.
func NewFIRFilter(taps []float64) *FIRFilter {
	n := len(taps)
	rev := make([]float64, n)
	for i, t := range taps {
		rev[n-1-i] = t
	}
	return &FIRFilter{
		taps: rev,
		hist: make([]float64, 2*n),
	}
}

// NewLowpass creates a windowed-sinc lowpass of numTaps taps with cutoffHz at
// sampleRate.
func NewLowpass(numTaps int, sampleRate, cutoffHz float64) *FIRFilter {
	return NewFIRFilter(DesignFIRLowPass(oddTaps(numTaps), clampCutoff(cutoffHz/sampleRate)))
}

// NewBandpass creates a windowed-sinc bandpass passing [lowHz, highHz].
func NewBandpass(numTaps int, sampleRate, lowHz, highHz float64) *FIRFilter {
	lo := clampCutoff(lowHz / sampleRate)
	hi := clampCutoff(highHz / sampleRate)
	if hi <= lo {
		hi = clampCutoff(lo * 2)
	}
	return NewFIRFilter(DesignFIRBandPass(oddTaps(numTaps), lo, hi))
}

// Run filters one sample.
func (f *FIRFilter) Run(x float64) float64 {
	n := len(f.taps)
	f.hist[f.pos] = x
	f.hist[f.pos+n] = x
	f.pos++
	if f.pos == n {
		f.pos = 0
	}
	return f64.DotProduct(f.taps, f.hist[f.pos:f.pos+n])
}

// Reset zeroes the history so no energy leaks from a previous configuration.
func (f *FIRFilter) Reset() {
	clear(f.hist)
	f.pos = 0
}

// Len returns the number of taps.
func (f *FIRFilter) Len() int {
	return len(f.taps)
}

func oddTaps(n int) int {
	if n < 3 {
		n = 3
	}
	if n%2 == 0 {
		n++
	}
	return n
}

func clampCutoff(c float64) float64 {
	const lo, hi = 1e-4, 0.499
	if c < lo {
		return lo
	}
	if c > hi {
		return hi
	}
	return c
}
