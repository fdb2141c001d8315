// Package dsp holds the per-sample building blocks of the FM demodulation
// pipeline: oscillator, resampler, filters, discriminator, squelch, pilot PLL,
// CTCSS detector and deemphasis.
package dsp

import (
	"math"

	"github.com/tphakala/simd/f64"
)

// DesignFIRLowPass creates a low-pass FIR filter using the windowed-sinc method.
// cutoff is normalized to the sample rate (0 < cutoff < 0.5).
func DesignFIRLowPass(numTaps int, cutoff float64) []float64 {
	taps := make([]float64, numTaps)
	M := float64(numTaps - 1)
	// The cutoff frequency must be normalized to the Nyquist frequency (0.5 * sample_rate)
	fc := cutoff * 2
	for n := 0; n < numTaps; n++ {
		x := float64(n) - M/2
		taps[n] = fc * sinc(fc*x)
		taps[n] *= hamming(n, M)
	}
	// Unity gain at DC
	sum := f64.Sum(taps)
	if sum != 0 {
		f64.Scale(taps, taps, 1/sum)
	}
	return taps
}

// DesignFIRBandPass creates a band-pass FIR filter passing [low, high], both
// normalized to the sample rate. The gain is unity at the band centre.
func DesignFIRBandPass(numTaps int, low, high float64) []float64 {
	taps := make([]float64, numTaps)
	M := float64(numTaps - 1)
	fl, fh := low*2, high*2
	for n := 0; n < numTaps; n++ {
		x := float64(n) - M/2
		taps[n] = (fh*sinc(fh*x) - fl*sinc(fl*x)) * hamming(n, M)
	}
	g := gainAt(taps, (low+high)/2)
	if g > 0 {
		f64.Scale(taps, taps, 1/g)
	}
	return taps
}

// DesignKaiserLowPass designs a Kaiser-windowed sinc lowpass with the given
// stopband attenuation in dB and DC gain.
func DesignKaiserLowPass(numTaps int, cutoff, attenuation, gain float64) []float64 {
	window := KaiserWindow(numTaps, KaiserBeta(attenuation))
	taps := make([]float64, numTaps)
	M := float64(numTaps - 1)
	fc := cutoff * 2
	for n := range taps {
		taps[n] = fc * sinc(fc*(float64(n)-M/2)) * window[n]
	}
	sum := f64.Sum(taps)
	if sum != 0 {
		f64.Scale(taps, taps, gain/sum)
	}
	return taps
}

func hamming(n int, M float64) float64 {
	if M == 0 {
		return 1
	}
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/M)
}

// gainAt returns |H(f)| of the taps at normalized frequency f.
func gainAt(taps []float64, f float64) float64 {
	var re, im float64
	for n, t := range taps {
		s, c := math.Sincos(2 * math.Pi * f * float64(n))
		re += t * c
		im -= t * s
	}
	return math.Hypot(re, im)
}

// PowerDB converts a power ratio to decibels, floored at -120 dB.
func PowerDB(p float64) float64 {
	if p <= 1e-12 {
		return -120
	}
	return 10 * math.Log10(p)
}
