package dsp

import (
	"math"

	"github.com/tphakala/simd/f64"
)

const (
	// DefaultPhaseSteps is the number of polyphase branches.
	DefaultPhaseSteps = 32
	// DefaultTapsPerPhase is the shortest polyphase branch.
	DefaultTapsPerPhase = 24
	// maxTapsPerPhase bounds the branch length for narrow transitions.
	maxTapsPerPhase = 256
	// interpolatorAttenuation is the stopband attenuation of the prototype in dB.
	interpolatorAttenuation = 60.0
)

// Interpolator is a polyphase FIR resampler driven by a fractional distance
// accumulator owned by the caller.
//
// Real and imaginary parts are filtered independently with real taps, so a
// stereo pair can travel through it packed as complex(L, R).
type Interpolator struct {
	phaseSteps int
	taps       int
	bank       [][]float64 // [phase][tap], reversed per branch
	histRe     []float64
	histIm     []float64
	pos        int
}

// NewInterpolator creates an interpolator, see Create.
func NewInterpolator(phaseSteps, tapsPerPhase int, sampleRate, cutoff float64) *Interpolator {
	ip := &Interpolator{}
	ip.Create(phaseSteps, tapsPerPhase, sampleRate, cutoff)
	return ip
}

// Create rebuilds the coefficient bank for a lowpass at cutoff Hz on an input
// at sampleRate Hz and clears the history.
func (ip *Interpolator) Create(phaseSteps, tapsPerPhase int, sampleRate, cutoff float64) {
	if phaseSteps < 1 {
		phaseSteps = DefaultPhaseSteps
	}
	if tapsPerPhase < 2 {
		tapsPerPhase = DefaultTapsPerPhase
	}
	ip.phaseSteps = phaseSteps
	ip.taps = tapsPerPhase

	// Prototype runs at phaseSteps × sampleRate with a DC gain of phaseSteps,
	// so every branch has unity gain.
	proto := DesignKaiserLowPass(phaseSteps*tapsPerPhase,
		clampCutoff(cutoff/(sampleRate*float64(phaseSteps))),
		interpolatorAttenuation, float64(phaseSteps))

	ip.bank = make([][]float64, phaseSteps)
	for p := range ip.bank {
		branch := make([]float64, tapsPerPhase)
		for k := 0; k < tapsPerPhase; k++ {
			branch[tapsPerPhase-1-k] = proto[k*phaseSteps+p]
		}
		ip.bank[p] = branch
	}
	ip.histRe = make([]float64, 2*tapsPerPhase)
	ip.histIm = make([]float64, 2*tapsPerPhase)
	ip.pos = 0
}

// Reset clears the sample history.
func (ip *Interpolator) Reset() {
	clear(ip.histRe)
	clear(ip.histIm)
	ip.pos = 0
}

func (ip *Interpolator) advance(x complex64) {
	ip.histRe[ip.pos] = float64(real(x))
	ip.histRe[ip.pos+ip.taps] = float64(real(x))
	ip.histIm[ip.pos] = float64(imag(x))
	ip.histIm[ip.pos+ip.taps] = float64(imag(x))
	ip.pos++
	if ip.pos == ip.taps {
		ip.pos = 0
	}
}

// at evaluates the filter at fractional position mu in [0, 1) after the
// newest sample (plus the constant group delay of the prototype).
func (ip *Interpolator) at(mu float64) complex64 {
	p := int(math.Floor(mu * float64(ip.phaseSteps)))
	if p < 0 {
		p = 0
	} else if p >= ip.phaseSteps {
		p = ip.phaseSteps - 1
	}
	// Branch p holds prototype taps p, p+P, ... and lands p/P after the newest sample.
	branch := ip.bank[p]
	re := f64.DotProduct(branch, ip.histRe[ip.pos:ip.pos+ip.taps])
	im := f64.DotProduct(branch, ip.histIm[ip.pos:ip.pos+ip.taps])
	return complex(float32(re), float32(im))
}

// Decimate pushes one input sample. It returns true and writes out when an
// output sample falls on this input. The caller adds the rate ratio minus one
// to distance after every true return. Only valid for ratios >= 1.
func (ip *Interpolator) Decimate(distance *float64, in complex64, out *complex64) bool {
	ip.advance(in)
	if *distance >= 1 {
		*distance -= 1
		return false
	}
	*out = ip.at(*distance)
	return true
}

// Interpolate is the up-rate path. While distance is below one it writes
// one output sample and returns false; the caller adds the rate ratio to
// distance and calls again with the same input. Once distance reaches one
// the input is pushed into the history and Interpolate returns true without
// writing. Only valid for ratios < 1.
func (ip *Interpolator) Interpolate(distance *float64, in complex64, out *complex64) bool {
	if *distance >= 1 {
		ip.advance(in)
		*distance -= 1
		return true
	}
	*out = ip.at(*distance)
	return false
}

// Resampler owns an Interpolator, its rate ratio and distance accumulator.
type Resampler struct {
	ip       Interpolator
	ratio    float64 // input rate / output rate
	distance float64
	inRate   float64
	outRate  float64
}

// Resampler limits; degenerate ratios are clamped into this range.
const (
	minResampleRatio = 1.0 / 64
	maxResampleRatio = 256.0
)

// NewResampler creates a resampler from inRate to outRate with a passband up
// to cutoff Hz and the stopband from half the lower rate on. A cutoff of zero
// (or one past that point) selects 0.45 × the lower of the two rates.
func NewResampler(inRate, outRate, cutoff float64) *Resampler {
	r := &Resampler{}
	r.Configure(inRate, outRate, cutoff)
	return r
}

// Configure rebuilds taps for the new rates and resets history and distance.
func (r *Resampler) Configure(inRate, outRate, cutoff float64) {
	if inRate <= 0 {
		inRate = 1
	}
	if outRate <= 0 {
		outRate = inRate
	}
	ratio := inRate / outRate
	if ratio < minResampleRatio {
		ratio = minResampleRatio
		outRate = inRate / ratio
	} else if ratio > maxResampleRatio {
		ratio = maxResampleRatio
		outRate = inRate / ratio
	}
	// Passband up to cutoff, stopband from the lower Nyquist frequency on.
	nyquist := 0.5 * math.Min(inRate, outRate)
	if cutoff <= 0 || cutoff >= nyquist {
		cutoff = 0.9 * nyquist
	}
	transition := nyquist - cutoff
	r.inRate, r.outRate, r.ratio = inRate, outRate, ratio
	r.ip.Create(DefaultPhaseSteps, tapsForTransition(transition/inRate), inRate, cutoff+transition/2)
	r.distance = 0
}

// tapsForTransition returns the branch length giving the interpolator
// attenuation over a transition band of width df (cycles per input sample).
func tapsForTransition(df float64) int {
	n := int(math.Ceil((interpolatorAttenuation-7.95)/(2.285*2*math.Pi*df))) + 1
	return min(max(n, DefaultTapsPerPhase), maxTapsPerPhase)
}

// Ratio returns input rate / output rate.
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// OutputRate returns the effective output rate after clamping.
func (r *Resampler) OutputRate() float64 {
	return r.outRate
}

// Distance returns the fractional-distance accumulator.
func (r *Resampler) Distance() float64 {
	return r.distance
}

// Reset clears history and distance without touching the coefficients.
func (r *Resampler) Reset() {
	r.ip.Reset()
	r.distance = 0
}

// Process pushes one input sample and appends any outputs to out.
func (r *Resampler) Process(in complex64, out []complex64) []complex64 {
	var y complex64
	if r.ratio >= 1 {
		if r.ip.Decimate(&r.distance, in, &y) {
			r.distance += r.ratio - 1
			out = append(out, y)
		}
		return out
	}
	for !r.ip.Interpolate(&r.distance, in, &y) {
		out = append(out, y)
		r.distance += r.ratio
	}
	return out
}
