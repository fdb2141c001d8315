package dsp

import "math"

// BiQuad is a direct-form I RBJ cookbook lowpass section.
type BiQuad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

// NewBiQuad creates a lowpass section with corner freq and quality q.
func NewBiQuad(freq, sampleRate, q float64) *BiQuad {
	f := &BiQuad{}
	f.Configure(freq, sampleRate, q)
	return f
}

// Configure sets the coefficients and clears the state. A non-positive q
// selects a Butterworth response.
func (f *BiQuad) Configure(freq, sampleRate, q float64) {
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	omega := 2 * math.Pi * freq / sampleRate
	sinOmega, cosOmega := math.Sincos(omega)
	alpha := sinOmega / (2 * q)

	a0 := 1 + alpha
	f.b0 = (1 - cosOmega) / 2 / a0
	f.b1 = (1 - cosOmega) / a0
	f.b2 = (1 - cosOmega) / 2 / a0
	f.a1 = -2 * cosOmega / a0
	f.a2 = (1 - alpha) / a0
	f.Reset()
}

// Filter processes a single sample.
func (f *BiQuad) Filter(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// Reset clears the delay line.
func (f *BiQuad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}
