package dsp

import "math"

// NCO is a numerically-controlled oscillator producing a complex unit phasor.
type NCO struct {
	phase float64
	step  float64
}

// NewNCO creates an oscillator at offsetHz for the given sample rate.
func NewNCO(offsetHz float64, sampleRate int) *NCO {
	n := &NCO{}
	n.SetFreq(offsetHz, sampleRate)
	return n
}

// SetFreq recomputes the per-sample phase increment. Phase is kept.
func (n *NCO) SetFreq(offsetHz float64, sampleRate int) {
	if sampleRate <= 0 {
		n.step = 0
		return
	}
	n.step = 2 * math.Pi * offsetHz / float64(sampleRate)
}

// Reset puts the oscillator back to phase zero.
func (n *NCO) Reset() {
	n.phase = 0
}

// NextIQ returns the current phasor and advances the phase.
func (n *NCO) NextIQ() complex64 {
	s, c := math.Sincos(n.phase)
	n.phase += n.step
	// Wrap modulo one turn in both directions so the accumulator stays bounded.
	if n.phase > math.Pi {
		n.phase -= 2 * math.Pi
	} else if n.phase < -math.Pi {
		n.phase += 2 * math.Pi
	}
	return complex(float32(c), float32(s))
}

// Phase returns the current phase in radians, in [-π, π].
func (n *NCO) Phase() float64 {
	return n.phase
}
