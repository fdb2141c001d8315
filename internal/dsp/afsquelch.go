package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// AF squelch defaults.
const (
	// afSquelchNoiseTone is the frequency in Hz at which discriminator noise
	// is measured, above the voice band.
	afSquelchNoiseTone = 6000.0
	// afSquelchWindowSeconds is the length of one Goertzel window.
	afSquelchWindowSeconds = 0.005
	// afSquelchAverage is the number of windows averaged.
	afSquelchAverage = 8
)

// AFSquelch measures the discriminator output in a Hann-windowed Goertzel
// bin above the voice band. Without a carrier the discriminator produces
// wideband noise; a carrier quiets it, whatever its power.
type AFSquelch struct {
	coef    float64
	weights []float64
	norm    float64
	u0, u1  float64
	count   int
	average *MovingAverage
	noise   float64
}

// NewAFSquelch creates a detector for discriminator output at sampleRate.
func NewAFSquelch(sampleRate int) *AFSquelch {
	s := &AFSquelch{average: NewMovingAverage(afSquelchAverage)}
	s.SetSampleRate(sampleRate)
	return s
}

// SetSampleRate recomputes the bin and restarts the measurement. Rates too
// low to carry the noise tone move it to 0.4 of the rate.
func (s *AFSquelch) SetSampleRate(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	rate := float64(sampleRate)
	tone := math.Min(afSquelchNoiseTone, 0.4*rate)

	w := make([]float64, max(int(afSquelchWindowSeconds*rate), 16))
	for i := range w {
		w[i] = 1
	}
	s.weights = window.Hann(w)
	var sum float64
	for _, v := range s.weights {
		sum += v
	}
	// A unit sine at the tone measures 1.
	s.norm = 4 / (sum * sum)
	s.coef = 2 * math.Cos(2*math.Pi*tone/rate)
	s.Reset()
}

// Reset restarts the measurement at full noise.
func (s *AFSquelch) Reset() {
	s.u0, s.u1 = 0, 0
	s.count = 0
	s.average.Reset()
	s.noise = 1
}

// Analyze feeds one discriminator sample and returns the averaged noise
// power, which changes once per window.
func (s *AFSquelch) Analyze(x float64) float64 {
	t := s.u0
	s.u0 = x*s.weights[s.count] + s.coef*s.u0 - s.u1
	s.u1 = t
	s.count++
	if s.count == len(s.weights) {
		p := (s.u0*s.u0 + s.u1*s.u1 - s.coef*s.u0*s.u1) * s.norm
		s.noise = s.average.Feed(p)
		s.u0, s.u1 = 0, 0
		s.count = 0
	}
	return s.noise
}
