package dsp

import (
	"math"
	"math/cmplx"
)

// Discriminator implements a polar discriminator for FM demodulation.
//
// The output is the phase difference between consecutive samples times the
// configured scaling. With SetScaling the output is the instantaneous
// frequency divided by the deviation, so full deviation reads as ±1.
type Discriminator struct {
	prev    complex64
	scaling float64
}

// NewDiscriminator creates a discriminator returning raw phase differences in
// radians.
func NewDiscriminator() *Discriminator {
	return &Discriminator{scaling: 1}
}

// SetScaling normalizes the output by the frequency deviation.
func (d *Discriminator) SetScaling(sampleRate, deviation float64) {
	if sampleRate <= 0 || deviation <= 0 {
		d.scaling = 1
		return
	}
	d.scaling = sampleRate / (2 * math.Pi * deviation)
}

// Reset forgets the previous sample.
func (d *Discriminator) Reset() {
	d.prev = 0
}

// Run demodulates one sample.
func (d *Discriminator) Run(current complex64) float64 {
	// Multiply the current sample by the conjugate of the previous one.
	// The angle of the resulting complex number is the phase difference.
	p := complex128(current) * cmplx.Conj(complex128(d.prev))
	d.prev = current
	return cmplx.Phase(p) * d.scaling
}

// DiscriminatorCompensation returns the gain correcting the discriminator
// output level for audio rates other than 48 kS/s (1 at 48 kS/s).
func DiscriminatorCompensation(audioSampleRate int) float64 {
	if audioSampleRate <= 0 {
		return 1
	}
	c := float64(audioSampleRate) / 48000
	return c * math.Sqrt(c)
}
