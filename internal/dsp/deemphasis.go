package dsp

// Deemphasis implements a first-order low-pass filter for FM de-emphasis.
type Deemphasis struct {
	alpha float64
	prev  float64
}

// NewDeemphasis creates a new de-emphasis filter.
// sampleRate is the audio sample rate.
// tau is the time constant (e.g., 50e-6 for Europe, 75e-6 for US).
func NewDeemphasis(sampleRate int, tau float64) *Deemphasis {
	d := &Deemphasis{}
	d.SetRC(tau, sampleRate)
	return d
}

// SetRC recomputes the filter coefficient and clears the state.
// A tau of zero disables the filter.
func (d *Deemphasis) SetRC(tau float64, sampleRate int) {
	d.prev = 0
	if tau <= 0 || sampleRate <= 0 {
		d.alpha = 1
		return
	}
	dt := 1.0 / float64(sampleRate)
	d.alpha = dt / (tau + dt)
}

// Filter applies the de-emphasis filter to a single sample.
func (d *Deemphasis) Filter(x float64) float64 {
	d.prev += d.alpha * (x - d.prev)
	return d.prev
}
